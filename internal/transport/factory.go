package transport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const (
	defaultReconnectInterval = 100 * time.Millisecond
	defaultMaxFrameSize      = 64 << 20
)

// Publisher is the outbound half of a topic. Send never blocks.
type Publisher interface {
	// Send queues frame for every connected peer. It returns ErrQueueFull
	// when at least one peer dropped the frame, and nil when no peer is
	// connected.
	Send(frame []byte) error
	Addr() string
	Stats() Stats
	Close() error
}

// Subscriber is the inbound half of a topic.
type Subscriber interface {
	// Poll waits up to timeout for the next frame. It returns ErrTimeout
	// when nothing arrived and ErrClosed once the socket is closed.
	Poll(timeout time.Duration) ([]byte, error)
	Addr() string
	Stats() Stats
	Close() error
}

// Factory creates publisher and subscriber sockets and owns the resources
// behind them. Closing the factory closes every socket it handed out.
type Factory struct {
	logger            *slog.Logger
	reconnectInterval time.Duration
	maxFrameSize      int

	mu          sync.Mutex
	closed      bool
	sockets     map[io.Closer]struct{}
	inproc      *inprocHub
	inprocBound map[string]struct{}
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithLogger sets the logger used by the factory and its sockets.
func WithLogger(logger *slog.Logger) FactoryOption {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithReconnectInterval sets how often a disconnected ipc subscriber
// retries its publisher.
func WithReconnectInterval(d time.Duration) FactoryOption {
	return func(f *Factory) {
		if d > 0 {
			f.reconnectInterval = d
		}
	}
}

// WithMaxFrameSize bounds the size of a single frame read from an ipc peer.
func WithMaxFrameSize(n int) FactoryOption {
	return func(f *Factory) {
		if n > 0 {
			f.maxFrameSize = n
		}
	}
}

// NewFactory creates a socket factory.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		logger:            slog.Default(),
		reconnectInterval: defaultReconnectInterval,
		maxFrameSize:      defaultMaxFrameSize,
		sockets:           make(map[io.Closer]struct{}),
		inprocBound:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("component", "transport")
	return f
}

// NewPublisher validates policy and binds a publisher socket to addr.
func (f *Factory) NewPublisher(addr string, policy Policy) (Publisher, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("publisher %s: %w", addr, err)
	}
	a, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}

	var pub Publisher
	switch a.Scheme {
	case SchemeIPC:
		pub, err = bindIPC(a, policy, f.logger, f.release)
	case SchemeInproc:
		if _, taken := f.inprocBound[a.Target]; taken {
			return nil, fmt.Errorf("%w: %s", ErrAddressInUse, a)
		}
		pub = bindInproc(a, policy, f.inprocLocked(), f.logger, f.release)
		f.inprocBound[a.Target] = struct{}{}
	}
	if err != nil {
		return nil, err
	}

	f.sockets[pub] = struct{}{}
	f.logger.Debug("Publisher bound", "addr", a.String(), "policy", policy.String())
	return pub, nil
}

// NewSubscriber validates policy and connects a subscriber socket to addr.
// An empty filter accepts every topic arriving on the address; otherwise
// only frames tagged with filter are queued.
func (f *Factory) NewSubscriber(addr, filter string, policy Policy) (Subscriber, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("subscriber %s: %w", addr, err)
	}
	a, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}

	var sub Subscriber
	switch a.Scheme {
	case SchemeIPC:
		sub = connectIPC(a, filter, policy, ipcDialConfig{
			reconnect:    f.reconnectInterval,
			maxFrameSize: f.maxFrameSize,
		}, f.logger, f.release)
	case SchemeInproc:
		sub, err = connectInproc(a, filter, policy, f.inprocLocked(), f.logger, f.release)
		if err != nil {
			return nil, err
		}
	}

	f.sockets[sub] = struct{}{}
	f.logger.Debug("Subscriber connected", "addr", a.String(), "filter", filter, "policy", policy.String())
	return sub, nil
}

// inprocLocked returns the in-process hub, creating it on first use.
// f.mu must be held.
func (f *Factory) inprocLocked() *inprocHub {
	if f.inproc == nil {
		logger := watermill.NewSlogLoggerWithLevelMapping(f.logger, map[slog.Level]slog.Level{
			slog.LevelInfo: slog.LevelDebug,
		})
		f.inproc = &inprocHub{
			ps: gochannel.NewGoChannel(gochannel.Config{
				BlockPublishUntilSubscriberAck: true,
			}, logger),
			subs: make(map[string]int),
		}
	}
	return f.inproc
}

// release forgets a socket that closed itself.
func (f *Factory) release(c io.Closer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sockets, c)
	if p, ok := c.(*inprocPublisher); ok {
		delete(f.inprocBound, p.name)
	}
}

// Open returns the number of sockets that have not been closed yet.
func (f *Factory) Open() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sockets)
}

// Close closes every socket created by the factory. It is idempotent.
func (f *Factory) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	sockets := make([]io.Closer, 0, len(f.sockets))
	for s := range f.sockets {
		sockets = append(sockets, s)
	}
	inproc := f.inproc
	f.mu.Unlock()

	var errs []error
	for _, s := range sockets {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if inproc != nil {
		if err := inproc.ps.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close inproc pubsub: %w", err))
		}
	}

	f.logger.Debug("Factory closed", "sockets", len(sockets))
	return errors.Join(errs...)
}
