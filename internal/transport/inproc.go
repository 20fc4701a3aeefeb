package transport

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/underbots/ipcbus/internal/wire"
)

// inprocHub is the in-process pub/sub shared by every inproc socket of a
// factory. Watermill topics are the inproc address names.
type inprocHub struct {
	ps *gochannel.GoChannel

	mu   sync.Mutex
	subs map[string]int
}

func (h *inprocHub) join(name string) {
	h.mu.Lock()
	h.subs[name]++
	h.mu.Unlock()
}

func (h *inprocHub) leave(name string) {
	h.mu.Lock()
	if h.subs[name]--; h.subs[name] <= 0 {
		delete(h.subs, name)
	}
	h.mu.Unlock()
}

func (h *inprocHub) peers(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subs[name]
}

// inprocPublisher hands frames to the hub from a single writer goroutine,
// which keeps them in send order.
type inprocPublisher struct {
	name    string
	addr    Address
	hub     *inprocHub
	out     *queue
	logger  *slog.Logger
	release func(io.Closer)

	closeOnce sync.Once
	wg        sync.WaitGroup
	stats     counters
}

func bindInproc(a Address, policy Policy, hub *inprocHub, logger *slog.Logger, release func(io.Closer)) *inprocPublisher {
	p := &inprocPublisher{
		name:    a.Target,
		addr:    a,
		hub:     hub,
		out:     newQueue(policy),
		logger:  logger.With("addr", a.String()),
		release: release,
	}

	p.wg.Add(1)
	go p.writeFrames()

	return p
}

func (p *inprocPublisher) writeFrames() {
	defer p.wg.Done()

	for {
		frame, err := p.out.take(0)
		if err != nil {
			return
		}
		msg := message.NewMessage(watermill.NewUUID(), frame)
		if err := p.hub.ps.Publish(p.name, msg); err != nil {
			p.logger.Debug("Failed to publish frame", "error", err)
		}
	}
}

// Send implements Publisher.
func (p *inprocPublisher) Send(frame []byte) error {
	select {
	case <-p.out.done:
		return ErrClosed
	default:
	}
	if p.hub.peers(p.name) == 0 {
		p.stats.sent.Add(1)
		return nil
	}
	res := p.out.offer(frame)
	p.stats.dropped.Add(res.lost())
	if !res.accepted() {
		return ErrQueueFull
	}
	p.stats.sent.Add(1)
	return nil
}

// Addr implements Publisher.
func (p *inprocPublisher) Addr() string {
	return p.addr.String()
}

// Stats implements Publisher.
func (p *inprocPublisher) Stats() Stats {
	s := p.stats.snapshot(p.addr.String())
	s.Peers = p.hub.peers(p.name)
	s.Queued = p.out.len()
	return s
}

// Close implements Publisher. Frames still queued are discarded.
func (p *inprocPublisher) Close() error {
	p.closeOnce.Do(func() {
		p.out.close()
		p.wg.Wait()
		p.release(p)
		p.logger.Debug("Publisher closed")
	})
	return nil
}

type inprocSubscriber struct {
	addr    Address
	filter  string
	hub     *inprocHub
	in      *queue
	cancel  context.CancelFunc
	logger  *slog.Logger
	release func(io.Closer)

	closeOnce sync.Once
	wg        sync.WaitGroup
	stats     counters
}

func connectInproc(a Address, filter string, policy Policy, hub *inprocHub, logger *slog.Logger, release func(io.Closer)) (*inprocSubscriber, error) {
	ctx, cancel := context.WithCancel(context.Background())
	messages, err := hub.ps.Subscribe(ctx, a.Target)
	if err != nil {
		cancel()
		return nil, err
	}
	hub.join(a.Target)

	s := &inprocSubscriber{
		addr:    a,
		filter:  filter,
		hub:     hub,
		in:      newQueue(policy),
		cancel:  cancel,
		logger:  logger.With("addr", a.String()),
		release: release,
	}

	s.wg.Add(1)
	go s.pump(messages)

	return s, nil
}

// pump moves frames from the hub into the inbound queue. Every message
// is acked so the publishing side never stalls on this subscriber.
func (s *inprocSubscriber) pump(messages <-chan *message.Message) {
	defer s.wg.Done()

	for msg := range messages {
		frame := msg.Payload
		msg.Ack()

		if s.filter != "" {
			if topic, ok := wire.PeekTopic(frame); ok && topic != s.filter {
				continue
			}
		}
		res := s.in.offer(frame)
		if res.accepted() {
			s.stats.received.Add(1)
		}
		s.stats.dropped.Add(res.lost())
	}
}

// Poll implements Subscriber.
func (s *inprocSubscriber) Poll(timeout time.Duration) ([]byte, error) {
	return s.in.take(timeout)
}

// Addr implements Subscriber.
func (s *inprocSubscriber) Addr() string {
	return s.addr.String()
}

// Stats implements Subscriber.
func (s *inprocSubscriber) Stats() Stats {
	st := s.stats.snapshot(s.addr.String())
	st.Queued = s.in.len()
	st.Peers = 1
	return st
}

// Close implements Subscriber.
func (s *inprocSubscriber) Close() error {
	s.closeOnce.Do(func() {
		s.hub.leave(s.addr.Target)
		s.cancel()
		s.in.close()
		s.wg.Wait()
		s.release(s)
		s.logger.Debug("Subscriber closed")
	})
	return nil
}
