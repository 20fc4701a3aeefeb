package pubsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/underbots/ipcbus/internal/config"
	"github.com/underbots/ipcbus/internal/topicmgr"
	"github.com/underbots/ipcbus/internal/transport"
	"github.com/underbots/ipcbus/internal/wire"
)

// Bus publishes typed messages on topics and dispatches received messages
// to callbacks, one goroutine per subscribed topic.
//
// Endpoints are created on first use: Publish binds the topic's publisher,
// RegisterCallback connects its subscriber. Callbacks must be registered
// before Start. Shutdown stops dispatch and closes every endpoint; Stop
// does the same without waiting.
type Bus struct {
	registry       *topicmgr.Registry
	factory        *transport.Factory
	ownsFactory    bool
	codec          wire.Codec
	policies       map[string]transport.Policy
	queueDepth     int
	pollInterval   time.Duration
	callbackPolicy CallbackPolicy
	logger         *slog.Logger
	tracer         trace.Tracer

	mu      sync.Mutex
	started bool
	closed  bool
	running map[string]struct{}

	stop         chan struct{}
	stopped      chan struct{}
	units        errgroup.Group
	shutdownOnce sync.Once
}

// New creates a bus. It validates every configured topic address and
// policy up front and returns a configuration error for the first one
// that cannot be used.
func New(opts ...Option) (*Bus, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.prefix == "" {
		o.prefix = topicmgr.DefaultAddressPrefix
	}
	if o.tracer == nil {
		o.tracer = noop.NewTracerProvider().Tracer(tracerName)
	}
	if o.queueDepth < 0 {
		return nil, fmt.Errorf("queue depth %d: %w", o.queueDepth, transport.ErrInvalidPolicy)
	}

	validator := topicmgr.NewValidator()
	for topic, policy := range o.policies {
		if err := policy.Validate(); err != nil {
			return nil, fmt.Errorf("topic %s: %w", topic, err)
		}
	}
	for topic, addr := range o.addresses {
		if err := validator.ValidateAddress(topic, addr); err != nil {
			return nil, err
		}
	}
	if _, err := transport.ParseAddress(o.prefix + "topic"); err != nil {
		return nil, fmt.Errorf("address prefix %q: %w", o.prefix, err)
	}

	logger := o.logger.With("component", "pubsub")
	b := &Bus{
		factory:        o.factory,
		codec:          o.codec,
		policies:       o.policies,
		queueDepth:     o.queueDepth,
		pollInterval:   o.pollInterval,
		callbackPolicy: o.callbackPolicy,
		logger:         logger,
		tracer:         o.tracer,
		running:        make(map[string]struct{}),
		stop:           make(chan struct{}),
		stopped:        make(chan struct{}),
	}
	if b.factory == nil {
		b.factory = transport.NewFactory(
			transport.WithLogger(o.logger),
			transport.WithMaxFrameSize(o.maxFrameSize),
		)
		b.ownsFactory = true
	}
	b.registry = topicmgr.NewRegistry(b.factory, topicmgr.NewAddressBook(o.prefix, o.addresses), o.logger)

	logger.Debug("Bus created",
		"prefix", o.prefix, "codec", b.codec.Name(), "poll_interval", b.pollInterval, "callback_policy", b.callbackPolicy.String())
	return b, nil
}

// NewFromConfig creates a bus from loaded configuration. opts are applied
// after the configuration and take precedence.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Bus, error) {
	base, err := FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return New(append(base, opts...)...)
}

// Publish encodes msg and sends it on topic without blocking. The topic's
// publisher endpoint is bound on first use with the policy chosen by
// KeepOnlyLast (default true) unless the topic has a configured policy.
//
// A message dropped because a send queue is full is logged and counted,
// and Publish still returns nil. Errors are returned for configuration
// problems, encoding failures, and after Shutdown.
func (b *Bus) Publish(topic string, msg any, opts ...EndpointOption) error {
	if b.isClosed() {
		return ErrBusClosed
	}

	_, span := startPublishSpan(context.Background(), b.tracer, topic)
	defer span.End()

	entry, err := b.registry.BindPublisher(topic, b.policyFor(topic, newEndpointOptions(opts)))
	if err != nil {
		recordSpanError(span, err)
		if b.isClosed() {
			return ErrBusClosed
		}
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	frame, err := wire.Encode(b.codec, topic, msg)
	if err != nil {
		recordSpanError(span, err)
		return err
	}
	setFrameSize(span, len(frame))

	if err := entry.Publisher.Send(frame); err != nil {
		switch {
		case errors.Is(err, transport.ErrQueueFull):
			sendDroppedTotal.WithLabelValues(topic).Inc()
			b.logger.Warn("Message dropped, send queue full", "topic", topic, "error", err)
			return nil
		case errors.Is(err, transport.ErrClosed):
			return ErrBusClosed
		default:
			recordSpanError(span, err)
			return fmt.Errorf("publish %s: %w", topic, err)
		}
	}

	messagesPublishedTotal.WithLabelValues(topic).Inc()
	return nil
}

// Advertise binds the publisher endpoint of topic without sending
// anything, so subscribers can connect before the first Publish.
func (b *Bus) Advertise(topic string, opts ...EndpointOption) error {
	if b.isClosed() {
		return ErrBusClosed
	}
	if _, err := b.registry.BindPublisher(topic, b.policyFor(topic, newEndpointOptions(opts))); err != nil {
		return fmt.Errorf("advertise %s: %w", topic, err)
	}
	return nil
}

// Peers returns the number of subscribers connected to the publisher
// endpoint of topic, or 0 if topic has none.
func (b *Bus) Peers(topic string) int {
	entry, ok := b.registry.Publisher(topic)
	if !ok {
		return 0
	}
	return entry.Publisher.Stats().Peers
}

// Start launches one dispatch loop for every subscribed topic that has at
// least one callback.
func (b *Bus) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.closed:
		return ErrBusClosed
	case b.started:
		return ErrAlreadyStarted
	}
	b.started = true

	for _, entry := range b.registry.Subscriptions() {
		callbacks := entry.Callbacks()
		if len(callbacks) == 0 {
			continue
		}
		b.running[entry.Topic] = struct{}{}
		dispatchUnits.Inc()
		b.units.Go(func() error {
			b.dispatch(entry, callbacks)
			return nil
		})
	}

	b.logger.Info("Dispatch started", "units", len(b.running))
	return nil
}

// Shutdown stops every dispatch loop, waits for them to return and closes
// all endpoints. Loops notice the stop signal within one poll interval.
// It is safe to call more than once.
//
// Shutdown waits for every dispatch loop, including one it is called
// from, so a callback calling it deadlocks. Callbacks use Stop.
func (b *Bus) Shutdown() {
	b.Stop()
	<-b.stopped
}

// Stop begins shutdown and returns without waiting for it to finish.
// It is safe to call from a callback.
func (b *Bus) Stop() {
	b.shutdownOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		close(b.stop)
		b.mu.Unlock()

		go b.teardown()
	})
}

// Done is closed once shutdown has finished.
func (b *Bus) Done() <-chan struct{} {
	return b.stopped
}

func (b *Bus) teardown() {
	defer close(b.stopped)

	_ = b.units.Wait()

	if err := b.registry.Close(); err != nil {
		b.logger.Warn("Error closing endpoints", "error", err)
	}
	if b.ownsFactory {
		if err := b.factory.Close(); err != nil {
			b.logger.Warn("Error closing socket factory", "error", err)
		}
	}
	b.logger.Info("Bus shut down")
}

// Running returns the number of dispatch loops still running.
func (b *Bus) Running() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.running)
}

// Stats returns a snapshot of the bus endpoints.
func (b *Bus) Stats() topicmgr.RegistryStats {
	return b.registry.Stats()
}

// Address returns the endpoint address of topic. The error is a
// configuration error for an invalid topic name.
func (b *Bus) Address(topic string) (string, error) {
	return b.registry.Address(topic)
}

func (b *Bus) policyFor(topic string, o endpointOptions) transport.Policy {
	if p, ok := b.policies[topic]; ok {
		return p
	}
	if o.keepOnlyLast {
		return transport.Conflate()
	}
	return transport.Bounded(b.queueDepth)
}

func (b *Bus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Bus) unitDone(topic string) {
	b.mu.Lock()
	delete(b.running, topic)
	b.mu.Unlock()
	dispatchUnits.Dec()
}
