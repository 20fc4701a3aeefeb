package pubsub

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/underbots/ipcbus/internal/config"
	"github.com/underbots/ipcbus/internal/transport"
	"github.com/underbots/ipcbus/internal/wire"
)

// CallbackPolicy selects what dispatch does when a callback panics.
type CallbackPolicy int

const (
	// IsolateCallbacks recovers the panic, logs it and keeps delivering to
	// the remaining callbacks and later messages.
	IsolateCallbacks CallbackPolicy = iota
	// StopTopicOnPanic recovers the panic, logs it and stops dispatch for
	// that topic. Other topics keep running.
	StopTopicOnPanic
)

func (p CallbackPolicy) String() string {
	switch p {
	case IsolateCallbacks:
		return "isolate"
	case StopTopicOnPanic:
		return "stop_topic"
	default:
		return "unknown"
	}
}

type options struct {
	prefix         string
	addresses      map[string]string
	policies       map[string]transport.Policy
	codec          wire.Codec
	pollInterval   time.Duration
	queueDepth     int
	maxFrameSize   int
	factory        *transport.Factory
	logger         *slog.Logger
	tracer         trace.Tracer
	callbackPolicy CallbackPolicy
}

func defaultOptions() options {
	return options{
		prefix:       config.DefaultAddressPrefix,
		addresses:    make(map[string]string),
		policies:     make(map[string]transport.Policy),
		codec:        wire.JSON,
		pollInterval: config.DefaultPollInterval,
	}
}

// Option configures a Bus.
type Option func(*options)

// WithAddressPrefix sets the prefix a topic name is appended to when
// forming its endpoint address.
func WithAddressPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithTopicAddress pins topic to addr instead of prefix+topic.
func WithTopicAddress(topic, addr string) Option {
	return func(o *options) {
		o.addresses[topic] = addr
	}
}

// WithTopicPolicy fixes the queue policy of topic, overriding whatever
// KeepOnlyLast the caller passes.
func WithTopicPolicy(topic string, policy transport.Policy) Option {
	return func(o *options) {
		o.policies[topic] = policy
	}
}

// WithCodec sets the payload codec. The default is wire.JSON.
func WithCodec(codec wire.Codec) Option {
	return func(o *options) {
		if codec != nil {
			o.codec = codec
		}
	}
}

// WithPollInterval sets how long a dispatch loop waits for a frame before
// checking for shutdown.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithQueueDepth sets the high-water-mark of endpoints that do not keep
// only the last message. Zero means transport.DefaultDepth.
func WithQueueDepth(n int) Option {
	return func(o *options) {
		o.queueDepth = n
	}
}

// WithMaxFrameSize bounds the frames the bus's ipc subscribers accept.
// A peer sending a larger frame is disconnected. Zero keeps the transport
// default. Ignored when WithFactory is used.
func WithMaxFrameSize(n int) Option {
	return func(o *options) {
		o.maxFrameSize = n
	}
}

// WithFactory makes the bus open its sockets through f. The bus does not
// close a factory it was given.
func WithFactory(f *transport.Factory) Option {
	return func(o *options) {
		o.factory = f
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTracer sets the tracer used for publish and dispatch spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithCallbackPolicy selects the callback panic policy. The default is
// IsolateCallbacks.
func WithCallbackPolicy(p CallbackPolicy) Option {
	return func(o *options) {
		o.callbackPolicy = p
	}
}

// FromConfig translates cfg into options. Options passed after it
// override it.
func FromConfig(cfg *config.Config) ([]Option, error) {
	codec, err := wire.Lookup(cfg.Codec)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithAddressPrefix(cfg.AddressPrefix),
		WithPollInterval(cfg.PollInterval),
		WithQueueDepth(cfg.QueueDepth),
		WithMaxFrameSize(cfg.MaxFrameSize),
		WithCodec(codec),
	}
	for topic, tc := range cfg.Topics {
		if tc.Address != "" {
			opts = append(opts, WithTopicAddress(topic, tc.Address))
		}
		if policy, ok := tc.Policy(); ok {
			opts = append(opts, WithTopicPolicy(topic, policy))
		}
	}
	return opts, nil
}

// EndpointOption configures the endpoint behind a Publish or a
// RegisterCallback call.
type EndpointOption func(*endpointOptions)

type endpointOptions struct {
	keepOnlyLast bool
}

func newEndpointOptions(opts []EndpointOption) endpointOptions {
	o := endpointOptions{keepOnlyLast: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// KeepOnlyLast selects a conflating endpoint (true, the default) or one
// bounded at the bus queue depth (false). It only has an effect on the
// call that creates the endpoint.
func KeepOnlyLast(keep bool) EndpointOption {
	return func(o *endpointOptions) {
		o.keepOnlyLast = keep
	}
}
