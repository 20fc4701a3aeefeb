package topicmgr

import (
	"reflect"
	"sync"
	"time"

	"github.com/underbots/ipcbus/internal/transport"
)

// Callback receives one decoded message. The value's dynamic type is the
// subscriber's payload type.
type Callback func(msg any)

// DecodeFunc turns a received frame into a fresh payload value.
type DecodeFunc func(frame []byte) (any, error)

// SocketFactory creates the sockets behind registry entries.
// *transport.Factory satisfies it.
type SocketFactory interface {
	NewPublisher(addr string, policy transport.Policy) (transport.Publisher, error)
	NewSubscriber(addr, filter string, policy transport.Policy) (transport.Subscriber, error)
}

// PublisherEntry is the outbound endpoint of a topic.
type PublisherEntry struct {
	Topic     string
	Addr      string
	Policy    transport.Policy
	Publisher transport.Publisher
	BoundAt   time.Time
}

// SubscriberEntry is the inbound endpoint of a topic together with the
// payload type it decodes to and its callbacks.
type SubscriberEntry struct {
	Topic       string
	Addr        string
	Policy      transport.Policy
	PayloadType reflect.Type
	Decode      DecodeFunc
	Subscriber  transport.Subscriber
	BoundAt     time.Time

	mu        sync.RWMutex
	callbacks []Callback
}

// Callbacks returns the registered callbacks in registration order.
func (e *SubscriberEntry) Callbacks() []Callback {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Callback, len(e.callbacks))
	copy(out, e.callbacks)
	return out
}

func (e *SubscriberEntry) addCallback(cb Callback) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callbacks = append(e.callbacks, cb)
	return len(e.callbacks)
}

// RegistryStats is a snapshot of the registry and its sockets.
type RegistryStats struct {
	Publishers  int               `json:"publishers"`
	Subscribers int               `json:"subscribers"`
	Callbacks   int               `json:"callbacks"`
	Endpoints   []transport.Stats `json:"endpoints"`
}

// TopicError represents structured errors in the topic management system
type TopicError struct {
	Type    ErrorType `json:"type"`
	Topic   string    `json:"topic"`
	Message string    `json:"message"`
	Cause   error     `json:"cause,omitempty"`
}

// ErrorType defines the type of topic management error
type ErrorType string

const (
	ErrorTopicNotFound    ErrorType = "topic_not_found"
	ErrorTypeMismatch     ErrorType = "type_mismatch"
	ErrorValidationFailed ErrorType = "validation_failed"
	ErrorBindFailed       ErrorType = "bind_failed"
	ErrorRegistryClosed   ErrorType = "registry_closed"
)

// Error implements the error interface
func (e *TopicError) Error() string {
	msg := e.Message
	if e.Topic != "" {
		msg = "topic " + e.Topic + ": " + msg
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *TopicError) Unwrap() error {
	return e.Cause
}

// IsConfigurationError reports whether the error stems from how topics
// were declared rather than from the transport at runtime.
func (e *TopicError) IsConfigurationError() bool {
	switch e.Type {
	case ErrorTypeMismatch, ErrorValidationFailed:
		return true
	case ErrorBindFailed:
		return transport.IsConfigurationError(e.Cause)
	default:
		return false
	}
}
