package topicmgr

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/underbots/ipcbus/internal/transport"
)

// Registry owns the endpoints of every topic, at most one publisher and
// one subscriber per topic. Endpoints are created on first use and live
// until Close.
type Registry struct {
	factory   SocketFactory
	addresses *AddressBook
	validator *Validator
	logger    *slog.Logger

	mu          sync.RWMutex
	publishers  map[string]*PublisherEntry
	subscribers map[string]*SubscriberEntry
	order       []string
	closed      bool
}

// NewRegistry creates a registry that opens sockets through factory at the
// addresses resolved by addresses.
func NewRegistry(factory SocketFactory, addresses *AddressBook, logger *slog.Logger) *Registry {
	if addresses == nil {
		addresses = NewAddressBook("", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factory:     factory,
		addresses:   addresses,
		validator:   NewValidator(),
		logger:      logger.With("component", "topicmgr"),
		publishers:  make(map[string]*PublisherEntry),
		subscribers: make(map[string]*SubscriberEntry),
	}
}

// Publisher returns the publisher entry of topic if one is bound.
func (r *Registry) Publisher(topic string) (*PublisherEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.publishers[topic]
	return entry, ok
}

// BindPublisher returns the publisher entry of topic, binding one with
// policy if none exists. The first bind decides the policy.
func (r *Registry) BindPublisher(topic string, policy transport.Policy) (*PublisherEntry, error) {
	if entry, ok := r.Publisher(topic); ok {
		r.logPolicyIgnored(topic, entry.Policy, policy)
		return entry, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, r.closedError(topic)
	}
	// another goroutine may have won the race between the locks
	if entry, ok := r.publishers[topic]; ok {
		r.logPolicyIgnored(topic, entry.Policy, policy)
		return entry, nil
	}

	addr, err := r.resolve(topic)
	if err != nil {
		return nil, err
	}
	pub, err := r.factory.NewPublisher(addr, policy)
	if err != nil {
		return nil, &TopicError{
			Type:    ErrorBindFailed,
			Topic:   topic,
			Message: "bind publisher",
			Cause:   err,
		}
	}

	entry := &PublisherEntry{
		Topic:     topic,
		Addr:      addr,
		Policy:    policy,
		Publisher: pub,
		BoundAt:   time.Now(),
	}
	r.publishers[topic] = entry
	r.logger.Debug("Publisher endpoint created", "topic", topic, "addr", addr, "policy", policy.String())
	return entry, nil
}

// BindSubscriber returns the subscriber entry of topic, connecting one if
// none exists. A topic carries exactly one payload type; binding it again
// with another type fails with ErrorTypeMismatch.
func (r *Registry) BindSubscriber(topic string, payloadType reflect.Type, decode DecodeFunc, policy transport.Policy) (*SubscriberEntry, error) {
	if payloadType == nil || decode == nil {
		return nil, &TopicError{
			Type:    ErrorValidationFailed,
			Topic:   topic,
			Message: "subscriber needs a payload type and a decoder",
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, r.closedError(topic)
	}
	if entry, ok := r.subscribers[topic]; ok {
		if entry.PayloadType != payloadType {
			return nil, &TopicError{
				Type:    ErrorTypeMismatch,
				Topic:   topic,
				Message: fmt.Sprintf("already subscribed with payload type %s, got %s", entry.PayloadType, payloadType),
			}
		}
		r.logPolicyIgnored(topic, entry.Policy, policy)
		return entry, nil
	}

	addr, err := r.resolve(topic)
	if err != nil {
		return nil, err
	}
	sub, err := r.factory.NewSubscriber(addr, topic, policy)
	if err != nil {
		return nil, &TopicError{
			Type:    ErrorBindFailed,
			Topic:   topic,
			Message: "connect subscriber",
			Cause:   err,
		}
	}

	entry := &SubscriberEntry{
		Topic:       topic,
		Addr:        addr,
		Policy:      policy,
		PayloadType: payloadType,
		Decode:      decode,
		Subscriber:  sub,
		BoundAt:     time.Now(),
	}
	r.subscribers[topic] = entry
	r.order = append(r.order, topic)
	r.logger.Debug("Subscriber endpoint created",
		"topic", topic, "addr", addr, "policy", policy.String(), "type", payloadType.String())
	return entry, nil
}

// AddCallback appends cb to the callbacks of topic's subscriber.
func (r *Registry) AddCallback(topic string, cb Callback) error {
	if cb == nil {
		return &TopicError{
			Type:    ErrorValidationFailed,
			Topic:   topic,
			Message: "callback cannot be nil",
		}
	}

	r.mu.RLock()
	entry, ok := r.subscribers[topic]
	r.mu.RUnlock()
	if !ok {
		return &TopicError{
			Type:    ErrorTopicNotFound,
			Topic:   topic,
			Message: "no subscriber bound",
		}
	}

	n := entry.addCallback(cb)
	r.logger.Debug("Callback registered", "topic", topic, "callbacks", n)
	return nil
}

// Subscriptions returns the subscriber entries in the order their topics
// were first bound.
func (r *Registry) Subscriptions() []*SubscriberEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*SubscriberEntry, 0, len(r.order))
	for _, topic := range r.order {
		out = append(out, r.subscribers[topic])
	}
	return out
}

// Lookup returns the subscriber entry of topic.
func (r *Registry) Lookup(topic string) (*SubscriberEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.subscribers[topic]
	return entry, ok
}

// Address returns the address topic resolves to, or a validation error
// for a malformed topic name or an unusable address.
func (r *Registry) Address(topic string) (string, error) {
	return r.resolve(topic)
}

// Stats returns registry statistics
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := RegistryStats{
		Publishers:  len(r.publishers),
		Subscribers: len(r.subscribers),
	}
	for _, entry := range r.publishers {
		stats.Endpoints = append(stats.Endpoints, entry.Publisher.Stats())
	}
	for _, topic := range r.order {
		entry := r.subscribers[topic]
		stats.Callbacks += len(entry.Callbacks())
		stats.Endpoints = append(stats.Endpoints, entry.Subscriber.Stats())
	}
	return stats
}

// Close closes every endpoint. Later binds fail with ErrorRegistryClosed.
// It is idempotent.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	pubs := r.publishers
	subs := r.subscribers
	r.mu.Unlock()

	var errs []error
	for topic, entry := range subs {
		if err := entry.Subscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscriber %s: %w", topic, err))
		}
	}
	for topic, entry := range pubs {
		if err := entry.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher %s: %w", topic, err))
		}
	}

	r.logger.Debug("Registry closed", "publishers", len(pubs), "subscribers", len(subs))
	return errors.Join(errs...)
}

// resolve validates topic and returns its address. It reads only state
// fixed at construction.
func (r *Registry) resolve(topic string) (string, error) {
	if err := r.validator.ValidateName(topic); err != nil {
		return "", err
	}
	addr := r.addresses.Resolve(topic)
	if err := r.validator.ValidateAddress(topic, addr); err != nil {
		return "", err
	}
	return addr, nil
}

func (r *Registry) closedError(topic string) error {
	return &TopicError{
		Type:    ErrorRegistryClosed,
		Topic:   topic,
		Message: "registry closed",
	}
}

func (r *Registry) logPolicyIgnored(topic string, bound, requested transport.Policy) {
	if bound != requested {
		r.logger.Debug("Endpoint already bound, requested policy ignored",
			"topic", topic, "policy", bound.String(), "requested", requested.String())
	}
}
