package pubsub

import (
	"reflect"
	"strings"

	"github.com/underbots/ipcbus/internal/topicmgr"
	"github.com/underbots/ipcbus/internal/wire"
)

// RegisterCallback subscribes cb to topic. Every message received on the
// topic is decoded into a fresh T and passed to cb. The first registration
// on a topic connects its subscriber endpoint, with the policy chosen by
// KeepOnlyLast (default true) unless the topic has a configured policy.
//
// A topic carries one payload type; registering a different T for a topic
// that already has callbacks is a configuration error. Callbacks must be
// registered before Start.
func RegisterCallback[T any](b *Bus, topic string, cb func(T), opts ...EndpointOption) error {
	if cb == nil {
		return &topicmgr.TopicError{
			Type:    topicmgr.ErrorValidationFailed,
			Topic:   topic,
			Message: "callback cannot be nil",
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.closed:
		return ErrBusClosed
	case b.started:
		return ErrAlreadyStarted
	}

	policy := b.policyFor(topic, newEndpointOptions(opts))
	if _, err := b.registry.BindSubscriber(topic, reflect.TypeFor[T](), decoderFor[T](b.codec, topic), policy); err != nil {
		return err
	}
	return b.registry.AddCallback(topic, func(msg any) {
		v, _ := msg.(T)
		cb(v)
	})
}

func decoderFor[T any](codec wire.Codec, topic string) topicmgr.DecodeFunc {
	return func(frame []byte) (any, error) {
		return decode[T](codec, topic, frame)
	}
}

// decode unmarshals frame into a newly allocated T. For pointer types the
// pointee is allocated, so every message gets its own value.
func decode[T any](codec wire.Codec, topic string, frame []byte) (T, error) {
	var zero T
	if t := reflect.TypeFor[T](); t.Kind() == reflect.Pointer {
		ptr := reflect.New(t.Elem())
		if err := wire.Decode(codec, topic, frame, ptr.Interface()); err != nil {
			return zero, err
		}
		return ptr.Convert(t).Interface().(T), nil
	}

	var v T
	if err := wire.Decode(codec, topic, frame, &v); err != nil {
		return zero, err
	}
	return v, nil
}

// Descriptor describes a topic independent of its payload type.
type Descriptor interface {
	Name() string
	Description() string
	PayloadType() reflect.Type
	Fields() []string
}

// Topic[T] binds a topic name to its payload type so publishers and
// subscribers cannot disagree on it.
type Topic[T any] struct {
	name        string
	description string
}

var _ Descriptor = Topic[struct{}]{}

// NewTopic defines a typed topic.
func NewTopic[T any](name, description string) Topic[T] {
	return Topic[T]{name: name, description: description}
}

// Name returns the topic name.
func (t Topic[T]) Name() string {
	return t.name
}

// Description returns the human-readable topic description.
func (t Topic[T]) Description() string {
	return t.description
}

// PayloadType returns the reflect.Type of T.
func (t Topic[T]) PayloadType() reflect.Type {
	return reflect.TypeFor[T]()
}

// Fields lists the JSON field names of the payload, for documentation.
func (t Topic[T]) Fields() []string {
	rt := t.PayloadType()
	if rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt.Kind() != reflect.Struct {
		return nil
	}

	fields := make([]string, 0, rt.NumField())
	for i := range rt.NumField() {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		switch name {
		case "-":
			continue
		case "":
			name = field.Name
		}
		fields = append(fields, name)
	}
	return fields
}

// Publish sends payload on the topic. The compiler ensures it is a T.
func (t Topic[T]) Publish(b *Bus, payload T, opts ...EndpointOption) error {
	return b.Publish(t.name, payload, opts...)
}

// Subscribe registers cb for the topic.
func (t Topic[T]) Subscribe(b *Bus, cb func(T), opts ...EndpointOption) error {
	return RegisterCallback(b, t.name, cb, opts...)
}
