package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	// ErrMalformedEnvelope is returned when a frame does not start with a
	// well formed, length-delimited topic tag.
	ErrMalformedEnvelope = errors.New("malformed envelope")
	// ErrTopicMismatch is returned when the envelope's tag names a
	// different topic than the one the frame was received on.
	ErrTopicMismatch = errors.New("envelope topic mismatch")
)

// DecodeError reports a frame that could not be turned into a payload of
// the expected type. The payload value is never partially populated.
type DecodeError struct {
	Topic string
	Err   error
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q: %v", e.Topic, e.Err)
}

// Unwrap returns the underlying error
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Seal prefixes payload with the topic tag. The tag is the topic's byte
// length as a uvarint followed by the topic bytes, so topics that are
// byte-prefixes of one another stay distinguishable.
func Seal(topic string, payload []byte) []byte {
	frame := make([]byte, 0, protowire.SizeBytes(len(topic))+len(payload))
	frame = protowire.AppendString(frame, topic)
	return append(frame, payload...)
}

// PeekTopic returns the topic tag of frame without validating the payload.
func PeekTopic(frame []byte) (string, bool) {
	tag, n := protowire.ConsumeBytes(frame)
	if n < 0 {
		return "", false
	}
	return string(tag), true
}

// Open strips the topic tag from frame and returns the payload. It fails
// with a *DecodeError if the tag is malformed or does not equal topic.
func Open(topic string, frame []byte) ([]byte, error) {
	tag, n := protowire.ConsumeBytes(frame)
	if n < 0 {
		return nil, &DecodeError{Topic: topic, Err: fmt.Errorf("%w: %v", ErrMalformedEnvelope, protowire.ParseError(n))}
	}
	if string(tag) != topic {
		return nil, &DecodeError{Topic: topic, Err: fmt.Errorf("%w: got %q", ErrTopicMismatch, tag)}
	}
	return frame[n:], nil
}

// Encode marshals payload with codec and seals it for topic.
func Encode(codec Codec, topic string, payload any) ([]byte, error) {
	data, err := codec.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %q with %s codec: %w", topic, codec.Name(), err)
	}
	return Seal(topic, data), nil
}

// Decode opens frame for topic and unmarshals the payload into v. Every
// failure is reported as a *DecodeError.
func Decode(codec Codec, topic string, frame []byte, v any) error {
	data, err := Open(topic, frame)
	if err != nil {
		return err
	}
	if err := codec.Unmarshal(data, v); err != nil {
		return &DecodeError{Topic: topic, Err: err}
	}
	return nil
}
