package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/proto"
)

// Codec converts typed payloads to and from their canonical binary form.
type Codec interface {
	// Name identifies the codec in configuration ("json", "proto").
	Name() string
	// Marshal serializes v.
	Marshal(v any) ([]byte, error)
	// Unmarshal parses data into v, which must be a non-nil pointer.
	Unmarshal(data []byte, v any) error
}

var (
	// JSON encodes payloads with encoding/json.
	JSON Codec = jsonCodec{}
	// Proto encodes payloads that implement proto.Message.
	Proto Codec = protoCodec{}
)

// ErrUnknownCodec is returned by Lookup for an unregistered codec name.
var ErrUnknownCodec = errors.New("unknown codec")

// Lookup returns the codec registered under name.
func Lookup(name string) (Codec, error) {
	switch name {
	case "", JSON.Name():
		return JSON, nil
	case Proto.Name():
		return Proto, nil
	default:
		return nil, fmt.Errorf("%w %q (must be json or proto)", ErrUnknownCodec, name)
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal is strict: unknown fields and trailing bytes are rejected so
// that a payload meant for another topic type does not silently decode.
func (jsonCodec) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("unexpected trailing data after JSON value")
	}
	return nil
}

type protoCodec struct{}

func (protoCodec) Name() string { return "proto" }

func (protoCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("proto codec: %T does not implement proto.Message", v)
	}
	return proto.Marshal(m)
}

func (protoCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("proto codec: %T does not implement proto.Message", v)
	}
	return proto.Unmarshal(data, m)
}
