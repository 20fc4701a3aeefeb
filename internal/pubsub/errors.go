package pubsub

import (
	"errors"

	"github.com/underbots/ipcbus/internal/topicmgr"
	"github.com/underbots/ipcbus/internal/transport"
	"github.com/underbots/ipcbus/internal/wire"
)

var (
	// ErrBusClosed is returned by every operation after Shutdown.
	ErrBusClosed = errors.New("pubsub: bus is shut down")
	// ErrAlreadyStarted is returned by Start when called twice and by
	// RegisterCallback once dispatch is running.
	ErrAlreadyStarted = errors.New("pubsub: dispatch already started")
)

// IsConfigurationError reports whether err was caused by how the bus or a
// topic was configured: conflicting or invalid queue policies, unusable
// addresses, invalid topic names, unknown codecs, or a topic subscribed
// with two payload types.
func IsConfigurationError(err error) bool {
	if err == nil {
		return false
	}
	if transport.IsConfigurationError(err) || errors.Is(err, wire.ErrUnknownCodec) {
		return true
	}
	var topicErr *topicmgr.TopicError
	if errors.As(err, &topicErr) {
		return topicErr.IsConfigurationError()
	}
	return false
}
