package pubsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/underbots/ipcbus/internal/topicmgr"
	"github.com/underbots/ipcbus/internal/transport"
)

// dispatch receives frames for one topic and hands each decoded message
// to the topic's callbacks in registration order. It returns when the bus
// stops, the subscriber closes, or a callback panics under
// StopTopicOnPanic.
func (b *Bus) dispatch(entry *topicmgr.SubscriberEntry, callbacks []topicmgr.Callback) {
	topic := entry.Topic
	logger := b.logger.With("topic", topic)
	defer b.unitDone(topic)

	logger.Debug("Dispatch loop started", "callbacks", len(callbacks), "addr", entry.Addr)
	defer logger.Debug("Dispatch loop stopped")

	for {
		select {
		case <-b.stop:
			return
		default:
		}

		frame, err := entry.Subscriber.Poll(b.pollInterval)
		switch {
		case err == nil:
		case errors.Is(err, transport.ErrTimeout):
			continue
		case errors.Is(err, transport.ErrClosed):
			return
		default:
			logger.Error("Receive failed, stopping dispatch", "error", err)
			return
		}
		messagesReceivedTotal.WithLabelValues(topic).Inc()

		msg, err := entry.Decode(frame)
		if err != nil {
			decodeErrorsTotal.WithLabelValues(topic).Inc()
			logger.Warn("Dropping message that failed to decode", "error", err, "size", len(frame))
			continue
		}

		if !b.deliver(logger, topic, callbacks, msg) {
			return
		}
	}
}

// deliver invokes every callback with msg. It reports false when the loop
// must stop because of the callback policy.
func (b *Bus) deliver(logger *slog.Logger, topic string, callbacks []topicmgr.Callback, msg any) bool {
	_, span := startDispatchSpan(context.Background(), b.tracer, topic, len(callbacks))
	defer span.End()

	for i, cb := range callbacks {
		recovered, panicked := invoke(cb, msg)
		if !panicked {
			continue
		}

		callbackPanicsTotal.WithLabelValues(topic).Inc()
		err := fmt.Errorf("callback %d panicked: %v", i, recovered)
		recordSpanError(span, err)
		logger.Error("Callback panicked", "callback", i, "panic", recovered, "policy", b.callbackPolicy.String())

		if b.callbackPolicy == StopTopicOnPanic {
			return false
		}
	}
	return true
}

func invoke(cb topicmgr.Callback, msg any) (recovered any, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			recovered, panicked = r, true
		}
	}()
	cb(msg)
	return nil, false
}
