package pubsub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ipcbus_messages_published_total",
		Help: "Cumulative number of messages handed to a publisher socket",
	}, []string{"topic"})
	sendDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ipcbus_messages_send_dropped_total",
		Help: "Cumulative number of published messages dropped because a send queue was full",
	}, []string{"topic"})
	messagesReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ipcbus_messages_received_total",
		Help: "Cumulative number of frames taken off a subscriber socket by dispatch",
	}, []string{"topic"})
	decodeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ipcbus_messages_decode_errors_total",
		Help: "Cumulative number of received frames dropped because they failed to decode",
	}, []string{"topic"})
	callbackPanicsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ipcbus_messages_callback_panics_total",
		Help: "Cumulative number of callback invocations that panicked",
	}, []string{"topic"})
	dispatchUnits = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ipcbus_dispatch_units",
		Help: "Number of running per-topic dispatch loops",
	})
)
