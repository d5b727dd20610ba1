package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "barcode_ws_subscribers",
		Help: "Number of live event subscribers.",
	})
	publishedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barcode_events_published_total",
		Help: "Events handed to the hub, by event type.",
	}, []string{"event_type"})
	droppedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "barcode_ws_dropped_messages_total",
		Help: "Messages dropped because a subscriber buffer was full.",
	})
)
