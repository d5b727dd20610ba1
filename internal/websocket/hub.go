package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type EventKind string

const (
	BarcodeCreated EventKind = "barcode:created"
	BarcodeUpdated EventKind = "barcode:updated"
	BarcodeDeleted EventKind = "barcode:deleted"
)

// Event is the envelope written to every subscriber.
type Event struct {
	EventType EventKind `json:"event_type"`
	Payload   any       `json:"payload"`
}

const sendBufferSize = 256

// Subscription receives every event published while it is attached.
// Messages is closed when the subscription is removed or the hub stops.
type Subscription struct {
	send chan []byte
}

func (s *Subscription) Messages() <-chan []byte {
	return s.send
}

// Hub fans published events out to all subscribers. A single goroutine (Run)
// owns the subscriber set and handles subscribe, unsubscribe and publish
// requests in the order they arrive, so every subscriber observes the same
// event order. There is no history: a subscriber only sees events published
// after Subscribe returned.
type Hub struct {
	log         *zap.SugaredLogger
	subscribers map[*Subscription]struct{}
	register    chan *Subscription
	unregister  chan *Subscription
	broadcast   chan []byte
	done        chan struct{}
	count       atomic.Int64
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		log:         log,
		subscribers: make(map[*Subscription]struct{}),
		register:    make(chan *Subscription),
		unregister:  make(chan *Subscription),
		broadcast:   make(chan []byte),
		done:        make(chan struct{}),
	}
}

// Run serves the hub until ctx is done, then closes every subscription.
// Subscribe, Unsubscribe and Publish block until Run is started.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for sub := range h.subscribers {
				h.remove(sub)
			}
			return
		case sub := <-h.register:
			h.subscribers[sub] = struct{}{}
			h.count.Store(int64(len(h.subscribers)))
			subscribersGauge.Set(float64(len(h.subscribers)))
		case sub := <-h.unregister:
			h.remove(sub)
		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

func (h *Hub) remove(sub *Subscription) {
	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	delete(h.subscribers, sub)
	close(sub.send)
	h.count.Store(int64(len(h.subscribers)))
	subscribersGauge.Set(float64(len(h.subscribers)))
}

func (h *Hub) deliver(message []byte) {
	for sub := range h.subscribers {
		select {
		case sub.send <- message:
		default:
			droppedMessages.Inc()
			h.log.Warnw("subscriber send buffer is full, dropping message")
		}
	}
}

// Subscribe attaches a new subscriber. After the hub has stopped it returns
// a subscription whose channel is already closed.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{send: make(chan []byte, sendBufferSize)}
	select {
	case h.register <- sub:
	case <-h.done:
		close(sub.send)
	}
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	select {
	case h.unregister <- sub:
	case <-h.done:
	}
}

// Publish delivers the event to every current subscriber without waiting on
// any of them. A subscriber whose buffer is full misses the event.
func (h *Hub) Publish(kind EventKind, payload any) {
	message, err := json.Marshal(Event{EventType: kind, Payload: payload})
	if err != nil {
		h.log.Errorw("failed to marshal event", "event_type", kind, "error", err)
		return
	}

	select {
	case h.broadcast <- message:
		publishedEvents.WithLabelValues(string(kind)).Inc()
	case <-h.done:
	}
}

// Count returns the number of attached subscribers.
func (h *Hub) Count() int {
	return int(h.count.Load())
}
