// Package events is the in-process event bus: the monitor publishes one
// event per terminal request, and whatever subscriber is wired in (the
// admin websocket stream, tests) receives it. Subscribers are capability
// values; nothing in the core names a concrete transport.
package events

import (
	"context"
	"sync"
	"time"
)

// TopicRequestCompleted carries one terminal request-log row per client
// request.
const TopicRequestCompleted = "request.completed"

// Event is one published message.
type Event struct {
	Topic     string            `json:"topic"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   any               `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Handler consumes one event. Handlers run synchronously on the
// publisher's goroutine; slow consumers should hand off internally.
type Handler func(context.Context, Event)

// Publisher is the capability the monitor holds.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any, metadata map[string]string)
}

type subscription struct {
	id      int64
	topic   string
	handler Handler
}

// Hub fans events out to topic subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   []subscription
	lastID int64
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// Subscribe registers handler for topic and returns the matching
// unsubscribe function.
func (h *Hub) Subscribe(topic string, handler Handler) func() {
	h.mu.Lock()
	h.lastID++
	id := h.lastID
	h.subs = append(h.subs, subscription{id: id, topic: topic, handler: handler})
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, sub := range h.subs {
			if sub.id == id {
				h.subs = append(h.subs[:i], h.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers the event to every subscriber of topic.
func (h *Hub) Publish(ctx context.Context, topic string, payload any, metadata map[string]string) {
	event := Event{
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
		Metadata:  metadata,
	}

	h.mu.RLock()
	handlers := make([]Handler, 0, len(h.subs))
	for _, sub := range h.subs {
		if sub.topic == topic {
			handlers = append(handlers, sub.handler)
		}
	}
	h.mu.RUnlock()

	for _, handler := range handlers {
		handler(ctx, event)
	}
}
