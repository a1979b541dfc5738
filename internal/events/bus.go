// Package events provides a lightweight in-process pub/sub bus used to
// push portfolio changes to streaming clients and background jobs.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies the kind of event
type EventType string

const (
	TradeExecuted    EventType = "TradeExecuted"
	PricesRefreshed  EventType = "PricesRefreshed"
	PortfolioChanged EventType = "PortfolioChanged"
)

// Event is a single published occurrence
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Module    string      `json:"module"`
	Data      interface{} `json:"data,omitempty"`
}

// Handler receives published events. Handlers run on the publisher's
// goroutine and must not block.
type Handler func(event *Event)

// Bus is a simple synchronous publish/subscribe event bus
type Bus struct {
	mu          sync.RWMutex
	handlers    map[EventType][]Handler
	allHandlers map[int]Handler
	nextID      int
	log         zerolog.Logger
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers:    make(map[EventType][]Handler),
		allHandlers: make(map[int]Handler),
		log:         log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for an event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll registers a handler for every event type and returns a
// function that removes it. Used by streaming connections that come
// and go.
func (b *Bus) SubscribeAll(handler Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.allHandlers[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.allHandlers, id)
		b.mu.Unlock()
	}
}

// Publish delivers an event to all handlers subscribed to its type.
// A panicking handler is logged and does not affect other handlers.
func (b *Bus) Publish(eventType EventType, module string, data interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Module:    module,
		Data:      data,
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[eventType])+len(b.allHandlers))
	handlers = append(handlers, b.handlers[eventType]...)
	for _, h := range b.allHandlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.safeCall(handler, event)
	}
}

func (b *Bus) safeCall(handler Handler, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Interface("panic", r).
				Str("event_type", string(event.Type)).
				Msg("Event handler panicked")
		}
	}()
	handler(event)
}

// SubscriberCount returns the number of handlers for an event type
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}
