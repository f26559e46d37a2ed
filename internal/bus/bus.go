// Package bus carries notifications from the agent core to presentation
// sinks (the pet window, the presence hub, metrics).
//
// Handlers run on their own goroutines and must not touch agent state; they
// read the published snapshot instead.
package bus

import (
	"sync"
	"sync/atomic"
)

// EventType identifies different event types.
type EventType string

const (
	// Conversation events
	EventTypeSpoke EventType = "agent.spoke" // the pet said something
	EventTypeHeard EventType = "agent.heard" // the user said or typed something

	// State events
	EventTypeActivityChanged EventType = "activity.changed"
	EventTypeMoodChanged     EventType = "mood.changed"

	// Speech subsystem events
	EventTypeSpeakingStarted  EventType = "speech.speaking_started"
	EventTypeSpeakingStopped  EventType = "speech.speaking_stopped"
	EventTypeListeningStarted EventType = "speech.listening_started"
	EventTypeListeningStopped EventType = "speech.listening_stopped"

	// AI events
	EventTypeThinkingStarted EventType = "ai.thinking_started"
	EventTypeThinkingStopped EventType = "ai.thinking_stopped"

	// Lifecycle events
	EventTypeUIClosed EventType = "ui.closed"
	EventTypeShutdown EventType = "agent.shutdown"
)

// Event represents a bus event.
type Event struct {
	Type EventType
	Data map[string]any
}

// Handler is a function that handles events.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// EventBus is a simple pub/sub event bus.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]subscription
	all      []subscription
	nextID   atomic.Uint64
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]subscription),
	}
}

// Subscribe adds a handler for an event type and returns a function that
// removes it.
func (b *EventBus) Subscribe(eventType EventType, handler Handler) func() {
	id := b.nextID.Add(1)
	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.handlers[eventType] = remove(b.handlers[eventType], id)
	}
}

// SubscribeAll adds a handler that receives every event.
func (b *EventBus) SubscribeAll(handler Handler) func() {
	id := b.nextID.Add(1)
	b.mu.Lock()
	b.all = append(b.all, subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.all = remove(b.all, id)
	}
}

func remove(subs []subscription, id uint64) []subscription {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

func (b *EventBus) snapshot(t EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	handlers := make([]Handler, 0, len(b.handlers[t])+len(b.all))
	for _, s := range b.handlers[t] {
		handlers = append(handlers, s.handler)
	}
	for _, s := range b.all {
		handlers = append(handlers, s.handler)
	}
	return handlers
}

// Publish sends an event to all subscribed handlers without waiting.
func (b *EventBus) Publish(event Event) {
	for _, handler := range b.snapshot(event.Type) {
		// Call handlers in goroutines so the publisher never blocks
		go handler(event)
	}
}

// PublishSync sends an event and waits for all handlers to complete.
func (b *EventBus) PublishSync(event Event) {
	var wg sync.WaitGroup
	for _, handler := range b.snapshot(event.Type) {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			h(event)
		}(handler)
	}
	wg.Wait()
}

// Clear removes all handlers.
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]subscription)
	b.all = nil
}
