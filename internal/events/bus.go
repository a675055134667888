// Package events provides a typed in-process pub/sub bus.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies a category of event
type EventType string

const (
	// RunStateChanged fires on every strategy run state transition
	RunStateChanged EventType = "run_state_changed"
	// OrdersPlanned fires when a run finishes computing its order list
	OrdersPlanned EventType = "orders_planned"
	// OrdersSubmitted fires after orders have been handed to the broker
	OrdersSubmitted EventType = "orders_submitted"
	// SignalGateFired fires when a conditional gate suppresses submission
	SignalGateFired EventType = "signal_gate_fired"
	// SweepCompleted fires when a full tenant sweep finishes
	SweepCompleted EventType = "sweep_completed"
	// BackupCompleted fires after a database backup upload
	BackupCompleted EventType = "backup_completed"
)

// Event is one published occurrence
type Event struct {
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	Source    string      `json:"source"`
	Data      interface{} `json:"data,omitempty"`
}

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine and must not block; slow consumers should hand
// off to a buffered channel.
type Handler func(event *Event)

// Bus is a simple typed pub/sub bus
type Bus struct {
	log         zerolog.Logger
	subscribers map[EventType][]Handler
	mu          sync.RWMutex
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		log:         log.With().Str("component", "event_bus").Logger(),
		subscribers: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for one event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Emit publishes an event to all subscribers of its type
func (b *Bus) Emit(eventType EventType, source string, data interface{}) {
	event := &Event{
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.subscribers[eventType]))
	copy(handlers, b.subscribers[eventType])
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}

	b.log.Debug().
		Str("event_type", string(eventType)).
		Str("source", source).
		Int("subscribers", len(handlers)).
		Msg("Event emitted")
}
