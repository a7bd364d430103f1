package events

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

const (
	EventUpdateEnqueued  = "update_enqueued"
	EventUpdateSynced    = "update_synced"
	EventUpdateConflict  = "update_conflict"
	EventUpdateExhausted = "update_exhausted"
	EventQueueCleared    = "queue_cleared"
	EventSyncCompleted   = "sync_completed"
)

// UpdateEventPayload describes the minimal update snapshot for event consumers.
type UpdateEventPayload struct {
	UpdateID      string `json:"update_id"`
	ComponentID   string `json:"component_id"`
	MilestoneName string `json:"milestone_name"`
	RetryCount    int    `json:"retry_count,omitempty"`
	Error         string `json:"error,omitempty"`
}

// SyncEventPayload summarizes one drain pass.
type SyncEventPayload struct {
	SyncedCount     int    `json:"synced_count"`
	FailedCount     int    `json:"failed_count"`
	ServerWinsCount int    `json:"server_wins_count"`
	Status          string `json:"status"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return errors.New("event bus is nil")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: data})
	return nil
}
