package events

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

const (
	EventRequestCreated         = "request_created"
	EventRequestAccepted        = "request_accepted"
	EventRequestRejected        = "request_rejected"
	EventRequestStarted         = "request_started"
	EventRequestCompleted       = "request_completed"
	EventRequestCancelled       = "request_cancelled"
	EventRequestStatusUpdated   = "request_status_updated"
	EventMechanicLocationUpdate = "mechanic_location_updated"
)

// RequestEvents lists every event type emitted for request transitions.
var RequestEvents = []string{
	EventRequestCreated,
	EventRequestAccepted,
	EventRequestRejected,
	EventRequestStarted,
	EventRequestCompleted,
	EventRequestCancelled,
	EventRequestStatusUpdated,
}

// RequestEventPayload is the request snapshot carried by activity events.
type RequestEventPayload struct {
	ID          int64     `json:"id"`
	RequestID   string    `json:"request_id"`
	ActorID     int64     `json:"actor_id"`
	ActorRole   string    `json:"actor_role"`
	EndUserID   int64     `json:"end_user_id"`
	MechanicID  *int64    `json:"mechanic_id,omitempty"`
	FromStatus  string    `json:"from_status,omitempty"`
	Status      string    `json:"status"`
	ServiceType string    `json:"service_type,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	Cost        *float64  `json:"cost,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// LocationEventPayload describes a mechanic location change.
type LocationEventPayload struct {
	ActorID    int64     `json:"actor_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Address    string    `json:"address,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
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

// Subscribe registers a handler for the given event types.
func (b *EventBus) Subscribe(handler EventHandler, eventTypes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range eventTypes {
		b.subscribers[t] = append(b.subscribers[t], handler)
	}
}

// Publish runs subscribers of the event type synchronously and joins their errors.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&event)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now().UTC()}, nil
}
