package events

import (
	"encoding/json"
	"sync"
	"time"

	"safepaw/internal/models"
)

const (
	EventBookingCreated        = "booking_created"
	EventBookingAccepted       = "booking_accepted"
	EventBookingDeclined       = "booking_declined"
	EventBookingCancelled      = "booking_cancelled"
	EventBookingPendingPayment = "booking_pending_payment"
	EventBookingPaid           = "booking_paid"
)

// BookingEventTypes lists every booking event type.
func BookingEventTypes() []string {
	return []string{
		EventBookingCreated,
		EventBookingAccepted,
		EventBookingDeclined,
		EventBookingCancelled,
		EventBookingPendingPayment,
		EventBookingPaid,
	}
}

// EventTypeForStatus maps a transition target to its event type.
func EventTypeForStatus(s models.BookingStatus) string {
	switch s {
	case models.StatusAccepted:
		return EventBookingAccepted
	case models.StatusDeclined:
		return EventBookingDeclined
	case models.StatusCancelled:
		return EventBookingCancelled
	case models.StatusPendingPayment:
		return EventBookingPendingPayment
	case models.StatusPaid:
		return EventBookingPaid
	default:
		return EventBookingCreated
	}
}

// BookingEventPayload describes the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID    string    `json:"booking_id"`
	OwnerID      string    `json:"owner_id"`
	CaregiverID  string    `json:"caregiver_id"`
	Service      string    `json:"service"`
	Status       string    `json:"status"`
	StartDate    string    `json:"start_date"`
	PetName      string    `json:"pet_name,omitempty"`
	PriceInCents int64     `json:"price_in_cents"`
	ChangedBy    string    `json:"changed_by,omitempty"`
	ChangedByID  string    `json:"changed_by_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func NewBookingEventPayload(b *models.Booking, actor models.Actor) BookingEventPayload {
	return BookingEventPayload{
		BookingID:    b.ID,
		OwnerID:      b.OwnerID,
		CaregiverID:  b.CaregiverID,
		Service:      b.Service,
		Status:       string(b.Status),
		StartDate:    b.StartDate,
		PetName:      b.PetName,
		PriceInCents: b.PriceInCents,
		ChangedBy:    string(actor.Kind),
		ChangedByID:  actor.ID,
		OccurredAt:   b.UpdatedAt,
	}
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the JSON payload into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
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

// SubscribeAll registers handler for every booking event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	for _, t := range BookingEventTypes() {
		b.Subscribe(t, handler)
	}
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
		return nil
	}

	ev, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	b.Publish(&ev)
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
