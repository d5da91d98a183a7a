package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventBookingCreated   = "booking_created"
	EventBookingConfirmed = "booking_confirmed"
	EventBookingCancelled = "booking_cancelled"
	EventBookingCompleted = "booking_completed"
	EventBookingExpired   = "booking_expired"
	EventRefundFailed     = "payment_refund_failed"
)

// Sheet sync task types carried alongside booking events.
const (
	TaskUpsert       = "upsert"
	TaskUpdateStatus = "update_status"
)

// BookingEventPayload describes the minimal booking snapshot for event
// consumers (UI refresh channels, notifiers, sync workers).
type BookingEventPayload struct {
	BookingID     string `json:"booking_id"`
	CourtID       string `json:"court_id"`
	VenueID       string `json:"venue_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	RequesterID   string `json:"requester_id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	Price         int64  `json:"price"`
	Currency      string `json:"currency"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Handler reacts to an event.
type Handler func(event *Event) error

// Bus provides in-process pub/sub for events.
type Bus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
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
func (b *Bus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
