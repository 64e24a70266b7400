package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TopicScheduleChanged       = "clinic.schedule.changed"
	TopicAppointmentBooked     = "clinic.appointment.booked"
	TopicAppointmentCancelled  = "clinic.appointment.cancelled"
	TopicBlackoutDatesImported = "clinic.blackouts.imported"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Publisher defines the interface for publishing domain events
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
}

// Event is the envelope every message on the broker carries.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

func NewEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

type Handler func(ctx context.Context, event Event) error

type MessageBroker interface {
	Publisher
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }
