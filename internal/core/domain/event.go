package domain

import "time"

type EventType string

const (
	EventItemCreated  EventType = "ItemCreated"
	EventItemReceived EventType = "ItemReceived"
	EventItemResolved EventType = "ItemResolved"
	// EventDeliveryCompleted is at-least-once: when the last two items of a
	// delivery settle at the same time both writers may announce it.
	// Consumers key it by DeliveryID.
	EventDeliveryCompleted EventType = "DeliveryCompleted"
)

type Event struct {
	Type       EventType     `json:"type"`
	DeliveryID string        `json:"delivery_id"`
	Item       *DeliveryItem `json:"item,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}
