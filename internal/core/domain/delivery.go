package domain

import (
	"strings"
	"time"
)

type Completion string

const (
	CompletionPending  Completion = "Pending"
	CompletionComplete Completion = "Complete"
)

type Delivery struct {
	ID               string     `json:"id"`
	SenderLocation   string     `json:"sender_location"`
	ReceiverLocation string     `json:"receiver_location"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func NewDelivery(id, sender, receiver string, now time.Time) (Delivery, error) {
	sender = strings.TrimSpace(sender)
	receiver = strings.TrimSpace(receiver)
	if sender == "" || receiver == "" || sender == receiver {
		return Delivery{}, ErrInvalidLocation
	}
	if strings.ContainsAny(sender+receiver, ":|") {
		return Delivery{}, ErrInvalidLocation
	}
	return Delivery{
		ID:               id,
		SenderLocation:   sender,
		ReceiverLocation: receiver,
		CreatedAt:        now,
	}, nil
}

func (d Delivery) Closed() bool {
	return d.CompletedAt != nil
}

// CompletionOf derives the delivery status from its items. An empty delivery
// has nothing to confirm yet and stays Pending.
func CompletionOf(items []DeliveryItem) Completion {
	if len(items) == 0 {
		return CompletionPending
	}
	for _, it := range items {
		if !it.Status.Settled() {
			return CompletionPending
		}
	}
	return CompletionComplete
}

type Progress struct {
	Total      int        `json:"total"`
	Pending    int        `json:"pending"`
	Received   int        `json:"received"`
	Mismatched int        `json:"mismatched"`
	Returned   int        `json:"returned"`
	Completion Completion `json:"completion"`
}

func ProgressOf(items []DeliveryItem) Progress {
	p := Progress{Total: len(items), Completion: CompletionOf(items)}
	for _, it := range items {
		switch it.Status {
		case ItemStatusPending:
			p.Pending++
		case ItemStatusReceived:
			p.Received++
		case ItemStatusCountMismatch:
			p.Mismatched++
		case ItemStatusReturned:
			p.Returned++
		}
	}
	return p
}
