package domain

import (
	"fmt"
	"strings"
	"time"
)

type ItemStatus string

const (
	ItemStatusPending       ItemStatus = "Pending"
	ItemStatusReceived      ItemStatus = "Received"
	ItemStatusCountMismatch ItemStatus = "Count mismatch"
	ItemStatusReturned      ItemStatus = "Returned"
)

func (s ItemStatus) Valid() bool {
	switch s {
	case ItemStatusPending, ItemStatusReceived, ItemStatusCountMismatch, ItemStatusReturned:
		return true
	}
	return false
}

// Settled reports whether the status counts towards delivery completion.
func (s ItemStatus) Settled() bool {
	return s == ItemStatusReceived || s == ItemStatusReturned
}

const (
	MarkedByUnmarked = "Not Marked"
	MarkedByStaff    = "Staff"
)

// MaxIdentityLength bounds receiver and assignee identities; the SQL columns
// holding them are VARCHAR(128).
const MaxIdentityLength = 128

type Resolution string

const (
	ResolutionWriteOff       Resolution = "write_off"
	ResolutionReturnToSender Resolution = "return_to_sender"
)

func (r Resolution) Valid() bool {
	return r == ResolutionWriteOff || r == ResolutionReturnToSender
}

type DeliveryItem struct {
	ID               string       `json:"id"`
	DeliveryID       string       `json:"delivery_id"`
	Item             ItemIdentity `json:"item"`
	SourceLocation   string       `json:"source_location"`
	DeclaredQuantity int          `json:"declared_quantity"`
	ReceivedQuantity int          `json:"received_quantity"`
	ReturnedQuantity int          `json:"returned_quantity"`
	Status           ItemStatus   `json:"status"`
	MarkedBy         string       `json:"marked_by"`
	AssignedTo       string       `json:"assigned_to,omitempty"`
	Resolution       Resolution   `json:"resolution,omitempty"`
	Version          int          `json:"version"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

func (i DeliveryItem) StockKey() StockKey {
	return StockKey{Location: i.SourceLocation, Item: i.Item}
}

// NewDeliveryItem builds a Pending item. The caller is responsible for the
// matching ledger debit.
func NewDeliveryItem(id, deliveryID string, item ItemIdentity, source string, declared int, assignedTo string, now time.Time) (DeliveryItem, error) {
	if declared < 1 {
		return DeliveryItem{}, ErrInvalidQuantity
	}
	if err := (StockKey{Location: source, Item: item}).Validate(); err != nil {
		return DeliveryItem{}, err
	}
	if len(assignedTo) > MaxIdentityLength {
		return DeliveryItem{}, ErrInvalidReceiver
	}

	return DeliveryItem{
		ID:               id,
		DeliveryID:       deliveryID,
		Item:             item,
		SourceLocation:   source,
		DeclaredQuantity: declared,
		Status:           ItemStatusPending,
		MarkedBy:         MarkedByUnmarked,
		AssignedTo:       assignedTo,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// Receive records the counted quantity. It returns the next state of the item
// and never mutates the receiver.
func (i DeliveryItem) Receive(receiver string, actual int, now time.Time) (DeliveryItem, error) {
	if i.Status != ItemStatusPending && i.Status != ItemStatusCountMismatch {
		return DeliveryItem{}, ErrAlreadyFinalized
	}
	if actual < 0 || actual > i.DeclaredQuantity-i.ReturnedQuantity {
		return DeliveryItem{}, ErrInvalidQuantity
	}

	next := i
	next.ReceivedQuantity = actual
	if actual == i.DeclaredQuantity {
		next.Status = ItemStatusReceived
		// A full count is always attributed to staff, whoever pressed the button.
		next.MarkedBy = MarkedByStaff
	} else {
		if strings.TrimSpace(receiver) == "" || len(receiver) > MaxIdentityLength {
			return DeliveryItem{}, ErrInvalidReceiver
		}
		next.Status = ItemStatusCountMismatch
		next.MarkedBy = receiver
	}
	next.Version++
	next.UpdatedAt = now
	return next, nil
}

// Resolve settles a count mismatch. The returned int is the quantity to credit
// back to the source location (zero for a write-off).
func (i DeliveryItem) Resolve(r Resolution, now time.Time) (DeliveryItem, int, error) {
	if !r.Valid() {
		return DeliveryItem{}, 0, fmt.Errorf("%w: unknown resolution %q", ErrInvalidTransition, r)
	}
	if i.Status != ItemStatusCountMismatch {
		return DeliveryItem{}, 0, ErrInvalidTransition
	}

	next := i
	next.ReturnedQuantity = i.DeclaredQuantity - i.ReceivedQuantity
	next.Status = ItemStatusReturned
	next.Resolution = r
	next.Version++
	next.UpdatedAt = now

	credit := 0
	if r == ResolutionReturnToSender {
		credit = next.ReturnedQuantity
	}
	return next, credit, nil
}

// Validate checks the quantity/status invariants of a persisted item.
func (i DeliveryItem) Validate() error {
	if i.DeclaredQuantity < 1 || i.ReceivedQuantity < 0 || i.ReturnedQuantity < 0 {
		return ErrInvalidQuantity
	}
	sum := i.ReceivedQuantity + i.ReturnedQuantity
	if sum > i.DeclaredQuantity {
		return fmt.Errorf("%w: received %d + returned %d exceeds declared %d",
			ErrInvalidQuantity, i.ReceivedQuantity, i.ReturnedQuantity, i.DeclaredQuantity)
	}

	switch i.Status {
	case ItemStatusPending:
		if i.ReceivedQuantity != 0 || i.ReturnedQuantity != 0 {
			return fmt.Errorf("%w: pending item has recorded quantities", ErrInvalidTransition)
		}
	case ItemStatusReceived:
		if i.ReceivedQuantity != i.DeclaredQuantity || i.MarkedBy != MarkedByStaff {
			return fmt.Errorf("%w: received item does not match declared quantity", ErrInvalidTransition)
		}
	case ItemStatusCountMismatch:
		if i.ReceivedQuantity >= i.DeclaredQuantity || i.ReturnedQuantity != 0 {
			return fmt.Errorf("%w: mismatch item out of range", ErrInvalidTransition)
		}
	case ItemStatusReturned:
		if sum != i.DeclaredQuantity {
			return fmt.Errorf("%w: returned item does not settle declared quantity", ErrInvalidTransition)
		}
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, i.Status)
	}
	return nil
}
