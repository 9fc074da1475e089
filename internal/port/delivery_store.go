package port

import (
	"context"
	"time"

	"github.com/rl1809/branch-delivery/internal/core/domain"
)

type ItemFilter struct {
	DeliveryID string
	Status     domain.ItemStatus // empty means any
}

// DeliveryStore persists deliveries and their items. Writes that carry a
// ledger effect apply it in the same atomic unit as the item write.
type DeliveryStore interface {
	CreateDelivery(ctx context.Context, d domain.Delivery) error
	GetDelivery(ctx context.Context, id string) (domain.Delivery, error)
	// CloseDelivery stamps CompletedAt if every item of the delivery is
	// Received or Returned, otherwise it fails with ErrDeliveryIncomplete.
	// Closing a closed delivery returns it unchanged.
	CloseDelivery(ctx context.Context, id string, at time.Time) (domain.Delivery, error)

	// InsertItem admits a new Pending item and debits item.DeclaredQuantity at
	// item.StockKey() as one unit. It fails with ErrDuplicateDeliveryItem when
	// the delivery already holds the same item identity, ErrInsufficientStock
	// when the debit cannot be covered, and ErrDeliveryClosed when the
	// delivery was completed. Nothing is written on failure.
	InsertItem(ctx context.Context, item domain.DeliveryItem) error

	// UpdateItem replaces the item if the stored version equals
	// expectedVersion, otherwise fails with ErrConcurrentModification. A
	// positive credit is added to item.StockKey() in the same unit.
	UpdateItem(ctx context.Context, item domain.DeliveryItem, expectedVersion int, credit int) error

	GetItem(ctx context.Context, id string) (domain.DeliveryItem, error)
	ListItems(ctx context.Context, f ItemFilter) ([]domain.DeliveryItem, error)
}

// Store is a backend serving both the ledger and the delivery records.
type Store interface {
	StockLedger
	DeliveryStore
}
