package port

import (
	"context"

	"github.com/rl1809/branch-delivery/internal/core/domain"
)

// StockLedger holds quantity-on-hand per (location, item). Every mutation on a
// key is linearizable and no balance ever goes negative.
type StockLedger interface {
	// Decrement subtracts qty and returns the new balance, or
	// domain.ErrInsufficientStock leaving the balance untouched.
	Decrement(ctx context.Context, key domain.StockKey, qty int, reference string) (int, error)

	// Increment adds qty and returns the new balance.
	Increment(ctx context.Context, key domain.StockKey, qty int, reference string) (int, error)

	// SetStock overwrites the balance (stock take / seeding). Only a change in
	// the balance is journalled as a set movement.
	SetStock(ctx context.Context, key domain.StockKey, qty int) error

	// Quantity returns the current balance; unknown keys hold zero.
	Quantity(ctx context.Context, key domain.StockKey) (int, error)

	// Movements returns the journal for key, oldest first.
	Movements(ctx context.Context, key domain.StockKey) ([]domain.StockMovement, error)
}
