package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/branch-delivery/internal/core/domain"
	"github.com/rl1809/branch-delivery/internal/port"
)

// runStoreSuite exercises the behaviour every port.Store backend must share.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) port.Store) {
	t.Run("decrement", func(t *testing.T) { testDecrement(t, newStore(t)) })
	t.Run("decrement insufficient", func(t *testing.T) { testDecrementInsufficient(t, newStore(t)) })
	t.Run("decrement concurrent", func(t *testing.T) { testDecrementConcurrent(t, newStore(t)) })
	t.Run("increment creates balance", func(t *testing.T) { testIncrement(t, newStore(t)) })
	t.Run("movements", func(t *testing.T) { testMovements(t, newStore(t)) })
	t.Run("set stock unchanged", func(t *testing.T) { testSetStockUnchanged(t, newStore(t)) })
	t.Run("delivery not found", func(t *testing.T) { testDeliveryNotFound(t, newStore(t)) })
	t.Run("insert item debits stock", func(t *testing.T) { testInsertItem(t, newStore(t)) })
	t.Run("insert duplicate item", func(t *testing.T) { testInsertDuplicate(t, newStore(t)) })
	t.Run("insert insufficient stock", func(t *testing.T) { testInsertInsufficient(t, newStore(t)) })
	t.Run("insert into closed delivery", func(t *testing.T) { testInsertClosed(t, newStore(t)) })
	t.Run("update item version check", func(t *testing.T) { testUpdateVersion(t, newStore(t)) })
	t.Run("update item with credit", func(t *testing.T) { testUpdateCredit(t, newStore(t)) })
	t.Run("list items by status", func(t *testing.T) { testListItems(t, newStore(t)) })
	t.Run("close delivery", func(t *testing.T) { testCloseDelivery(t, newStore(t)) })
}

var (
	suiteBase  = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	suiteShirt = domain.ItemIdentity{Type: "sku", Key: "shirt-01"}
	suiteShoe  = domain.ItemIdentity{Type: "sku", Key: "shoe-07"}
)

func seedDelivery(t *testing.T, s port.Store, id string) domain.Delivery {
	t.Helper()
	d, err := domain.NewDelivery(id, "warehouse", "branch-1", suiteBase)
	require.NoError(t, err)
	require.NoError(t, s.CreateDelivery(context.Background(), d))
	return d
}

func newItem(t *testing.T, id, deliveryID string, item domain.ItemIdentity, declared int, offset time.Duration) domain.DeliveryItem {
	t.Helper()
	it, err := domain.NewDeliveryItem(id, deliveryID, item, "warehouse", declared, "", suiteBase.Add(offset))
	require.NoError(t, err)
	return it
}

func stockOf(t *testing.T, s port.Store, item domain.ItemIdentity) int {
	t.Helper()
	qty, err := s.Quantity(context.Background(), domain.StockKey{Location: "warehouse", Item: item})
	require.NoError(t, err)
	return qty
}

func setStock(t *testing.T, s port.Store, item domain.ItemIdentity, qty int) {
	t.Helper()
	require.NoError(t, s.SetStock(context.Background(), domain.StockKey{Location: "warehouse", Item: item}, qty))
}

func testDecrement(t *testing.T, s port.Store) {
	ctx := context.Background()
	key := domain.StockKey{Location: "warehouse", Item: suiteShirt}
	setStock(t, s, suiteShirt, 10)

	balance, err := s.Decrement(ctx, key, 3, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, 7, balance)
	assert.Equal(t, 7, stockOf(t, s, suiteShirt))
}

func testDecrementInsufficient(t *testing.T, s port.Store) {
	ctx := context.Background()
	key := domain.StockKey{Location: "warehouse", Item: suiteShirt}
	setStock(t, s, suiteShirt, 5)

	_, err := s.Decrement(ctx, key, 10, "ref-1")
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 5, stockOf(t, s, suiteShirt))

	_, err = s.Decrement(ctx, domain.StockKey{Location: "warehouse", Item: suiteShoe}, 1, "ref-2")
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	_, err = s.Decrement(ctx, key, 0, "ref-3")
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func testDecrementConcurrent(t *testing.T, s port.Store) {
	ctx := context.Background()
	key := domain.StockKey{Location: "warehouse", Item: suiteShirt}
	setStock(t, s, suiteShirt, 50)

	var wg sync.WaitGroup
	var successCount atomic.Int32
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Decrement(ctx, key, 1, fmt.Sprintf("ref-%d", i)); err == nil {
				successCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(50), successCount.Load())
	assert.Equal(t, 0, stockOf(t, s, suiteShirt))
}

func testIncrement(t *testing.T, s port.Store) {
	ctx := context.Background()
	key := domain.StockKey{Location: "warehouse", Item: suiteShoe}

	balance, err := s.Increment(ctx, key, 4, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, 4, balance)

	balance, err = s.Increment(ctx, key, 2, "ref-2")
	require.NoError(t, err)
	assert.Equal(t, 6, balance)
}

func testMovements(t *testing.T, s port.Store) {
	ctx := context.Background()
	key := domain.StockKey{Location: "warehouse", Item: suiteShirt}
	setStock(t, s, suiteShirt, 10)
	_, err := s.Decrement(ctx, key, 4, "item-1")
	require.NoError(t, err)
	_, err = s.Increment(ctx, key, 1, "item-1")
	require.NoError(t, err)
	setStock(t, s, suiteShirt, 20)

	mvs, err := s.Movements(ctx, key)
	require.NoError(t, err)
	require.Len(t, mvs, 4)

	assert.Equal(t, domain.MovementSet, mvs[0].Reason)
	assert.Equal(t, 10, mvs[0].Delta)
	assert.Equal(t, domain.MovementDispatch, mvs[1].Reason)
	assert.Equal(t, -4, mvs[1].Delta)
	assert.Equal(t, 6, mvs[1].Balance)
	assert.Equal(t, "item-1", mvs[1].Reference)
	assert.Equal(t, domain.MovementReturn, mvs[2].Reason)
	assert.Equal(t, 7, mvs[2].Balance)
	assert.Equal(t, 13, mvs[3].Delta)
	assert.Equal(t, 20, mvs[3].Balance)
}

func testSetStockUnchanged(t *testing.T, s port.Store) {
	ctx := context.Background()
	shirt := domain.StockKey{Location: "warehouse", Item: suiteShirt}
	shoe := domain.StockKey{Location: "warehouse", Item: suiteShoe}

	setStock(t, s, suiteShoe, 0)
	mvs, err := s.Movements(ctx, shoe)
	require.NoError(t, err)
	assert.Empty(t, mvs)
	assert.Equal(t, 0, stockOf(t, s, suiteShoe))

	setStock(t, s, suiteShirt, 10)
	setStock(t, s, suiteShirt, 10)
	_, err = s.Decrement(ctx, shirt, 3, "item-1")
	require.NoError(t, err)
	setStock(t, s, suiteShirt, 10)

	mvs, err = s.Movements(ctx, shirt)
	require.NoError(t, err)
	require.Len(t, mvs, 3)
	assert.Equal(t, 10, mvs[0].Delta)
	assert.Equal(t, -3, mvs[1].Delta)
	assert.Equal(t, domain.MovementSet, mvs[2].Reason)
	assert.Equal(t, 3, mvs[2].Delta)
	assert.Equal(t, 10, mvs[2].Balance)
}

func testDeliveryNotFound(t *testing.T, s port.Store) {
	ctx := context.Background()

	_, err := s.GetDelivery(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrDeliveryNotFound)

	_, err = s.GetItem(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrItemNotFound)

	setStock(t, s, suiteShirt, 10)
	err = s.InsertItem(ctx, newItem(t, "item-1", "missing", suiteShirt, 2, 0))
	assert.ErrorIs(t, err, domain.ErrDeliveryNotFound)
	assert.Equal(t, 10, stockOf(t, s, suiteShirt))
}

func testInsertItem(t *testing.T, s port.Store) {
	ctx := context.Background()
	seedDelivery(t, s, "d-1")
	setStock(t, s, suiteShirt, 10)

	require.NoError(t, s.InsertItem(ctx, newItem(t, "item-1", "d-1", suiteShirt, 10, 0)))
	assert.Equal(t, 0, stockOf(t, s, suiteShirt))

	got, err := s.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusPending, got.Status)
	assert.Equal(t, 10, got.DeclaredQuantity)
	assert.Equal(t, suiteShirt, got.Item)
	assert.Equal(t, 1, got.Version)
}

func testInsertDuplicate(t *testing.T, s port.Store) {
	ctx := context.Background()
	seedDelivery(t, s, "d-1")
	setStock(t, s, suiteShirt, 10)

	require.NoError(t, s.InsertItem(ctx, newItem(t, "item-1", "d-1", suiteShirt, 2, 0)))
	err := s.InsertItem(ctx, newItem(t, "item-2", "d-1", suiteShirt, 2, time.Minute))
	assert.ErrorIs(t, err, domain.ErrDuplicateDeliveryItem)
	assert.Equal(t, 8, stockOf(t, s, suiteShirt))

	// the same item may travel in another delivery
	seedDelivery(t, s, "d-2")
	require.NoError(t, s.InsertItem(ctx, newItem(t, "item-3", "d-2", suiteShirt, 2, 2*time.Minute)))
	assert.Equal(t, 6, stockOf(t, s, suiteShirt))
}

func testInsertInsufficient(t *testing.T, s port.Store) {
	ctx := context.Background()
	seedDelivery(t, s, "d-1")
	setStock(t, s, suiteShirt, 1)

	err := s.InsertItem(ctx, newItem(t, "item-1", "d-1", suiteShirt, 2, 0))
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 1, stockOf(t, s, suiteShirt))

	_, err = s.GetItem(ctx, "item-1")
	assert.ErrorIs(t, err, domain.ErrItemNotFound)

	items, err := s.ListItems(ctx, port.ItemFilter{DeliveryID: "d-1"})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func testInsertClosed(t *testing.T, s port.Store) {
	ctx := context.Background()
	seedDelivery(t, s, "d-1")
	setStock(t, s, suiteShirt, 5)
	setStock(t, s, suiteShoe, 5)

	it := newItem(t, "item-1", "d-1", suiteShirt, 2, 0)
	require.NoError(t, s.InsertItem(ctx, it))
	received, err := it.Receive("branch-1", 2, suiteBase.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.UpdateItem(ctx, received, it.Version, 0))
	_, err = s.CloseDelivery(ctx, "d-1", suiteBase.Add(2*time.Hour))
	require.NoError(t, err)

	err = s.InsertItem(ctx, newItem(t, "item-2", "d-1", suiteShoe, 1, time.Minute))
	assert.ErrorIs(t, err, domain.ErrDeliveryClosed)
	assert.Equal(t, 5, stockOf(t, s, suiteShoe))
}

func testUpdateVersion(t *testing.T, s port.Store) {
	ctx := context.Background()
	seedDelivery(t, s, "d-1")
	setStock(t, s, suiteShirt, 5)

	it := newItem(t, "item-1", "d-1", suiteShirt, 5, 0)
	require.NoError(t, s.InsertItem(ctx, it))

	partial, err := it.Receive("branch-1", 3, suiteBase.Add(time.Hour))
	require.NoError(t, err)
	full, err := it.Receive("branch-1", 5, suiteBase.Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, s.UpdateItem(ctx, partial, it.Version, 0))
	assert.ErrorIs(t, s.UpdateItem(ctx, full, it.Version, 0), domain.ErrConcurrentModification)

	got, err := s.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusCountMismatch, got.Status)
	assert.Equal(t, 3, got.ReceivedQuantity)
	assert.Equal(t, "branch-1", got.MarkedBy)
	assert.Equal(t, 2, got.Version)

	ghost := it
	ghost.ID = "ghost"
	assert.ErrorIs(t, s.UpdateItem(ctx, ghost, 1, 0), domain.ErrItemNotFound)
}

func testUpdateCredit(t *testing.T, s port.Store) {
	ctx := context.Background()
	seedDelivery(t, s, "d-1")
	setStock(t, s, suiteShirt, 20)

	it := newItem(t, "item-1", "d-1", suiteShirt, 5, 0)
	require.NoError(t, s.InsertItem(ctx, it))
	assert.Equal(t, 15, stockOf(t, s, suiteShirt))

	mismatched, err := it.Receive("branch-1", 3, suiteBase.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.UpdateItem(ctx, mismatched, it.Version, 0))

	returned, credit, err := mismatched.Resolve(domain.ResolutionReturnToSender, suiteBase.Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 2, credit)
	require.NoError(t, s.UpdateItem(ctx, returned, mismatched.Version, credit))

	assert.Equal(t, 17, stockOf(t, s, suiteShirt))
	got, err := s.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusReturned, got.Status)
	assert.Equal(t, 2, got.ReturnedQuantity)
	assert.Equal(t, domain.ResolutionReturnToSender, got.Resolution)
}

func testListItems(t *testing.T, s port.Store) {
	ctx := context.Background()
	seedDelivery(t, s, "d-1")
	setStock(t, s, suiteShirt, 5)
	setStock(t, s, suiteShoe, 5)

	shirt := newItem(t, "item-1", "d-1", suiteShirt, 2, 0)
	shoe := newItem(t, "item-2", "d-1", suiteShoe, 2, time.Minute)
	require.NoError(t, s.InsertItem(ctx, shirt))
	require.NoError(t, s.InsertItem(ctx, shoe))

	received, err := shoe.Receive("branch-1", 2, suiteBase.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.UpdateItem(ctx, received, shoe.Version, 0))

	all, err := s.ListItems(ctx, port.ItemFilter{DeliveryID: "d-1"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "item-1", all[0].ID)
	assert.Equal(t, "item-2", all[1].ID)

	pending, err := s.ListItems(ctx, port.ItemFilter{DeliveryID: "d-1", Status: domain.ItemStatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "item-1", pending[0].ID)

	none, err := s.ListItems(ctx, port.ItemFilter{DeliveryID: "d-other"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testCloseDelivery(t *testing.T, s port.Store) {
	ctx := context.Background()
	seedDelivery(t, s, "d-1")
	setStock(t, s, suiteShirt, 5)

	_, err := s.CloseDelivery(ctx, "d-1", suiteBase)
	assert.ErrorIs(t, err, domain.ErrDeliveryIncomplete, "empty delivery")

	_, err = s.CloseDelivery(ctx, "missing", suiteBase)
	assert.ErrorIs(t, err, domain.ErrDeliveryNotFound)

	it := newItem(t, "item-1", "d-1", suiteShirt, 5, 0)
	require.NoError(t, s.InsertItem(ctx, it))
	_, err = s.CloseDelivery(ctx, "d-1", suiteBase)
	assert.ErrorIs(t, err, domain.ErrDeliveryIncomplete)

	mismatched, err := it.Receive("branch-1", 4, suiteBase.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.UpdateItem(ctx, mismatched, it.Version, 0))
	_, err = s.CloseDelivery(ctx, "d-1", suiteBase)
	assert.ErrorIs(t, err, domain.ErrDeliveryIncomplete)

	written, _, err := mismatched.Resolve(domain.ResolutionWriteOff, suiteBase.Add(2*time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.UpdateItem(ctx, written, mismatched.Version, 0))

	closedAt := suiteBase.Add(3 * time.Hour)
	d, err := s.CloseDelivery(ctx, "d-1", closedAt)
	require.NoError(t, err)
	require.NotNil(t, d.CompletedAt)
	assert.True(t, d.Closed())

	again, err := s.CloseDelivery(ctx, "d-1", closedAt.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, again.CompletedAt)
	assert.WithinDuration(t, closedAt, *again.CompletedAt, time.Second)

	stored, err := s.GetDelivery(ctx, "d-1")
	require.NoError(t, err)
	assert.True(t, stored.Closed())
}
