package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/branch-delivery/internal/core/domain"
	"github.com/rl1809/branch-delivery/internal/port"
)

// MemoryAdapter keeps everything in process. Ledger balances are guarded per
// key; delivery records share one mutex. Lock order is ledger key first, then
// records.
type MemoryAdapter struct {
	keyLocks sync.Map // StockKey -> *sync.Mutex

	ledgerMu  sync.Mutex
	stock     map[domain.StockKey]int
	movements map[domain.StockKey][]domain.StockMovement

	mu         sync.Mutex
	deliveries map[string]domain.Delivery
	items      map[string]domain.DeliveryItem
	byDelivery map[string]map[domain.ItemIdentity]string

	now func() time.Time
}

var _ port.Store = (*MemoryAdapter)(nil)

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		stock:      make(map[domain.StockKey]int),
		movements:  make(map[domain.StockKey][]domain.StockMovement),
		deliveries: make(map[string]domain.Delivery),
		items:      make(map[string]domain.DeliveryItem),
		byDelivery: make(map[string]map[domain.ItemIdentity]string),
		now:        time.Now,
	}
}

func (m *MemoryAdapter) keyLock(key domain.StockKey) *sync.Mutex {
	l, _ := m.keyLocks.LoadOrStore(key, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func (m *MemoryAdapter) Decrement(ctx context.Context, key domain.StockKey, qty int, reference string) (int, error) {
	if qty < 1 {
		return 0, domain.ErrInvalidQuantity
	}
	l := m.keyLock(key)
	l.Lock()
	defer l.Unlock()

	return m.applyLocked(key, -qty, domain.MovementDispatch, reference)
}

func (m *MemoryAdapter) Increment(ctx context.Context, key domain.StockKey, qty int, reference string) (int, error) {
	if qty < 1 {
		return 0, domain.ErrInvalidQuantity
	}
	l := m.keyLock(key)
	l.Lock()
	defer l.Unlock()

	return m.applyLocked(key, qty, domain.MovementReturn, reference)
}

func (m *MemoryAdapter) SetStock(ctx context.Context, key domain.StockKey, qty int) error {
	if qty < 0 {
		return domain.ErrInvalidQuantity
	}
	l := m.keyLock(key)
	l.Lock()
	defer l.Unlock()

	m.ledgerMu.Lock()
	prev := m.stock[key]
	m.ledgerMu.Unlock()
	if qty == prev {
		return nil
	}

	_, err := m.applyLocked(key, qty-prev, domain.MovementSet, "")
	return err
}

func (m *MemoryAdapter) Quantity(ctx context.Context, key domain.StockKey) (int, error) {
	m.ledgerMu.Lock()
	defer m.ledgerMu.Unlock()
	return m.stock[key], nil
}

func (m *MemoryAdapter) Movements(ctx context.Context, key domain.StockKey) ([]domain.StockMovement, error) {
	m.ledgerMu.Lock()
	defer m.ledgerMu.Unlock()
	return append([]domain.StockMovement(nil), m.movements[key]...), nil
}

// applyLocked must be called with the key lock held.
func (m *MemoryAdapter) applyLocked(key domain.StockKey, delta int, reason domain.MovementReason, reference string) (int, error) {
	m.ledgerMu.Lock()
	defer m.ledgerMu.Unlock()

	balance := m.stock[key] + delta
	if balance < 0 {
		return m.stock[key], domain.ErrInsufficientStock
	}
	m.stock[key] = balance
	m.movements[key] = append(m.movements[key], domain.StockMovement{
		Key:       key,
		Delta:     delta,
		Balance:   balance,
		Reason:    reason,
		Reference: reference,
		CreatedAt: m.now(),
	})
	return balance, nil
}

func (m *MemoryAdapter) CreateDelivery(ctx context.Context, d domain.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries[d.ID] = d
	return nil
}

func (m *MemoryAdapter) GetDelivery(ctx context.Context, id string) (domain.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return domain.Delivery{}, domain.ErrDeliveryNotFound
	}
	return d, nil
}

func (m *MemoryAdapter) CloseDelivery(ctx context.Context, id string, at time.Time) (domain.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deliveries[id]
	if !ok {
		return domain.Delivery{}, domain.ErrDeliveryNotFound
	}
	if d.Closed() {
		return d, nil
	}
	if domain.CompletionOf(m.itemsOfLocked(id, "")) != domain.CompletionComplete {
		return domain.Delivery{}, domain.ErrDeliveryIncomplete
	}
	d.CompletedAt = &at
	m.deliveries[id] = d
	return d, nil
}

func (m *MemoryAdapter) InsertItem(ctx context.Context, item domain.DeliveryItem) error {
	key := item.StockKey()
	l := m.keyLock(key)
	l.Lock()
	defer l.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deliveries[item.DeliveryID]
	if !ok {
		return domain.ErrDeliveryNotFound
	}
	if d.Closed() {
		return domain.ErrDeliveryClosed
	}
	if _, dup := m.byDelivery[item.DeliveryID][item.Item]; dup {
		return domain.ErrDuplicateDeliveryItem
	}

	if _, err := m.applyLocked(key, -item.DeclaredQuantity, domain.MovementDispatch, item.ID); err != nil {
		return err
	}

	m.items[item.ID] = item
	if m.byDelivery[item.DeliveryID] == nil {
		m.byDelivery[item.DeliveryID] = make(map[domain.ItemIdentity]string)
	}
	m.byDelivery[item.DeliveryID][item.Item] = item.ID
	return nil
}

func (m *MemoryAdapter) UpdateItem(ctx context.Context, item domain.DeliveryItem, expectedVersion int, credit int) error {
	key := item.StockKey()
	l := m.keyLock(key)
	l.Lock()
	defer l.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.items[item.ID]
	if !ok {
		return domain.ErrItemNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrConcurrentModification
	}

	if credit > 0 {
		if _, err := m.applyLocked(key, credit, domain.MovementReturn, item.ID); err != nil {
			return err
		}
	}
	m.items[item.ID] = item
	return nil
}

func (m *MemoryAdapter) GetItem(ctx context.Context, id string) (domain.DeliveryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return domain.DeliveryItem{}, domain.ErrItemNotFound
	}
	return it, nil
}

func (m *MemoryAdapter) ListItems(ctx context.Context, f port.ItemFilter) ([]domain.DeliveryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.itemsOfLocked(f.DeliveryID, f.Status), nil
}

func (m *MemoryAdapter) itemsOfLocked(deliveryID string, status domain.ItemStatus) []domain.DeliveryItem {
	out := make([]domain.DeliveryItem, 0, len(m.byDelivery[deliveryID]))
	for _, id := range m.byDelivery[deliveryID] {
		it := m.items[id]
		if status != "" && it.Status != status {
			continue
		}
		out = append(out, it)
	}
	sortItems(out)
	return out
}

func sortItems(items []domain.DeliveryItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
