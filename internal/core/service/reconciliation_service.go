package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/branch-delivery/internal/core/domain"
	"github.com/rl1809/branch-delivery/internal/port"
)

const itemLockPrefix = "lock:delivery-item:"

type ReconciliationService struct {
	ledger port.StockLedger
	store  port.DeliveryStore
	locker port.ItemLocker
	events *EventDispatcher
	logger *zap.Logger

	now   func() time.Time
	newID func() string
}

// NewReconciliationService wires the engine. events may be nil when nobody
// listens for domain events.
func NewReconciliationService(
	ledger port.StockLedger,
	store port.DeliveryStore,
	locker port.ItemLocker,
	events *EventDispatcher,
	logger *zap.Logger,
) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationService{
		ledger: ledger,
		store:  store,
		locker: locker,
		events: events,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

type CreateItemInput struct {
	DeliveryID       string
	Item             domain.ItemIdentity
	SourceLocation   string // defaults to the delivery's sender
	DeclaredQuantity int
	ReceiverIdentity string
}

type ReceiveInput struct {
	ItemID         string
	Receiver       string
	ActualQuantity int
	// ExpectedVersion pins the item version the caller counted against.
	// Zero accepts a Pending item only; a recount of a Count mismatch must be
	// pinned.
	ExpectedVersion int
}

func (s *ReconciliationService) CreateDelivery(ctx context.Context, sender, receiver string) (domain.Delivery, error) {
	d, err := domain.NewDelivery(s.newID(), sender, receiver, s.now())
	if err != nil {
		return domain.Delivery{}, err
	}
	if err := s.store.CreateDelivery(ctx, d); err != nil {
		return domain.Delivery{}, fmt.Errorf("create delivery: %w", err)
	}
	return d, nil
}

func (s *ReconciliationService) GetDelivery(ctx context.Context, id string) (domain.Delivery, error) {
	return s.store.GetDelivery(ctx, id)
}

// CreateDeliveryItem admits an item into a delivery. The sender's stock is
// debited in the same atomic unit as the item insert.
func (s *ReconciliationService) CreateDeliveryItem(ctx context.Context, in CreateItemInput) (domain.DeliveryItem, error) {
	if in.DeclaredQuantity < 1 {
		return domain.DeliveryItem{}, domain.ErrInvalidQuantity
	}

	d, err := s.store.GetDelivery(ctx, in.DeliveryID)
	if err != nil {
		return domain.DeliveryItem{}, err
	}
	if d.Closed() {
		return domain.DeliveryItem{}, domain.ErrDeliveryClosed
	}

	source := in.SourceLocation
	if source == "" {
		source = d.SenderLocation
	}

	item, err := domain.NewDeliveryItem(s.newID(), d.ID, in.Item, source, in.DeclaredQuantity, in.ReceiverIdentity, s.now())
	if err != nil {
		return domain.DeliveryItem{}, err
	}

	if err := s.store.InsertItem(ctx, item); err != nil {
		s.logFailure("create delivery item", item, err)
		return domain.DeliveryItem{}, err
	}

	s.logger.Debug("delivery item created",
		zap.String("item_id", item.ID),
		zap.String("delivery_id", item.DeliveryID),
		zap.Int("declared", item.DeclaredQuantity))
	s.emit(domain.EventItemCreated, item)
	return item, nil
}

func (s *ReconciliationService) ReceiveDeliveryItem(ctx context.Context, in ReceiveInput) (domain.DeliveryItem, error) {
	if in.ActualQuantity < 0 {
		return domain.DeliveryItem{}, domain.ErrInvalidQuantity
	}

	var next domain.DeliveryItem
	err := s.withItemLock(ctx, in.ItemID, func(current domain.DeliveryItem) error {
		if in.ExpectedVersion != 0 && in.ExpectedVersion != current.Version {
			return domain.ErrConcurrentModification
		}
		// A recount overwrites someone else's count, so it must name the
		// version it is correcting.
		if in.ExpectedVersion == 0 && current.Status == domain.ItemStatusCountMismatch {
			return domain.ErrConcurrentModification
		}

		var err error
		next, err = current.Receive(in.Receiver, in.ActualQuantity, s.now())
		if err != nil {
			return err
		}
		return s.store.UpdateItem(ctx, next, current.Version, 0)
	})
	if err != nil {
		return domain.DeliveryItem{}, err
	}

	s.logger.Debug("delivery item received",
		zap.String("item_id", next.ID),
		zap.String("status", string(next.Status)),
		zap.Int("received", next.ReceivedQuantity))
	s.emit(domain.EventItemReceived, next)
	s.emitIfCompleted(ctx, next)
	return next, nil
}

// ResolveMismatch settles a CountMismatch item. ReturnToSender credits the
// undelivered quantity back to the source location atomically with the
// status change; WriteOff leaves the ledger alone.
func (s *ReconciliationService) ResolveMismatch(ctx context.Context, itemID string, resolution domain.Resolution) (domain.DeliveryItem, error) {
	var next domain.DeliveryItem
	err := s.withItemLock(ctx, itemID, func(current domain.DeliveryItem) error {
		var (
			credit int
			err    error
		)
		next, credit, err = current.Resolve(resolution, s.now())
		if err != nil {
			return err
		}
		return s.store.UpdateItem(ctx, next, current.Version, credit)
	})
	if err != nil {
		return domain.DeliveryItem{}, err
	}

	s.logger.Debug("delivery item resolved",
		zap.String("item_id", next.ID),
		zap.String("resolution", string(resolution)),
		zap.Int("returned", next.ReturnedQuantity))
	s.emit(domain.EventItemResolved, next)
	s.emitIfCompleted(ctx, next)
	return next, nil
}

func (s *ReconciliationService) GetDeliveryCompletion(ctx context.Context, deliveryID string) (domain.Completion, error) {
	items, err := s.deliveryItems(ctx, deliveryID, "")
	if err != nil {
		return "", err
	}
	return domain.CompletionOf(items), nil
}

func (s *ReconciliationService) GetDeliveryProgress(ctx context.Context, deliveryID string) (domain.Progress, error) {
	items, err := s.deliveryItems(ctx, deliveryID, "")
	if err != nil {
		return domain.Progress{}, err
	}
	return domain.ProgressOf(items), nil
}

func (s *ReconciliationService) ListDeliveryItems(ctx context.Context, deliveryID string, status domain.ItemStatus) ([]domain.DeliveryItem, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}
	return s.deliveryItems(ctx, deliveryID, status)
}

func (s *ReconciliationService) GetDeliveryItem(ctx context.Context, id string) (domain.DeliveryItem, error) {
	return s.store.GetItem(ctx, id)
}

// CompleteDelivery closes a delivery whose items are all settled. No item can
// be added afterwards.
func (s *ReconciliationService) CompleteDelivery(ctx context.Context, deliveryID string) (domain.Delivery, error) {
	d, err := s.store.CloseDelivery(ctx, deliveryID, s.now())
	if err != nil {
		s.logger.Warn("complete delivery failed", zap.String("delivery_id", deliveryID), zap.Error(err))
		return domain.Delivery{}, err
	}
	return d, nil
}

func (s *ReconciliationService) SetStock(ctx context.Context, key domain.StockKey, qty int) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if qty < 0 {
		return domain.ErrInvalidQuantity
	}
	return s.ledger.SetStock(ctx, key, qty)
}

func (s *ReconciliationService) GetStock(ctx context.Context, key domain.StockKey) (int, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}
	return s.ledger.Quantity(ctx, key)
}

func (s *ReconciliationService) ListMovements(ctx context.Context, key domain.StockKey) ([]domain.StockMovement, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return s.ledger.Movements(ctx, key)
}

// withItemLock runs fn on a fresh copy of the item while holding its writer
// lock. A busy lock means another operator is mid-transition.
func (s *ReconciliationService) withItemLock(ctx context.Context, itemID string, fn func(domain.DeliveryItem) error) error {
	unlock, ok, err := s.locker.TryLock(ctx, itemLockPrefix+itemID)
	if err != nil {
		return fmt.Errorf("lock delivery item: %w", err)
	}
	if !ok {
		s.logger.Warn("delivery item busy", zap.String("item_id", itemID))
		return domain.ErrConcurrentModification
	}
	defer unlock()

	current, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}

	if err := fn(current); err != nil {
		s.logFailure("delivery item transition", current, err)
		return err
	}
	return nil
}

func (s *ReconciliationService) deliveryItems(ctx context.Context, deliveryID string, status domain.ItemStatus) ([]domain.DeliveryItem, error) {
	if _, err := s.store.GetDelivery(ctx, deliveryID); err != nil {
		return nil, err
	}
	return s.store.ListItems(ctx, port.ItemFilter{DeliveryID: deliveryID, Status: status})
}

func (s *ReconciliationService) emit(t domain.EventType, item domain.DeliveryItem) {
	s.events.Emit(domain.Event{
		Type:       t,
		DeliveryID: item.DeliveryID,
		Item:       &item,
		OccurredAt: s.now(),
	})
}

// emitIfCompleted runs after the item lock is released, so concurrent
// settlements can both observe Complete and announce it twice.
func (s *ReconciliationService) emitIfCompleted(ctx context.Context, item domain.DeliveryItem) {
	if s.events == nil || !item.Status.Settled() {
		return
	}

	items, err := s.store.ListItems(ctx, port.ItemFilter{DeliveryID: item.DeliveryID})
	if err != nil {
		s.logger.Warn("completion check failed", zap.String("delivery_id", item.DeliveryID), zap.Error(err))
		return
	}
	if domain.CompletionOf(items) == domain.CompletionComplete {
		s.events.Emit(domain.Event{
			Type:       domain.EventDeliveryCompleted,
			DeliveryID: item.DeliveryID,
			OccurredAt: s.now(),
		})
	}
}

func (s *ReconciliationService) logFailure(op string, item domain.DeliveryItem, err error) {
	level := s.logger.Warn
	if !isDomainError(err) {
		level = s.logger.Error
	}
	level(op+" failed",
		zap.String("item_id", item.ID),
		zap.String("delivery_id", item.DeliveryID),
		zap.Error(err))
}

func isDomainError(err error) bool {
	for _, target := range []error{
		domain.ErrInvalidQuantity,
		domain.ErrInsufficientStock,
		domain.ErrDuplicateDeliveryItem,
		domain.ErrAlreadyFinalized,
		domain.ErrInvalidTransition,
		domain.ErrConcurrentModification,
		domain.ErrItemNotFound,
		domain.ErrDeliveryNotFound,
		domain.ErrDeliveryClosed,
		domain.ErrDeliveryIncomplete,
		domain.ErrInvalidItemIdentity,
		domain.ErrInvalidLocation,
		domain.ErrInvalidStatus,
		domain.ErrInvalidReceiver,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
