package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/branch-delivery/internal/core/domain"
	"github.com/rl1809/branch-delivery/internal/port"
)

const publishTimeout = 5 * time.Second

// EventDispatcher fans domain events out to a publisher on a small worker
// pool. Delivery is best effort: a full queue drops the event.
type EventDispatcher struct {
	publisher port.EventPublisher
	logger    *zap.Logger
	queue     chan domain.Event

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewEventDispatcher(publisher port.EventPublisher, queueSize int, logger *zap.Logger) *EventDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventDispatcher{
		publisher: publisher,
		logger:    logger,
		queue:     make(chan domain.Event, queueSize),
	}
}

func (d *EventDispatcher) Start(workers int) {
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
}

// Emit enqueues without blocking and reports whether the event was accepted.
func (d *EventDispatcher) Emit(event domain.Event) bool {
	if d == nil {
		return false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	select {
	case d.queue <- event:
		return true
	default:
		d.logger.Warn("event queue full, dropping event",
			zap.String("type", string(event.Type)),
			zap.String("delivery_id", event.DeliveryID))
		return false
	}
}

// Close stops accepting events and waits for queued ones to be published.
func (d *EventDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *EventDispatcher) workerLoop(id int) {
	for event := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)

		if err := d.publisher.Publish(ctx, event); err != nil {
			d.logger.Error("failed to publish event",
				zap.Int("worker", id),
				zap.String("type", string(event.Type)),
				zap.String("delivery_id", event.DeliveryID),
				zap.Error(err))
		}

		cancel()
	}
}
