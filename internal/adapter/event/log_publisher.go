package event

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/branch-delivery/internal/core/domain"
	"github.com/rl1809/branch-delivery/internal/port"
)

// LogPublisher writes events to the service log. It is the default when no
// broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

var _ port.EventPublisher = (*LogPublisher)(nil)

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event domain.Event) error {
	fields := []zap.Field{
		zap.String("type", string(event.Type)),
		zap.String("delivery_id", event.DeliveryID),
		zap.Time("occurred_at", event.OccurredAt),
	}
	if event.Item != nil {
		fields = append(fields,
			zap.String("item_id", event.Item.ID),
			zap.String("item", event.Item.Item.String()),
			zap.String("status", string(event.Item.Status)))
	}
	p.logger.Info("delivery event", fields...)
	return nil
}
