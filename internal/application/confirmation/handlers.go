package confirmation

import (
	"context"
	"fmt"
	"time"

	"github.com/orderbot/backend/internal/domain/order"
	"github.com/orderbot/backend/internal/domain/outbound"
	"github.com/orderbot/backend/internal/domain/shared"
	"github.com/orderbot/backend/internal/infrastructure/event"
	"go.uber.org/zap"
)

// NewSupersedeHandler fails confirmation prompts still queued for an order
// that has just been decided, so the customer is not asked twice.
func NewSupersedeHandler(messages outbound.Repository, logger *zap.Logger) *event.HandlerFunc {
	return event.NewHandlerFunc("supersede-confirmations", func(ctx context.Context, ev shared.DomainEvent) error {
		sc, ok := ev.(*order.StatusChangedEvent)
		if !ok {
			return nil
		}
		n, err := messages.SupersedeConfirmations(ctx, sc.Order.ID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("supersede confirmations for order %d: %w", sc.Order.ID, err)
		}
		if n > 0 {
			logger.Info("Superseded pending confirmation prompts",
				zap.Int64("tenant_id", sc.Order.TenantID),
				zap.Int64("order_id", sc.Order.ID),
				zap.Int64("count", n),
			)
		}
		return nil
	}, order.EventTypeConfirmed, order.EventTypeCancelled)
}
