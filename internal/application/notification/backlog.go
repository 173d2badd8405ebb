package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/domain/outbound"
	"github.com/orderbot/backend/internal/domain/shared"
	"github.com/orderbot/backend/internal/infrastructure/event"
	"github.com/orderbot/backend/internal/infrastructure/scheduler"
	"github.com/orderbot/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Kicker asks the dispatcher for an immediate pass
type Kicker interface {
	DispatchNow() error
}

// NewBacklogHandler releases messages parked for a recipient as soon as the
// recipient becomes reachable, then kicks the dispatcher so the greeting and
// the backlog go out without waiting a full interval.
func NewBacklogHandler(messages outbound.Repository, kicker Kicker, metrics *telemetry.PipelineMetrics, logger *zap.Logger) *event.HandlerFunc {
	return event.NewHandlerFunc("release-backlog", func(ctx context.Context, ev shared.DomainEvent) error {
		linked, ok := ev.(*channel.IdentityLinkedEvent)
		if !ok {
			return nil
		}
		n, err := messages.ReleaseBacklog(ctx, linked.TenantID(), linked.Phone, linked.Channel, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("release backlog: %w", err)
		}
		metrics.BacklogReleased(ctx, linked.Channel.String(), n)
		logger.Info("Released recipient backlog",
			zap.Int64("tenant_id", linked.TenantID()),
			zap.String("channel", linked.Channel.String()),
			zap.Int64("released", n),
		)

		if kicker != nil {
			if err := kicker.DispatchNow(); err != nil && !errors.Is(err, scheduler.ErrNotRunning) {
				return err
			}
		}
		return nil
	}, channel.EventTypeIdentityLinked)
}
