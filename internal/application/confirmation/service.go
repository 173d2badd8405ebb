// Package confirmation runs the pending -> confirmed | cancelled state
// machine for orders and the side effects of a decision.
package confirmation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/orderbot/backend/internal/domain/order"
	"github.com/orderbot/backend/internal/domain/shared"
	"github.com/orderbot/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Decision results as counted in metrics
const (
	ResultApplied          = "applied"
	ResultAlreadyProcessed = "already_processed"
	ResultRejected         = "rejected"
)

// Outcome is what a decision did. AlreadyProcessed is informational: the
// order was decided earlier and is returned with its current status.
type Outcome struct {
	Order            *order.Order
	AlreadyProcessed bool
}

// Service applies confirm/decline decisions
type Service struct {
	orders    order.Repository
	publisher shared.EventPublisher
	metrics   *telemetry.PipelineMetrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a confirmation service
func NewService(orders order.Repository, publisher shared.EventPublisher, logger *zap.Logger) *Service {
	return &Service{
		orders:    orders,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetMetrics sets the pipeline metrics recorder
func (s *Service) SetMetrics(m *telemetry.PipelineMetrics) {
	s.metrics = m
}

// SetClock overrides the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Decide applies d to the tenant's order. Only one caller can move an order
// out of pending; every later caller gets AlreadyProcessed with no mutation
// and no event.
func (s *Service) Decide(ctx context.Context, tenantID, orderID int64, d order.Decision, source order.Source, actor string) (*Outcome, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "confirmation", "Decide",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID),
		telemetry.WithAttribute(telemetry.SpanAttrOrderID, orderID),
		telemetry.WithAttribute(telemetry.SpanAttrDecision, string(d)),
		telemetry.WithAttribute(telemetry.SpanAttrSource, string(source)),
	)
	defer span.End()

	target, err := d.TargetStatus()
	if err != nil {
		s.metrics.OrderDecision(ctx, string(d), string(source), ResultRejected)
		return nil, err
	}

	o, err := s.orders.FindByIDForTenant(ctx, tenantID, orderID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !o.IsPending() {
		s.metrics.OrderDecision(ctx, string(d), string(source), ResultAlreadyProcessed)
		return &Outcome{Order: o, AlreadyProcessed: true}, nil
	}

	now := s.now()
	rec := order.NewConfirmationRecord(o, d, source, actor, now)
	applied, err := s.orders.Decide(ctx, rec, target)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("decide order %d: %w", orderID, err)
	}
	if !applied {
		// Lost the race; report what the winner left behind.
		current, err := s.orders.FindByIDForTenant(ctx, tenantID, orderID)
		if err != nil {
			return nil, err
		}
		s.metrics.OrderDecision(ctx, string(d), string(source), ResultAlreadyProcessed)
		return &Outcome{Order: current, AlreadyProcessed: true}, nil
	}

	if err := o.Decide(d, now); err != nil && !errors.Is(err, shared.ErrAlreadyProcessed) {
		return nil, err
	}
	s.metrics.OrderDecision(ctx, string(d), string(source), ResultApplied)
	s.logger.Info("Order decided",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("order_id", orderID),
		zap.String("status", o.Status.String()),
		zap.String("source", string(source)),
	)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, order.NewStatusChangedEvent(o, source)); err != nil {
			s.logger.Error("Failed to publish order status event",
				zap.Int64("order_id", orderID), zap.Error(err))
		}
	}
	telemetry.SetOK(span)
	return &Outcome{Order: o}, nil
}
