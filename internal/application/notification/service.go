// Package notification turns order events into queued chat messages and
// delivers them.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/orderbot/backend/internal/application/confirmation"
	"github.com/orderbot/backend/internal/application/linking"
	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/domain/order"
	"github.com/orderbot/backend/internal/domain/outbound"
	"github.com/orderbot/backend/internal/domain/shared"
	"github.com/orderbot/backend/internal/domain/tenant"
	"github.com/orderbot/backend/internal/infrastructure/rendering"
	"github.com/orderbot/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Button labels on confirmation prompts
const (
	DefaultConfirmLabel = "Confirm"
	DefaultDeclineLabel = "Decline"
)

// Failure reasons counted when a channel is skipped during hand-off
const (
	failureLinkIssue = "confirmation_link"
	failureEnqueue   = "enqueue"
	failureMint      = "mint"
	failureLookup    = "identity_lookup"
)

// ErrUnsupportedKind is returned by NotifyStatus for anything but payment
// and shipping
var ErrUnsupportedKind = shared.NewDomainError("UNSUPPORTED_KIND", "Status notification kind must be payment or shipping")

// ConnectInstruction tells the storefront how the customer can connect a
// channel that is not linked yet.
type ConnectInstruction struct {
	Channel   channel.Channel `json:"channel"`
	DeepLink  string          `json:"deep_link"`
	Message   string          `json:"message"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// HandoffResult summarizes OnOrderCreated
type HandoffResult struct {
	OrderID      int64                `json:"order_id"`
	ConfirmURL   string               `json:"confirm_url,omitempty"`
	Enqueued     int                  `json:"enqueued"`
	Instructions []ConnectInstruction `json:"instructions"`
	Skipped      map[string]string    `json:"skipped,omitempty"`
}

// Service queues order notifications
type Service struct {
	tenants  tenant.Repository
	orders   order.Repository
	links    channel.IdentityLinkRepository
	messages outbound.Repository
	resolver *channel.CredentialResolver
	linker   *linking.Service
	confirm  *confirmation.LinkService
	metrics  *telemetry.PipelineMetrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a notification service
func NewService(
	tenants tenant.Repository,
	orders order.Repository,
	links channel.IdentityLinkRepository,
	messages outbound.Repository,
	resolver *channel.CredentialResolver,
	linker *linking.Service,
	confirm *confirmation.LinkService,
	logger *zap.Logger,
) *Service {
	return &Service{
		tenants:  tenants,
		orders:   orders,
		links:    links,
		messages: messages,
		resolver: resolver,
		linker:   linker,
		confirm:  confirm,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
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

// OnOrderCreated is the hand-off from the storefront once an order exists.
// Per enabled channel it queues the receipt (when the customer is reachable)
// and the delayed confirmation prompt, and mints a connect link where the
// customer is not linked yet. Per-channel failures are logged and counted,
// never returned.
func (s *Service) OnOrderCreated(ctx context.Context, tenantID, orderID int64) (*HandoffResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "notification", "OnOrderCreated",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID),
		telemetry.WithAttribute(telemetry.SpanAttrOrderID, orderID),
	)
	defer span.End()

	t, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	o, err := s.orders.FindByIDForTenant(ctx, tenantID, orderID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	resolutions, err := s.resolver.ResolveAll(ctx, tenantID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("resolve channels: %w", err)
	}

	log := s.logger.With(zap.Int64("tenant_id", tenantID), zap.Int64("order_id", orderID))
	result := &HandoffResult{OrderID: orderID, Instructions: []ConnectInstruction{}, Skipped: map[string]string{}}

	if issued, err := s.confirm.Issue(ctx, t, o); err != nil {
		log.Warn("Failed to issue confirmation link", zap.Error(err))
		s.metrics.NotificationFailed(ctx, "", failureLinkIssue)
	} else {
		result.ConfirmURL = issued.URL
	}

	now := s.now()
	for _, res := range resolutions {
		ch := res.Channel
		if !res.Enabled {
			result.Skipped[ch.String()] = res.Reason
			continue
		}
		chLog := log.With(zap.String("channel", ch.String()))

		linked, err := s.isLinked(ctx, o, ch)
		if err != nil {
			chLog.Warn("Identity lookup failed", zap.Error(err))
			s.metrics.NotificationFailed(ctx, ch.String(), failureLookup)
		}

		if linked {
			body := rendering.Render(t.Template(tenant.TemplateInstantOrder), rendering.OrderVars(o, t, s.extraVars(ch, result.ConfirmURL)))
			if err := s.enqueue(ctx, o, ch, outbound.PurposeInstantOrder, body, now, nil); err != nil {
				chLog.Error("Failed to queue order receipt", zap.Error(err))
				s.metrics.NotificationFailed(ctx, ch.String(), failureEnqueue)
			} else {
				result.Enqueued++
			}
		}

		prompt := &channel.ConfirmationPrompt{
			OrderID:      o.ID,
			TenantID:     o.TenantID,
			ConfirmLabel: DefaultConfirmLabel,
			DeclineLabel: DefaultDeclineLabel,
			LinkURL:      result.ConfirmURL,
		}
		body := rendering.Render(t.Template(tenant.TemplateConfirmation), rendering.OrderVars(o, t, s.extraVars(ch, result.ConfirmURL)))
		if err := s.enqueue(ctx, o, ch, outbound.PurposeConfirmation, body, now.Add(t.ConfirmationDelay()), prompt); err != nil {
			chLog.Error("Failed to queue confirmation prompt", zap.Error(err))
			s.metrics.NotificationFailed(ctx, ch.String(), failureEnqueue)
		} else {
			result.Enqueued++
		}

		if linked || !ch.RequiresLink() {
			continue
		}
		minted, err := s.linker.Mint(ctx, tenantID, o.CustomerPhone, ch, &o.ID)
		if err != nil {
			chLog.Warn("Failed to mint connect link", zap.Error(err))
			s.metrics.NotificationFailed(ctx, ch.String(), failureMint)
			continue
		}
		extra := s.extraVars(ch, result.ConfirmURL)
		extra[rendering.VarConnectURL] = minted.DeepLink
		result.Instructions = append(result.Instructions, ConnectInstruction{
			Channel:   ch,
			DeepLink:  minted.DeepLink,
			Message:   rendering.Render(t.Template(tenant.TemplatePinInstructions), rendering.OrderVars(o, t, extra)),
			ExpiresAt: minted.ExpiresAt,
		})
	}

	if len(result.Skipped) == 0 {
		result.Skipped = nil
	}
	telemetry.SetOK(span)
	return result, nil
}

// NotifyStatus queues a payment or shipping notice on every enabled
// channel. Returns how many messages were queued.
func (s *Service) NotifyStatus(ctx context.Context, tenantID, orderID int64, kind outbound.Purpose) (int, error) {
	var key tenant.TemplateKey
	switch kind {
	case outbound.PurposePayment:
		key = tenant.TemplatePayment
	case outbound.PurposeShipping:
		key = tenant.TemplateShipping
	default:
		return 0, ErrUnsupportedKind
	}

	t, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	o, err := s.orders.FindByIDForTenant(ctx, tenantID, orderID)
	if err != nil {
		return 0, err
	}
	resolutions, err := s.resolver.ResolveAll(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("resolve channels: %w", err)
	}

	now := s.now()
	queued := 0
	for _, res := range resolutions {
		if !res.Enabled {
			continue
		}
		body := rendering.Render(t.Template(key), rendering.OrderVars(o, t, s.extraVars(res.Channel, "")))
		if err := s.enqueue(ctx, o, res.Channel, kind, body, now, nil); err != nil {
			s.logger.Error("Failed to queue status notice",
				zap.Int64("order_id", orderID),
				zap.String("channel", res.Channel.String()),
				zap.String("kind", string(kind)),
				zap.Error(err))
			s.metrics.NotificationFailed(ctx, res.Channel.String(), failureEnqueue)
			continue
		}
		queued++
	}
	return queued, nil
}

func (s *Service) isLinked(ctx context.Context, o *order.Order, ch channel.Channel) (bool, error) {
	if !ch.RequiresLink() {
		return true, nil
	}
	_, err := s.links.Find(ctx, o.TenantID, channel.NormalizePhone(o.CustomerPhone), ch)
	if errors.Is(err, shared.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Service) extraVars(ch channel.Channel, confirmURL string) rendering.Vars {
	extra := rendering.Vars{rendering.VarChannel: ch.String()}
	if confirmURL != "" {
		extra[rendering.VarConfirmURL] = confirmURL
	}
	return extra
}

func (s *Service) enqueue(ctx context.Context, o *order.Order, ch channel.Channel, purpose outbound.Purpose, body string, dueAt time.Time, prompt *channel.ConfirmationPrompt) error {
	m, err := outbound.NewMessage(o.TenantID, &o.ID, ch, o.CustomerPhone, purpose, body, dueAt)
	if err != nil {
		return err
	}
	if prompt != nil {
		m.WithConfirmation(prompt)
	}
	return s.messages.Enqueue(ctx, m)
}
