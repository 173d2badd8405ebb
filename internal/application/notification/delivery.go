package notification

import (
	"context"
	"errors"
	"time"

	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/domain/order"
	"github.com/orderbot/backend/internal/domain/outbound"
	"github.com/orderbot/backend/internal/domain/shared"
	"github.com/orderbot/backend/internal/infrastructure/config"
	"github.com/orderbot/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ReasonOrderNotFound marks messages whose order disappeared
const ReasonOrderNotFound = "ORDER_NOT_FOUND"

// Delivery defaults
const (
	DefaultBatchSize            = 50
	DefaultLease                = 2 * time.Minute
	DefaultRetryDelay           = 5 * time.Minute
	DefaultSendTimeout          = 15 * time.Second
	DefaultMaxTransientAttempts = 12
)

// MessageSender delivers content through the channel named by the
// credential. sender.Registry implements it.
type MessageSender interface {
	Send(ctx context.Context, cred channel.Credential, recipientID string, content channel.Content) (*channel.SendResult, error)
}

// DeliveryConfig tunes a delivery pass
type DeliveryConfig struct {
	BatchSize            int
	Lease                time.Duration
	RetryDelay           time.Duration
	SendTimeout          time.Duration
	MaxTransientAttempts int
}

// DeliveryConfigFrom maps the dispatcher section, filling defaults
func DeliveryConfigFrom(cfg config.DispatcherConfig) DeliveryConfig {
	return DeliveryConfig{
		BatchSize:            cfg.BatchSize,
		Lease:                cfg.Lease,
		RetryDelay:           cfg.RetryDelay,
		SendTimeout:          cfg.SendTimeout,
		MaxTransientAttempts: cfg.MaxTransientAttempts,
	}.withDefaults()
}

func (c DeliveryConfig) withDefaults() DeliveryConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Lease <= 0 {
		c.Lease = DefaultLease
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	// a send must finish well inside the lease it was renewed for
	if c.Lease < 2*c.SendTimeout {
		c.Lease = 2 * c.SendTimeout
	}
	if c.MaxTransientAttempts < 0 {
		c.MaxTransientAttempts = 0
	}
	return c
}

// Delivery claims due messages and sends them. It is the dispatcher's
// batch processor.
type Delivery struct {
	cfg      DeliveryConfig
	messages outbound.Repository
	orders   order.Repository
	links    channel.IdentityLinkRepository
	bindings channel.OrderBindingRepository
	resolver *channel.CredentialResolver
	sender   MessageSender
	metrics  *telemetry.PipelineMetrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewDelivery creates a Delivery
func NewDelivery(
	cfg DeliveryConfig,
	messages outbound.Repository,
	orders order.Repository,
	links channel.IdentityLinkRepository,
	bindings channel.OrderBindingRepository,
	resolver *channel.CredentialResolver,
	sender MessageSender,
	logger *zap.Logger,
) *Delivery {
	return &Delivery{
		cfg:      cfg.withDefaults(),
		messages: messages,
		orders:   orders,
		links:    links,
		bindings: bindings,
		resolver: resolver,
		sender:   sender,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetMetrics sets the pipeline metrics recorder
func (d *Delivery) SetMetrics(m *telemetry.PipelineMetrics) {
	d.metrics = m
}

// SetClock overrides the time source
func (d *Delivery) SetClock(now func() time.Time) {
	d.now = now
}

// BatchSize is the claim limit per call
func (d *Delivery) BatchSize() int {
	return d.cfg.BatchSize
}

// ProcessDue claims one batch and settles every claimed message. Each
// message's lease is renewed right before it is worked on and its outcome is
// saved on its own; a failed save leaves the lease to expire and the message
// is retried.
func (d *Delivery) ProcessDue(ctx context.Context) (int, error) {
	msgs, err := d.messages.ClaimDue(ctx, d.now(), d.cfg.BatchSize, d.cfg.Lease)
	if err != nil {
		return 0, err
	}
	for _, m := range msgs {
		if ctx.Err() != nil {
			break
		}
		d.deliver(ctx, m)
	}
	return len(msgs), nil
}

func (d *Delivery) deliver(ctx context.Context, m *outbound.Message) {
	ctx, span := telemetry.StartSpan(ctx, "delivery.deliver",
		telemetry.WithAttribute(telemetry.SpanAttrMessageID, m.ID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, m.TenantID),
		telemetry.WithAttribute(telemetry.SpanAttrChannel, m.Channel.String()),
		telemetry.WithAttribute(telemetry.SpanAttrPurpose, string(m.Purpose)),
	)
	defer span.End()

	log := d.logger.With(
		zap.String("message_id", m.ID.String()),
		zap.Int64("tenant_id", m.TenantID),
		zap.String("channel", m.Channel.String()),
	)
	if m.OrderID != nil {
		log = log.With(zap.Int64("order_id", *m.OrderID))
	}

	// The batch lease was taken before earlier messages were sent; take a
	// fresh one for this message or leave it to whoever holds it now.
	if err := d.messages.Renew(ctx, m, d.now().Add(d.cfg.Lease)); err != nil {
		d.metrics.MessageDispatched(ctx, m.Channel.String(), telemetry.OutcomeLeaseLost)
		if errors.Is(err, outbound.ErrLeaseLost) {
			log.Warn("Lease lost before send, skipping message")
			return
		}
		telemetry.RecordError(span, err)
		log.Error("Failed to renew lease, skipping message", zap.Error(err))
		return
	}

	outcome := d.settle(ctx, m, log)
	d.metrics.MessageDispatched(ctx, m.Channel.String(), outcome)
	if outcome == telemetry.OutcomeFailed {
		telemetry.SetAttribute(span, "reason", m.Reason)
	}

	if err := d.messages.Save(ctx, m); err != nil {
		telemetry.RecordError(span, err)
		if errors.Is(err, outbound.ErrLeaseLost) {
			log.Warn("Lease lost before outcome was saved", zap.String("outcome", outcome))
			return
		}
		log.Error("Failed to save delivery outcome", zap.String("outcome", outcome), zap.Error(err))
	}
}

// settle decides what happens to m and mutates it accordingly. The returned
// outcome is one of the telemetry.Outcome* values.
func (d *Delivery) settle(ctx context.Context, m *outbound.Message, log *zap.Logger) string {
	now := d.now()

	res, err := d.resolver.Resolve(ctx, m.TenantID, m.Channel)
	if err != nil {
		log.Warn("Credential lookup failed, retrying later", zap.Error(err))
		return d.transient(m, "CREDENTIAL_LOOKUP: "+err.Error(), now, log)
	}
	if !res.Enabled {
		log.Info("Channel unavailable, dropping message", zap.String("reason", res.Reason))
		m.MarkFailed(res.Reason, now)
		return telemetry.OutcomeFailed
	}

	if m.Purpose == outbound.PurposeConfirmation && m.OrderID != nil {
		o, err := d.orders.FindByID(ctx, *m.OrderID)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			m.MarkFailed(ReasonOrderNotFound, now)
			return telemetry.OutcomeFailed
		case err != nil:
			return d.transient(m, "ORDER_LOOKUP: "+err.Error(), now, log)
		case !o.IsPending():
			m.MarkFailed(outbound.ReasonSuperseded, now)
			return telemetry.OutcomeSuperseded
		}
	}

	recipient, err := d.recipient(ctx, m)
	if errors.Is(err, shared.ErrNotFound) {
		m.Reschedule(m.Channel.WaitingReason(), now.Add(d.cfg.RetryDelay), now)
		return telemetry.OutcomeWaiting
	}
	if err != nil {
		return d.transient(m, "RECIPIENT_LOOKUP: "+err.Error(), now, log)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	start := time.Now()
	result, err := d.sender.Send(sendCtx, res.Credential, recipient, m.Content())
	cancel()
	d.metrics.SendCompleted(ctx, m.Channel.String(), time.Since(start), err)

	if err != nil {
		if channel.IsRetryable(err) {
			return d.transient(m, sendReason(err), now, log)
		}
		log.Warn("Provider rejected message", zap.Error(err))
		m.MarkFailed(sendReason(err), now)
		return telemetry.OutcomeFailed
	}

	m.MarkSent(result.MessageID, now)
	if m.Confirmation != nil && m.OrderID != nil && m.Channel.SupportsButtons() {
		b := channel.NewOrderChannelBinding(m.TenantID, *m.OrderID, m.Channel, recipient)
		if err := d.bindings.Bind(ctx, b); err != nil {
			log.Error("Failed to bind order to recipient", zap.Error(err))
		}
	}
	return telemetry.OutcomeSent
}

func (d *Delivery) transient(m *outbound.Message, reason string, now time.Time, log *zap.Logger) string {
	if m.RecordTransientFailure(reason, now.Add(d.cfg.RetryDelay), now, d.cfg.MaxTransientAttempts) {
		log.Warn("Giving up after repeated transient failures",
			zap.Int("attempts", m.TransientFailures), zap.String("reason", reason))
		return telemetry.OutcomeFailed
	}
	return telemetry.OutcomeRetry
}

// recipient returns the provider-side id for m's customer. WhatsApp
// addresses the phone directly; the rest need an identity link.
func (d *Delivery) recipient(ctx context.Context, m *outbound.Message) (string, error) {
	if !m.Channel.RequiresLink() {
		return m.RecipientPhone, nil
	}
	l, err := d.links.Find(ctx, m.TenantID, m.RecipientPhone, m.Channel)
	if err != nil {
		return "", err
	}
	return l.SubscriberID, nil
}

func sendReason(err error) string {
	var se *channel.SendError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return err.Error()
}
