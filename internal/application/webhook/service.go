// Package webhook handles inbound provider updates: deep-link contacts that
// link a chat to a customer, and button presses that confirm or decline an
// order.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/orderbot/backend/internal/application/confirmation"
	"github.com/orderbot/backend/internal/application/linking"
	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/domain/order"
	"github.com/orderbot/backend/internal/domain/shared"
	"github.com/orderbot/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DefaultDedupTTL covers the providers' redelivery windows
const DefaultDedupTTL = 24 * time.Hour

// Update results, as counted by telemetry
const (
	ResultLinked       = "linked"
	ResultDecided      = "decided"
	ResultDuplicate    = "duplicate"
	ResultIgnored      = "ignored"
	ResultUnauthorized = "unauthorized"
	ResultError        = "error"
)

// Authentication errors. Handlers map them to 401/403.
var (
	ErrUnknownSecret     = shared.NewDomainError("UNKNOWN_WEBHOOK_SECRET", "Webhook secret does not match any bot")
	ErrNotConfigured     = shared.NewDomainError("WEBHOOK_NOT_CONFIGURED", "Webhook verification is not configured")
	ErrInvalidSignature  = shared.NewDomainError("INVALID_SIGNATURE", "Webhook signature mismatch")
	ErrVerifyTokenReject = shared.NewDomainError("VERIFY_TOKEN_MISMATCH", "Verify token mismatch")
	ErrUnknownBot        = shared.NewDomainError("UNKNOWN_BOT", "No tenant uses this bot")
)

// TelegramAPI is what the ingest needs from the Bot API client
type TelegramAPI interface {
	Send(ctx context.Context, cred channel.Credential, chatID string, content channel.Content) (*channel.SendResult, error)
	AnswerCallbackQuery(ctx context.Context, cred channel.Credential, callbackQueryID, text string) error
}

// MessengerAPI is what the ingest needs from the Graph API client
type MessengerAPI interface {
	Reply(ctx context.Context, cred channel.Credential, psid, text string) error
}

// Config holds webhook verification settings
type Config struct {
	TelegramSecretSalt   string
	MessengerAppSecret   string
	MessengerVerifyToken string
	DedupTTL             time.Duration
}

// Service routes provider updates to the linker and the decider.
type Service struct {
	cfg         Config
	credentials channel.CredentialRepository
	resolver    *channel.CredentialResolver
	orders      order.Repository
	linker      *linking.Service
	decider     *confirmation.Service
	links       *confirmation.LinkService
	dedup       shared.IdempotencyStore
	telegram    TelegramAPI
	messenger   MessengerAPI
	metrics     *telemetry.PipelineMetrics
	logger      *zap.Logger
}

// Dependencies groups the collaborators of Service
type Dependencies struct {
	Credentials channel.CredentialRepository
	Resolver    *channel.CredentialResolver
	Orders      order.Repository
	Linker      *linking.Service
	Decider     *confirmation.Service
	Links       *confirmation.LinkService
	Dedup       shared.IdempotencyStore
	Telegram    TelegramAPI
	Messenger   MessengerAPI
	Logger      *zap.Logger
}

// NewService creates the webhook ingest
func NewService(cfg Config, deps Dependencies) *Service {
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = DefaultDedupTTL
	}
	return &Service{
		cfg:         cfg,
		credentials: deps.Credentials,
		resolver:    deps.Resolver,
		orders:      deps.Orders,
		linker:      deps.Linker,
		decider:     deps.Decider,
		links:       deps.Links,
		dedup:       deps.Dedup,
		telegram:    deps.Telegram,
		messenger:   deps.Messenger,
		logger:      deps.Logger,
	}
}

// SetMetrics sets the pipeline metrics recorder
func (s *Service) SetMetrics(m *telemetry.PipelineMetrics) {
	s.metrics = m
}

// firstDelivery reports whether key has not been handled yet. A failing
// store lets the update through; the state machine is idempotent anyway.
func (s *Service) firstDelivery(ctx context.Context, key string) bool {
	if s.dedup == nil || key == "" {
		return true
	}
	fresh, err := s.dedup.MarkProcessed(ctx, key, s.cfg.DedupTTL)
	if err != nil {
		s.logger.Warn("Dedup store unavailable", zap.String("key", key), zap.Error(err))
		return true
	}
	return fresh
}

// botCredential returns the credential a reply on (ch, identity) must use.
// The platform-shared bot wins when the identity matches it.
func (s *Service) botCredential(ctx context.Context, ch channel.Channel, identity string) (channel.Credential, error) {
	if cred, ok := s.resolver.Platform().Shared(ch); ok && cred.Identity == identity {
		return cred, nil
	}
	tenantIDs, err := s.credentials.FindTenantIDsByIdentity(ctx, ch, identity)
	if err != nil {
		return channel.Credential{}, fmt.Errorf("find tenants for %s %s: %w", ch, identity, err)
	}
	for _, id := range tenantIDs {
		res, err := s.resolver.Resolve(ctx, id, ch)
		if err != nil {
			return channel.Credential{}, err
		}
		if res.Enabled && res.Identity() == identity {
			return res.Credential, nil
		}
	}
	return channel.Credential{}, ErrUnknownBot
}

// loadOrderForBot fetches an order and checks that its tenant reaches
// customers through the bot identity the update came from.
func (s *Service) loadOrderForBot(ctx context.Context, tenantID, orderID int64, ch channel.Channel, identity string) (*order.Order, error) {
	var (
		o   *order.Order
		err error
	)
	if tenantID > 0 {
		o, err = s.orders.FindByIDForTenant(ctx, tenantID, orderID)
	} else {
		o, err = s.orders.FindByID(ctx, orderID)
	}
	if err != nil {
		return nil, err
	}
	res, err := s.resolver.Resolve(ctx, o.TenantID, ch)
	if err != nil {
		return nil, err
	}
	if !res.Enabled || res.Identity() != identity {
		return nil, shared.ErrForbidden
	}
	return o, nil
}

// decide runs an authorized chat decision through the state machine
func (s *Service) decide(ctx context.Context, o *order.Order, a channel.Action, source order.Source, actor string) (*confirmation.Outcome, error) {
	return s.decider.Decide(ctx, o.TenantID, o.ID, decisionFor(a), source, actor)
}

func decisionFor(a channel.Action) order.Decision {
	if a == channel.ActionDecline {
		return order.DecisionDecline
	}
	return order.DecisionApprove
}

// replyText is what the customer sees after pressing a button
func replyText(out *confirmation.Outcome, err error) string {
	switch {
	case err == nil && out.AlreadyProcessed:
		return fmt.Sprintf("Order #%d was already %s.", out.Order.ID, out.Order.Status)
	case err == nil && out.Order.Status == order.StatusConfirmed:
		return fmt.Sprintf("Order #%d is confirmed. Thank you!", out.Order.ID)
	case err == nil:
		return fmt.Sprintf("Order #%d has been cancelled.", out.Order.ID)
	case errors.Is(err, order.ErrLinkExpired):
		return "This confirmation has expired. Please contact the store."
	case errors.Is(err, shared.ErrForbidden), errors.Is(err, order.ErrLinkInvalid),
		errors.Is(err, order.ErrLinkTenantMismatch), errors.Is(err, order.ErrLinkOrderMismatch):
		return "You are not allowed to change this order."
	case errors.Is(err, shared.ErrNotFound):
		return "We could not find this order."
	default:
		return "Something went wrong. Please try again later."
	}
}

func resultFor(err error) string {
	switch {
	case err == nil:
		return ResultDecided
	case errors.Is(err, shared.ErrForbidden), errors.Is(err, order.ErrLinkInvalid),
		errors.Is(err, order.ErrLinkTenantMismatch), errors.Is(err, order.ErrLinkOrderMismatch):
		return ResultUnauthorized
	default:
		return ResultError
	}
}
