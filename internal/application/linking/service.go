// Package linking binds chat subscribers to customer phone numbers so that
// order notifications can be addressed on channels that do not expose the
// phone number.
package linking

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/domain/order"
	"github.com/orderbot/backend/internal/domain/outbound"
	"github.com/orderbot/backend/internal/domain/shared"
	"github.com/orderbot/backend/internal/domain/tenant"
	"github.com/orderbot/backend/internal/infrastructure/rendering"
	"github.com/orderbot/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// greetingFallbackName replaces {customer_name} when no order is known
const greetingFallbackName = "there"

// Config holds token lifetimes
type Config struct {
	TokenTTL     time.Duration
	SharedWindow time.Duration
}

// MintResult is a freshly minted preconnect token and the deep link that
// carries it
type MintResult struct {
	Token               string          `json:"token"`
	DeepLink            string          `json:"deep_link"`
	Channel             channel.Channel `json:"channel"`
	ExpiresAt           time.Time       `json:"expires_at"`
	UsingPlatformShared bool            `json:"using_platform_shared"`
}

// BindResult describes a successful bind
type BindResult struct {
	Link     *channel.IdentityLink
	Strategy string
	OrderID  *int64
}

// Repositories groups the stores the service needs
type Repositories struct {
	Tokens   channel.PreconnectTokenRepository
	Links    channel.IdentityLinkRepository
	Bindings channel.OrderBindingRepository
	Tenants  tenant.Repository
	Orders   order.Repository
	Outbound outbound.Repository
}

// Service mints preconnect tokens and resolves inbound contacts into
// identity links.
type Service struct {
	cfg        Config
	resolver   *channel.CredentialResolver
	repos      Repositories
	publisher  shared.EventPublisher
	strategies []BindingStrategy
	chain      AuthorizationChain
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithStrategies replaces the default binding strategies
func WithStrategies(strategies ...BindingStrategy) Option {
	return func(s *Service) { s.strategies = strategies }
}

// NewService creates the linking service with the default strategies
// (preconnect-token, then shared-single-candidate) and the default
// authorization chain (order-binding, then phone-link).
func NewService(cfg Config, resolver *channel.CredentialResolver, repos Repositories, publisher shared.EventPublisher, log *zap.Logger, opts ...Option) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = channel.DefaultPreconnectTTL
	}
	if cfg.SharedWindow <= 0 {
		cfg.SharedWindow = channel.DefaultSharedWindow
	}
	s := &Service{
		cfg:       cfg,
		resolver:  resolver,
		repos:     repos,
		publisher: publisher,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
		strategies: []BindingStrategy{
			NewPreconnectTokenStrategy(repos.Tokens),
			NewSharedSingleCandidateStrategy(repos.Tokens, resolver.Platform(), cfg.SharedWindow, log),
		},
		chain: AuthorizationChain{
			NewOrderBindingAuthorizer(repos.Bindings),
			NewPhoneLinkAuthorizer(repos.Links),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mint issues a preconnect token for (tenant, phone, channel). Any unused
// token for the same key is invalidated.
func (s *Service) Mint(ctx context.Context, tenantID int64, phone string, ch channel.Channel, orderID *int64) (*MintResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "linking", "Mint",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID),
		telemetry.WithAttribute(telemetry.SpanAttrChannel, ch.String()),
	)
	defer span.End()

	if !ch.IsValid() {
		return nil, shared.NewDomainError("INVALID_CHANNEL", fmt.Sprintf("Unknown channel %q", ch))
	}
	res, err := s.resolver.Resolve(ctx, tenantID, ch)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("resolve credential: %w", err)
	}
	if !res.Enabled {
		return nil, shared.NewDomainError(shared.ErrChannelDisabled.Code, res.Reason)
	}

	now := s.now()
	t, err := channel.NewPreconnectToken(tenantID, phone, ch, orderID, res, s.cfg.TokenTTL, now)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Tokens.Replace(ctx, t); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("store preconnect token: %w", err)
	}

	link, err := DeepLink(ch, res.Identity(), t.Token)
	if err != nil {
		return nil, err
	}
	telemetry.SetOK(span)
	return &MintResult{
		Token:               t.Token,
		DeepLink:            link,
		Channel:             ch,
		ExpiresAt:           t.ExpiresAt,
		UsingPlatformShared: res.UsingPlatformShared,
	}, nil
}

// DeepLink builds the link that opens identity's bot with token as payload
func DeepLink(ch channel.Channel, identity, token string) (string, error) {
	if identity == "" {
		return "", shared.NewDomainError("MISSING_IDENTITY", fmt.Sprintf("No bot identity configured for %s", ch))
	}
	switch ch {
	case channel.Telegram:
		return "https://t.me/" + url.PathEscape(identity) + "?start=" + url.QueryEscape(token), nil
	case channel.Messenger:
		return "https://m.me/" + url.PathEscape(identity) + "?ref=" + url.QueryEscape(token), nil
	case channel.Viber:
		return "viber://pa?chatURI=" + url.QueryEscape(identity) + "&context=" + url.QueryEscape(token), nil
	}
	return "", shared.NewDomainError("LINK_NOT_REQUIRED", fmt.Sprintf("Channel %s does not need linking", ch))
}

// ResolveAndBind runs the binding strategies in order against an inbound
// contact. It returns nil when no strategy produced a binding.
func (s *Service) ResolveAndBind(ctx context.Context, c Contact) (*BindResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "linking", "ResolveAndBind",
		telemetry.WithAttribute(telemetry.SpanAttrChannel, c.Channel.String()),
	)
	defer span.End()

	if c.SubscriberID == "" {
		return nil, nil
	}
	now := s.now()
	log := s.logger.With(zap.String("channel", c.Channel.String()))

	for _, strategy := range s.strategies {
		tok, err := strategy.Match(ctx, c, now)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("strategy %s: %w", strategy.Name(), err)
		}
		if tok == nil {
			continue
		}

		result, won, err := s.bind(ctx, tok, c, strategy.Name(), now)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		if !won {
			log.Info("Preconnect token already consumed", zap.String("strategy", strategy.Name()))
			return nil, nil
		}
		telemetry.SetAttribute(span, telemetry.SpanAttrTenantID, tok.TenantID)
		telemetry.SetOK(span)
		return result, nil
	}
	return nil, nil
}

// bind consumes tok and stores the link and order binding together. Only the
// request that consumes the token goes on to greet and publish.
func (s *Service) bind(ctx context.Context, tok *channel.PreconnectToken, c Contact, strategy string, now time.Time) (*BindResult, bool, error) {
	link, err := channel.NewIdentityLink(tok.TenantID, tok.Phone, tok.Channel, c.SubscriberID)
	if err != nil {
		return nil, false, err
	}
	link.CreatedAt = now
	link.UpdatedAt = now

	var binding *channel.OrderChannelBinding
	if tok.OrderID != nil {
		binding = channel.NewOrderChannelBinding(tok.TenantID, *tok.OrderID, tok.Channel, c.SubscriberID)
	}
	won, err := s.repos.Tokens.Consume(ctx, tok.ID, now, link, binding)
	if err != nil {
		return nil, false, fmt.Errorf("consume preconnect token: %w", err)
	}
	if !won {
		return nil, false, nil
	}

	log := s.logger.With(
		zap.Int64("tenant_id", tok.TenantID),
		zap.String("channel", tok.Channel.String()),
		zap.String("strategy", strategy),
	)

	if err := s.enqueueGreeting(ctx, tok, now); err != nil {
		log.Warn("Failed to enqueue connected notice", zap.Error(err))
	}

	if s.publisher != nil {
		ev := channel.NewIdentityLinkedEvent(link, tok.OrderID, strategy)
		if err := s.publisher.Publish(ctx, ev); err != nil {
			log.Error("Failed to publish identity.linked", zap.Error(err))
		}
	}

	log.Info("Identity linked")
	return &BindResult{Link: link, Strategy: strategy, OrderID: tok.OrderID}, true, nil
}

// enqueueGreeting queues the one-time connected notice. It goes through the
// outbound queue so it is delivered before the released backlog.
func (s *Service) enqueueGreeting(ctx context.Context, tok *channel.PreconnectToken, now time.Time) error {
	t, err := s.repos.Tenants.FindByID(ctx, tok.TenantID)
	if err != nil {
		return fmt.Errorf("load tenant: %w", err)
	}
	var o *order.Order
	if tok.OrderID != nil {
		o, err = s.repos.Orders.FindByIDForTenant(ctx, tok.TenantID, *tok.OrderID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("load order: %w", err)
		}
	}
	extra := rendering.Vars{rendering.VarChannel: tok.Channel.String()}
	if o == nil {
		extra[rendering.VarCustomerName] = greetingFallbackName
	}
	body := rendering.Render(t.Template(tenant.TemplateGreeting), rendering.OrderVars(o, t, extra))

	m, err := outbound.NewMessage(tok.TenantID, tok.OrderID, tok.Channel, tok.Phone, outbound.PurposeGreeting, body, now)
	if err != nil {
		return err
	}
	m.CreatedAt = now
	m.UpdatedAt = now
	return s.repos.Outbound.Enqueue(ctx, m)
}

// AuthorizeSender runs the sender authorization chain for a chat callback.
// It returns the accepting authorizer's name, or shared.ErrForbidden.
func (s *Service) AuthorizeSender(ctx context.Context, o *order.Order, ch channel.Channel, subscriberID string) (string, error) {
	name, err := s.chain.Authorize(ctx, o, ch, subscriberID)
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", shared.ErrForbidden
	}
	return name, nil
}
