package confirmation

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/orderbot/backend/internal/domain/order"
	"github.com/orderbot/backend/internal/domain/shared"
	"github.com/orderbot/backend/internal/domain/tenant"
	"github.com/orderbot/backend/internal/infrastructure/auth"
	"go.uber.org/zap"
)

// ErrInvalidPhone is returned when an edited phone is not E.164
var ErrInvalidPhone = shared.NewDomainError("INVALID_PHONE", "Customer phone must be in E.164 format, e.g. +15551234567")

// LinkConfig configures confirmation links
type LinkConfig struct {
	TTL           time.Duration
	PublicBaseURL string
}

// IssuedLink is a minted confirmation link
type IssuedLink struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LinkView is what the confirmation page renders
type LinkView struct {
	Tenant *tenant.Tenant
	Order  *order.Order
	Link   *order.ConfirmationLink
}

// LinkService handles the customer-facing confirmation link: issue, view,
// decide and edit.
type LinkService struct {
	cfg      LinkConfig
	signer   *auth.LinkSigner
	links    order.ConfirmationLinkRepository
	orders   order.Repository
	tenants  tenant.Repository
	decider  *Service
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewLinkService creates a LinkService
func NewLinkService(cfg LinkConfig, signer *auth.LinkSigner, links order.ConfirmationLinkRepository, orders order.Repository, tenants tenant.Repository, decider *Service, logger *zap.Logger) *LinkService {
	if cfg.TTL <= 0 {
		cfg.TTL = order.DefaultLinkTTL
	}
	return &LinkService{
		cfg:      cfg,
		signer:   signer,
		links:    links,
		orders:   orders,
		tenants:  tenants,
		decider:  decider,
		validate: validator.New(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source
func (s *LinkService) SetClock(now func() time.Time) {
	s.now = now
}

// Issue mints a link for o, replacing any previous one
func (s *LinkService) Issue(ctx context.Context, t *tenant.Tenant, o *order.Order) (*IssuedLink, error) {
	if o.TenantID != t.ID {
		return nil, order.ErrLinkTenantMismatch
	}
	token, err := s.signer.Sign(t.ID, o.ID)
	if err != nil {
		return nil, fmt.Errorf("sign confirmation link: %w", err)
	}
	l := order.NewConfirmationLink(t.ID, o.ID, token, s.cfg.TTL, s.now())
	if err := s.links.Replace(ctx, l); err != nil {
		return nil, fmt.Errorf("store confirmation link: %w", err)
	}
	return &IssuedLink{Token: token, URL: s.URL(t.Slug, o.ID, token), ExpiresAt: l.ExpiresAt}, nil
}

// URL builds the public confirmation page address
func (s *LinkService) URL(slug string, orderID int64, token string) string {
	base := strings.TrimRight(s.cfg.PublicBaseURL, "/")
	return base + "/confirm/" + url.PathEscape(slug) + "/order/" + strconv.FormatInt(orderID, 10) + "?token=" + url.QueryEscape(token)
}

// authorize resolves a (slug, order, token) triple. The MAC is checked
// before touching the link table so forged tokens cost no lookup.
func (s *LinkService) authorize(ctx context.Context, slug string, orderID int64, token string) (*LinkView, error) {
	t, err := s.tenants.FindBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if token == "" || s.signer.Verify(token, t.ID, orderID) != nil {
		return nil, order.ErrLinkInvalid
	}
	l, err := s.links.FindByToken(ctx, token)
	if errors.Is(err, shared.ErrNotFound) {
		// Correctly signed but gone: replaced by a reissue or purged.
		return nil, order.ErrLinkExpired
	}
	if err != nil {
		return nil, err
	}
	o, err := s.orders.FindByID(ctx, l.OrderID)
	if err != nil {
		return nil, err
	}
	if err := l.Authorize(t.ID, orderID, o, s.now()); err != nil {
		return nil, err
	}
	return &LinkView{Tenant: t, Order: o, Link: l}, nil
}

// View returns the order behind a link and counts the access
func (s *LinkService) View(ctx context.Context, slug string, orderID int64, token string) (*LinkView, error) {
	v, err := s.authorize(ctx, slug, orderID, token)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.links.RecordAccess(ctx, token, now); err != nil {
		s.logger.Warn("Failed to record link access",
			zap.Int64("order_id", orderID), zap.Error(err))
	} else {
		v.Link.AccessCount++
		v.Link.LastAccessedAt = &now
	}
	return v, nil
}

// Decide applies the customer's decision through the link
func (s *LinkService) Decide(ctx context.Context, slug string, orderID int64, token string, d order.Decision) (*Outcome, error) {
	v, err := s.authorize(ctx, slug, orderID, token)
	if err != nil {
		return nil, err
	}
	return s.decider.Decide(ctx, v.Tenant.ID, orderID, d, order.SourceLink, "link")
}

// DecideByToken applies a decision carried by a chat button that embeds the
// link token instead of the order and tenant ids. The token alone authorizes
// the caller, so tenant and order come from the stored link.
func (s *LinkService) DecideByToken(ctx context.Context, token string, d order.Decision, source order.Source, actor string) (*Outcome, error) {
	if !s.signer.WellFormed(token) {
		return nil, order.ErrLinkInvalid
	}
	l, err := s.links.FindByToken(ctx, token)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, order.ErrLinkExpired
	}
	if err != nil {
		return nil, err
	}
	if s.signer.Verify(token, l.TenantID, l.OrderID) != nil {
		return nil, order.ErrLinkInvalid
	}
	o, err := s.orders.FindByID(ctx, l.OrderID)
	if err != nil {
		return nil, err
	}
	if err := l.Authorize(l.TenantID, l.OrderID, o, s.now()); err != nil {
		return nil, err
	}
	return s.decider.Decide(ctx, l.TenantID, l.OrderID, d, source, actor)
}

// Update lets the customer correct details while the order is pending. A
// changed quantity recomputes the total.
func (s *LinkService) Update(ctx context.Context, slug string, orderID int64, token string, e order.Edit) (*order.Order, error) {
	v, err := s.authorize(ctx, slug, orderID, token)
	if err != nil {
		return nil, err
	}
	if e.CustomerPhone != nil {
		phone := strings.TrimSpace(*e.CustomerPhone)
		if err := s.validate.Var(phone, "required,e164"); err != nil {
			return nil, ErrInvalidPhone
		}
		e.CustomerPhone = &phone
	}

	o := v.Order
	if !o.IsPending() {
		return nil, shared.NewDomainError(shared.ErrInvalidState.Code, fmt.Sprintf("Order is already %s", o.Status))
	}
	if err := o.ApplyEdit(e, s.now()); err != nil {
		return nil, err
	}
	ok, err := s.orders.UpdateDetails(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("update order %d: %w", orderID, err)
	}
	if !ok {
		return nil, shared.NewDomainError(shared.ErrInvalidState.Code, "Order was decided while editing")
	}

	if s.decider != nil && s.decider.publisher != nil {
		if err := s.decider.publisher.Publish(ctx, order.NewStatusChangedEvent(o, order.SourceLink)); err != nil {
			s.logger.Error("Failed to publish order update", zap.Int64("order_id", orderID), zap.Error(err))
		}
	}
	return o, nil
}
