package channel

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/orderbot/backend/internal/domain/shared"
)

// Default lifetimes for linking artefacts
const (
	DefaultPreconnectTTL = 24 * time.Hour
	DefaultSharedWindow  = 30 * time.Minute
)

// IdentityLink maps (tenant, phone, channel) to the channel subscriber id
// (Telegram chat id, Messenger PSID, Viber user id).
type IdentityLink struct {
	shared.BaseEntity
	TenantID     int64
	Phone        string
	Channel      Channel
	SubscriberID string
}

// NewIdentityLink creates a link for a normalized phone number
func NewIdentityLink(tenantID int64, phone string, ch Channel, subscriberID string) (*IdentityLink, error) {
	phone = NormalizePhone(phone)
	if phone == "" {
		return nil, shared.NewDomainError("INVALID_PHONE", "Phone number is required")
	}
	if subscriberID == "" {
		return nil, shared.NewDomainError("INVALID_SUBSCRIBER", "Subscriber id is required")
	}
	return &IdentityLink{
		BaseEntity:   shared.NewBaseEntity(),
		TenantID:     tenantID,
		Phone:        phone,
		Channel:      ch,
		SubscriberID: subscriberID,
	}, nil
}

// PreconnectToken is a single-use token that ties (tenant, phone, channel)
// to the subscriber who later opens the bot deep link.
type PreconnectToken struct {
	shared.BaseEntity
	Token       string
	TenantID    int64
	Phone       string
	Channel     Channel
	OrderID     *int64
	BotIdentity string
	Shared      bool
	ExpiresAt   time.Time
	UsedAt      *time.Time
}

// NewPreconnectToken mints a token valid for ttl from now.
func NewPreconnectToken(tenantID int64, phone string, ch Channel, orderID *int64, res Resolution, ttl time.Duration, now time.Time) (*PreconnectToken, error) {
	phone = NormalizePhone(phone)
	if phone == "" {
		return nil, shared.NewDomainError("INVALID_PHONE", "Phone number is required")
	}
	if !ch.RequiresLink() {
		return nil, shared.NewDomainError("LINK_NOT_REQUIRED", fmt.Sprintf("Channel %s does not need linking", ch))
	}
	if ttl <= 0 {
		ttl = DefaultPreconnectTTL
	}
	token, err := NewOpaqueToken(16)
	if err != nil {
		return nil, err
	}
	base := shared.NewBaseEntity()
	base.CreatedAt = now
	base.UpdatedAt = now
	return &PreconnectToken{
		BaseEntity:  base,
		Token:       token,
		TenantID:    tenantID,
		Phone:       phone,
		Channel:     ch,
		OrderID:     orderID,
		BotIdentity: res.Identity(),
		Shared:      res.UsingPlatformShared,
		ExpiresAt:   now.Add(ttl),
	}, nil
}

// IsUsable reports whether the token is unused and unexpired at now
func (t *PreconnectToken) IsUsable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}

// MarkUsed consumes the token
func (t *PreconnectToken) MarkUsed(now time.Time) error {
	if t.UsedAt != nil {
		return shared.NewDomainError("TOKEN_USED", "Preconnect token has already been used")
	}
	if !now.Before(t.ExpiresAt) {
		return shared.NewDomainError("TOKEN_EXPIRED", "Preconnect token has expired")
	}
	t.UsedAt = &now
	t.UpdatedAt = now
	return nil
}

// OrderChannelBinding records which subscriber received the confirmation
// prompt for an order so replies from that subscriber are authorized.
type OrderChannelBinding struct {
	shared.BaseEntity
	OrderID      int64
	TenantID     int64
	Channel      Channel
	SubscriberID string
}

// NewOrderChannelBinding creates a binding
func NewOrderChannelBinding(tenantID, orderID int64, ch Channel, subscriberID string) *OrderChannelBinding {
	return &OrderChannelBinding{
		BaseEntity:   shared.NewBaseEntity(),
		OrderID:      orderID,
		TenantID:     tenantID,
		Channel:      ch,
		SubscriberID: subscriberID,
	}
}

// NewOpaqueToken returns n random bytes encoded as unpadded base64url, which
// is valid in Telegram start parameters and Messenger ref values.
func NewOpaqueToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
