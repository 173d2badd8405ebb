package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/orderbot/backend/internal/domain/shared"
)

// DefaultLinkTTL is the lifetime of a confirmation link
const DefaultLinkTTL = 48 * time.Hour

// Link validation errors
var (
	ErrLinkTenantMismatch = shared.NewDomainError("LINK_TENANT_MISMATCH", "Confirmation link does not belong to this store")
	ErrLinkOrderMismatch  = shared.NewDomainError("LINK_ORDER_MISMATCH", "Confirmation link does not belong to this order")
	ErrLinkExpired        = shared.NewDomainError("LINK_EXPIRED", "Confirmation link has expired")
	ErrLinkInvalid        = shared.NewDomainError("LINK_INVALID", "Confirmation link is invalid")
)

// ConfirmationLink is the tokenized URL a customer uses to confirm, decline
// or edit a pending order without signing in.
type ConfirmationLink struct {
	shared.BaseEntity
	Token          string
	TenantID       int64
	OrderID        int64
	ExpiresAt      time.Time
	AccessCount    int
	LastAccessedAt *time.Time
}

// NewConfirmationLink creates a link expiring ttl after now
func NewConfirmationLink(tenantID, orderID int64, token string, ttl time.Duration, now time.Time) *ConfirmationLink {
	if ttl <= 0 {
		ttl = DefaultLinkTTL
	}
	base := shared.NewBaseEntity()
	base.CreatedAt = now
	base.UpdatedAt = now
	return &ConfirmationLink{
		BaseEntity: base,
		Token:      token,
		TenantID:   tenantID,
		OrderID:    orderID,
		ExpiresAt:  now.Add(ttl),
	}
}

// IsExpired reports whether the link is dead at now. The expiry instant
// itself already counts as expired, like PreconnectToken.IsUsable.
func (l *ConfirmationLink) IsExpired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// Authorize checks the link against the tenant resolved from the URL slug,
// the order id in the URL, and the tenant that actually owns the order.
// Ownership is checked before expiry so a replay on another store is always
// a 403, never a 410.
func (l *ConfirmationLink) Authorize(slugTenantID, orderID int64, o *Order, now time.Time) error {
	if l.TenantID != slugTenantID {
		return ErrLinkTenantMismatch
	}
	if l.OrderID != orderID {
		return ErrLinkOrderMismatch
	}
	if o != nil && (o.TenantID != l.TenantID || o.ID != l.OrderID) {
		return ErrLinkTenantMismatch
	}
	if l.IsExpired(now) {
		return ErrLinkExpired
	}
	return nil
}

// Source names where a decision came from
type Source string

const (
	SourceLink      Source = "link"
	SourceTelegram  Source = "telegram"
	SourceMessenger Source = "messenger"
)

// ConfirmationRecord is the single, first-write-wins record of a decision.
type ConfirmationRecord struct {
	ID        uuid.UUID
	OrderID   int64
	TenantID  int64
	Decision  Decision
	Source    Source
	Actor     string
	DecidedAt time.Time
}

// NewConfirmationRecord creates a record
func NewConfirmationRecord(o *Order, d Decision, source Source, actor string, now time.Time) *ConfirmationRecord {
	return &ConfirmationRecord{
		ID:        uuid.New(),
		OrderID:   o.ID,
		TenantID:  o.TenantID,
		Decision:  d,
		Source:    source,
		Actor:     actor,
		DecidedAt: now,
	}
}
