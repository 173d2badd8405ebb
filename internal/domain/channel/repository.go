package channel

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CredentialRepository persists tenant channel credentials.
type CredentialRepository interface {
	FindByTenant(ctx context.Context, tenantID int64) ([]TenantCredential, error)
	FindByTenantAndChannel(ctx context.Context, tenantID int64, ch Channel) (*TenantCredential, error)
	// FindTenantIDsByIdentity lists tenants whose stored identity (bot username,
	// page id) equals identity on ch.
	FindTenantIDsByIdentity(ctx context.Context, ch Channel, identity string) ([]int64, error)
	FindByWebhookSecretHash(ctx context.Context, ch Channel, hash string) (*TenantCredential, error)
	Save(ctx context.Context, cred *TenantCredential) error
}

// IdentityLinkRepository persists phone to subscriber links.
type IdentityLinkRepository interface {
	// Upsert creates or overwrites the link for (tenant, phone, channel).
	Upsert(ctx context.Context, link *IdentityLink) error
	Find(ctx context.Context, tenantID int64, phone string, ch Channel) (*IdentityLink, error)
	FindBySubscriber(ctx context.Context, tenantID int64, ch Channel, subscriberID string) ([]IdentityLink, error)
}

// PreconnectTokenRepository persists preconnect tokens.
type PreconnectTokenRepository interface {
	// Replace deletes any unused token for the same (tenant, phone, channel)
	// and stores t in one transaction.
	Replace(ctx context.Context, t *PreconnectToken) error
	FindByToken(ctx context.Context, token string) (*PreconnectToken, error)
	// Consume marks the token used and stores link, plus binding when it is
	// not nil, in one transaction. It returns false and writes nothing when
	// another request consumed the token first. A failed write leaves the
	// token unused.
	Consume(ctx context.Context, id uuid.UUID, usedAt time.Time, link *IdentityLink, binding *OrderChannelBinding) (bool, error)
	// FindSharedCandidates returns unused, unexpired tokens minted on the
	// shared identity at or after createdAfter.
	FindSharedCandidates(ctx context.Context, ch Channel, botIdentity string, createdAfter, now time.Time) ([]PreconnectToken, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// OrderBindingRepository persists per-order subscriber bindings.
type OrderBindingRepository interface {
	// Bind upserts on (order, channel).
	Bind(ctx context.Context, b *OrderChannelBinding) error
	Find(ctx context.Context, orderID int64, ch Channel) (*OrderChannelBinding, error)
}
