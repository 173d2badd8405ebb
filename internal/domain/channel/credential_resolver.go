package channel

import (
	"context"
	"errors"

	"github.com/orderbot/backend/internal/domain/shared"
)

// CredentialResolver loads a tenant's stored settings and applies Resolve.
type CredentialResolver struct {
	repo     CredentialRepository
	platform PlatformCredentials
}

// NewCredentialResolver creates a resolver
func NewCredentialResolver(repo CredentialRepository, platform PlatformCredentials) *CredentialResolver {
	return &CredentialResolver{repo: repo, platform: platform}
}

// Resolve returns the resolution for tenantID on ch. A tenant with no row
// for the channel resolves as disabled.
func (r *CredentialResolver) Resolve(ctx context.Context, tenantID int64, ch Channel) (Resolution, error) {
	tc, err := r.repo.FindByTenantAndChannel(ctx, tenantID, ch)
	if errors.Is(err, shared.ErrNotFound) {
		tc = nil
	} else if err != nil {
		return Resolution{Channel: ch}, err
	}
	return Resolve(ch, tc, r.platform), nil
}

// ResolveAll resolves every channel for tenantID, in All() order
func (r *CredentialResolver) ResolveAll(ctx context.Context, tenantID int64) ([]Resolution, error) {
	stored, err := r.repo.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	byChannel := make(map[Channel]*TenantCredential, len(stored))
	for i := range stored {
		byChannel[stored[i].Channel] = &stored[i]
	}
	out := make([]Resolution, 0, len(All()))
	for _, ch := range All() {
		out = append(out, Resolve(ch, byChannel[ch], r.platform))
	}
	return out, nil
}

// Platform exposes the shared credentials, for callers that need to know
// whether an inbound bot identity is the shared one.
func (r *CredentialResolver) Platform() PlatformCredentials {
	return r.platform
}
