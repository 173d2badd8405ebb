package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SecretSealer encrypts tenant secrets at rest
type SecretSealer interface {
	Seal(plaintext string) (string, error)
	Open(ciphertext string) (string, error)
}

// GormCredentialRepository implements channel.CredentialRepository using GORM.
// Secrets are sealed on write and opened on read; plaintext never reaches
// the database.
type GormCredentialRepository struct {
	db     *gorm.DB
	sealer SecretSealer
}

// NewGormCredentialRepository creates a new GormCredentialRepository
func NewGormCredentialRepository(db *gorm.DB, sealer SecretSealer) *GormCredentialRepository {
	return &GormCredentialRepository{db: db, sealer: sealer}
}

// FindByTenant lists every configured channel for a tenant
func (r *GormCredentialRepository) FindByTenant(ctx context.Context, tenantID int64) ([]channel.TenantCredential, error) {
	var rows []models.ChannelCredentialModel
	if err := r.db.WithContext(ctx).
		Scopes(TenantScope(tenantID)).
		Order("channel").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]channel.TenantCredential, 0, len(rows))
	for i := range rows {
		cred, err := r.toDomain(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *cred)
	}
	return out, nil
}

// FindByTenantAndChannel finds one channel's settings
func (r *GormCredentialRepository) FindByTenantAndChannel(ctx context.Context, tenantID int64, ch channel.Channel) (*channel.TenantCredential, error) {
	var model models.ChannelCredentialModel
	if err := r.db.WithContext(ctx).
		Scopes(TenantScope(tenantID), ChannelScope(ch)).
		First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return r.toDomain(&model)
}

// FindTenantIDsByIdentity lists enabled tenants configured with identity on ch
func (r *GormCredentialRepository) FindTenantIDsByIdentity(ctx context.Context, ch channel.Channel, identity string) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&models.ChannelCredentialModel{}).
		Where("channel = ? AND identity = ? AND enabled = ?", ch, identity, true).
		Order("tenant_id").
		Pluck("tenant_id", &ids).Error
	return ids, err
}

// FindByWebhookSecretHash finds the first enabled credential registered with
// the derived webhook secret. Tenants sharing a bot share the hash.
func (r *GormCredentialRepository) FindByWebhookSecretHash(ctx context.Context, ch channel.Channel, hash string) (*channel.TenantCredential, error) {
	var model models.ChannelCredentialModel
	if err := r.db.WithContext(ctx).
		Where("channel = ? AND webhook_secret_hash = ? AND enabled = ?", ch, hash, true).
		Order("tenant_id").
		First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return r.toDomain(&model)
}

// Save upserts on (tenant, channel)
func (r *GormCredentialRepository) Save(ctx context.Context, cred *channel.TenantCredential) error {
	sealed, err := r.sealer.Seal(cred.Secret)
	if err != nil {
		return fmt.Errorf("seal channel secret: %w", err)
	}
	now := time.Now().UTC()
	model := &models.ChannelCredentialModel{
		ID:                uuid.New(),
		TenantID:          cred.TenantID,
		Channel:           cred.Channel,
		Enabled:           cred.Enabled,
		Identity:          cred.Identity,
		SecretCiphertext:  sealed,
		UsePlatformShared: cred.UsePlatformShared,
		WebhookSecretHash: cred.WebhookSecretHash,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	cred.UpdatedAt = now
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "channel"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"enabled", "identity", "secret_ciphertext", "use_platform_shared",
				"webhook_secret_hash", "updated_at",
			}),
		}).
		Create(model).Error
}

func (r *GormCredentialRepository) toDomain(m *models.ChannelCredentialModel) (*channel.TenantCredential, error) {
	secret, err := r.sealer.Open(m.SecretCiphertext)
	if err != nil {
		return nil, fmt.Errorf("open %s secret for tenant %d: %w", m.Channel, m.TenantID, err)
	}
	return m.ToDomain(secret), nil
}
