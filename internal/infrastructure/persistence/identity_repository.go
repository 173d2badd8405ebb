package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormIdentityLinkRepository implements channel.IdentityLinkRepository
type GormIdentityLinkRepository struct {
	db *gorm.DB
}

// NewGormIdentityLinkRepository creates a new GormIdentityLinkRepository
func NewGormIdentityLinkRepository(db *gorm.DB) *GormIdentityLinkRepository {
	return &GormIdentityLinkRepository{db: db}
}

// Upsert creates the link or replaces the subscriber id for the key
func (r *GormIdentityLinkRepository) Upsert(ctx context.Context, link *channel.IdentityLink) error {
	return upsertLink(r.db.WithContext(ctx), link)
}

func upsertLink(db *gorm.DB, link *channel.IdentityLink) error {
	return db.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "phone"}, {Name: "channel"}},
			DoUpdates: clause.AssignmentColumns([]string{"subscriber_id", "updated_at"}),
		}).
		Create(models.IdentityLinkModelFromDomain(link)).Error
}

// Find returns the link for (tenant, phone, channel)
func (r *GormIdentityLinkRepository) Find(ctx context.Context, tenantID int64, phone string, ch channel.Channel) (*channel.IdentityLink, error) {
	var model models.IdentityLinkModel
	if err := r.db.WithContext(ctx).
		Scopes(TenantScope(tenantID), ChannelScope(ch)).
		Where("phone = ?", channel.NormalizePhone(phone)).
		First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindBySubscriber lists the phones a subscriber is linked to within a tenant
func (r *GormIdentityLinkRepository) FindBySubscriber(ctx context.Context, tenantID int64, ch channel.Channel, subscriberID string) ([]channel.IdentityLink, error) {
	var rows []models.IdentityLinkModel
	if err := r.db.WithContext(ctx).
		Scopes(TenantScope(tenantID), ChannelScope(ch)).
		Where("subscriber_id = ?", subscriberID).
		Order("updated_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]channel.IdentityLink, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out, nil
}

// GormPreconnectTokenRepository implements channel.PreconnectTokenRepository
type GormPreconnectTokenRepository struct {
	db *gorm.DB
}

// NewGormPreconnectTokenRepository creates a new GormPreconnectTokenRepository
func NewGormPreconnectTokenRepository(db *gorm.DB) *GormPreconnectTokenRepository {
	return &GormPreconnectTokenRepository{db: db}
}

// Replace drops the prior unused token for (tenant, phone, channel) and
// stores t, in one transaction.
func (r *GormPreconnectTokenRepository) Replace(ctx context.Context, t *channel.PreconnectToken) error {
	model := models.PreconnectTokenModelFromDomain(t)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("tenant_id = ? AND phone = ? AND channel = ? AND used_at IS NULL", t.TenantID, t.Phone, t.Channel).
			Delete(&models.PreconnectTokenModel{}).Error; err != nil {
			return err
		}
		return tx.Create(model).Error
	})
}

// FindByToken returns the token row regardless of state
func (r *GormPreconnectTokenRepository) FindByToken(ctx context.Context, token string) (*channel.PreconnectToken, error) {
	var model models.PreconnectTokenModel
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// errTokenTaken rolls back a Consume that lost the race
var errTokenTaken = errors.New("preconnect token already used")

// Consume flips used_at and writes the link and binding, all or nothing.
// Only the transaction that flips used_at goes on to write.
func (r *GormPreconnectTokenRepository) Consume(ctx context.Context, id uuid.UUID, usedAt time.Time, link *channel.IdentityLink, binding *channel.OrderChannelBinding) (bool, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.
			Model(&models.PreconnectTokenModel{}).
			Where("id = ? AND used_at IS NULL", id).
			Updates(map[string]any{"used_at": usedAt.UTC(), "updated_at": usedAt.UTC()})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return errTokenTaken
		}
		if err := upsertLink(tx, link); err != nil {
			return fmt.Errorf("store identity link: %w", err)
		}
		if binding != nil {
			if err := bindOrder(tx, binding); err != nil {
				return fmt.Errorf("bind order: %w", err)
			}
		}
		return nil
	})
	if errors.Is(err, errTokenTaken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// FindSharedCandidates lists usable tokens minted on a shared identity
func (r *GormPreconnectTokenRepository) FindSharedCandidates(ctx context.Context, ch channel.Channel, botIdentity string, createdAfter, now time.Time) ([]channel.PreconnectToken, error) {
	var rows []models.PreconnectTokenModel
	if err := r.db.WithContext(ctx).
		Where("channel = ? AND bot_identity = ? AND shared = ?", ch, botIdentity, true).
		Where("used_at IS NULL AND expires_at > ? AND created_at >= ?", now.UTC(), createdAfter.UTC()).
		Order("created_at").
		Limit(10).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]channel.PreconnectToken, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out, nil
}

// DeleteExpired removes tokens that expired before the cutoff
func (r *GormPreconnectTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", before.UTC()).
		Delete(&models.PreconnectTokenModel{})
	return result.RowsAffected, result.Error
}

// GormOrderBindingRepository implements channel.OrderBindingRepository
type GormOrderBindingRepository struct {
	db *gorm.DB
}

// NewGormOrderBindingRepository creates a new GormOrderBindingRepository
func NewGormOrderBindingRepository(db *gorm.DB) *GormOrderBindingRepository {
	return &GormOrderBindingRepository{db: db}
}

// Bind upserts the binding on (order, channel)
func (r *GormOrderBindingRepository) Bind(ctx context.Context, b *channel.OrderChannelBinding) error {
	return bindOrder(r.db.WithContext(ctx), b)
}

func bindOrder(db *gorm.DB, b *channel.OrderChannelBinding) error {
	return db.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "channel"}},
			DoUpdates: clause.AssignmentColumns([]string{"subscriber_id", "tenant_id", "updated_at"}),
		}).
		Create(models.OrderChannelBindingModelFromDomain(b)).Error
}

// Find returns the binding for (order, channel)
func (r *GormOrderBindingRepository) Find(ctx context.Context, orderID int64, ch channel.Channel) (*channel.OrderChannelBinding, error) {
	var model models.OrderChannelBindingModel
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND channel = ?", orderID, ch).
		First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}
