package persistence

import (
	"context"
	"time"

	"github.com/orderbot/backend/internal/domain/order"
	"github.com/orderbot/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOrderRepository implements order.Repository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// FindByID finds an order by its ID
func (r *GormOrderRepository) FindByID(ctx context.Context, id int64) (*order.Order, error) {
	var model models.OrderModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindByIDForTenant finds an order only if it belongs to tenantID
func (r *GormOrderRepository) FindByIDForTenant(ctx context.Context, tenantID, id int64) (*order.Order, error) {
	var model models.OrderModel
	if err := r.db.WithContext(ctx).
		Scopes(TenantScope(tenantID)).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// Decide moves a pending order to `to` and records the decision. The status
// update is conditional on status = pending, so of two concurrent callers
// exactly one sees RowsAffected == 1. The record insert is first-write-wins.
func (r *GormOrderRepository) Decide(ctx context.Context, rec *order.ConfirmationRecord, to order.Status) (bool, error) {
	decided := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		at := rec.DecidedAt.UTC()
		updates := map[string]any{
			"status":     to,
			"version":    gorm.Expr("version + 1"),
			"updated_at": at,
		}
		switch to {
		case order.StatusConfirmed:
			updates["confirmed_at"] = at
		case order.StatusCancelled:
			updates["cancelled_at"] = at
		}

		result := tx.Model(&models.OrderModel{}).
			Where("id = ? AND tenant_id = ? AND status = ?", rec.OrderID, rec.TenantID, order.StatusPending).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoNothing: true,
		}).Create(models.ConfirmationRecordModelFromDomain(rec)).Error; err != nil {
			return err
		}
		decided = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return decided, nil
}

// UpdateDetails writes customer-editable fields while the order is pending
func (r *GormOrderRepository) UpdateDetails(ctx context.Context, o *order.Order) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.OrderModel{}).
		Where("id = ? AND tenant_id = ? AND status = ?", o.ID, o.TenantID, order.StatusPending).
		Updates(map[string]any{
			"customer_name":  o.CustomerName,
			"customer_phone": o.CustomerPhone,
			"address":        o.Address,
			"quantity":       o.Quantity,
			"total":          o.Total,
			"version":        gorm.Expr("version + 1"),
			"updated_at":     o.UpdatedAt.UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// GormConfirmationLinkRepository implements order.ConfirmationLinkRepository
type GormConfirmationLinkRepository struct {
	db *gorm.DB
}

// NewGormConfirmationLinkRepository creates a new GormConfirmationLinkRepository
func NewGormConfirmationLinkRepository(db *gorm.DB) *GormConfirmationLinkRepository {
	return &GormConfirmationLinkRepository{db: db}
}

// Replace stores l and drops any previous link for the order
func (r *GormConfirmationLinkRepository) Replace(ctx context.Context, l *order.ConfirmationLink) error {
	model := models.ConfirmationLinkModelFromDomain(l)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", l.OrderID).Delete(&models.ConfirmationLinkModel{}).Error; err != nil {
			return err
		}
		return tx.Create(model).Error
	})
}

// FindByToken finds a link by its token
func (r *GormConfirmationLinkRepository) FindByToken(ctx context.Context, token string) (*order.ConfirmationLink, error) {
	var model models.ConfirmationLinkModel
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindByOrder finds the current link for an order
func (r *GormConfirmationLinkRepository) FindByOrder(ctx context.Context, orderID int64) (*order.ConfirmationLink, error) {
	var model models.ConfirmationLinkModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// RecordAccess bumps the access counter
func (r *GormConfirmationLinkRepository) RecordAccess(ctx context.Context, token string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.ConfirmationLinkModel{}).
		Where("token = ?", token).
		Updates(map[string]any{
			"access_count":     gorm.Expr("access_count + 1"),
			"last_accessed_at": at.UTC(),
		}).Error
}

// DeleteExpired removes links that expired before the cutoff
func (r *GormConfirmationLinkRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", before.UTC()).
		Delete(&models.ConfirmationLinkModel{})
	return result.RowsAffected, result.Error
}

// GormConfirmationRecordRepository implements order.ConfirmationRecordRepository
type GormConfirmationRecordRepository struct {
	db *gorm.DB
}

// NewGormConfirmationRecordRepository creates a new GormConfirmationRecordRepository
func NewGormConfirmationRecordRepository(db *gorm.DB) *GormConfirmationRecordRepository {
	return &GormConfirmationRecordRepository{db: db}
}

// FindByOrder returns the decision record for an order
func (r *GormConfirmationRecordRepository) FindByOrder(ctx context.Context, orderID int64) (*order.ConfirmationRecord, error) {
	var model models.ConfirmationRecordModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}
