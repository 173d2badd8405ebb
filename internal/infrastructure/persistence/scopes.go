package persistence

import (
	"errors"

	"github.com/orderbot/backend/internal/domain/channel"
	"gorm.io/gorm"
)

// ErrTenantIDRequired is added to a query scoped to a non-positive tenant
var ErrTenantIDRequired = errors.New("tenant_id is required")

// TenantScope restricts a query to one tenant's rows. Every tenant-owned
// lookup goes through it so a missing tenant fails loudly instead of
// matching nothing.
func TenantScope(tenantID int64) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if tenantID <= 0 {
			_ = db.AddError(ErrTenantIDRequired)
			return db
		}
		return db.Where("tenant_id = ?", tenantID)
	}
}

// ChannelScope restricts a query to one channel
func ChannelScope(ch channel.Channel) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("channel = ?", ch)
	}
}
