package persistence

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/orderbot/backend/internal/domain/order"
	"github.com/orderbot/backend/internal/domain/tenant"
	"github.com/orderbot/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens a private in-memory SQLite database with the full schema.
// A single connection keeps the shared-cache database alive and serializes
// writers the way row locks do on Postgres.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func seedTenant(t *testing.T, db *gorm.DB, slug string) *tenant.Tenant {
	t.Helper()
	tn := &tenant.Tenant{Slug: slug, Name: strings.ToUpper(slug), Locale: "en", ConfirmationDelayMinutes: 5}
	require.NoError(t, NewGormTenantRepository(db).Save(context.Background(), tn))
	return tn
}

func seedOrder(t *testing.T, db *gorm.DB, tenantID int64) *order.Order {
	t.Helper()
	now := time.Now().UTC()
	m := &models.OrderModel{
		TenantID:      tenantID,
		ProductRef:    "SKU-1",
		ProductName:   "Mug",
		CustomerName:  "Ana",
		CustomerPhone: "+15551234567",
		Address:       "Main St 1",
		Quantity:      2,
		UnitPrice:     decimal.RequireFromString("10.00"),
		Total:         decimal.RequireFromString("20.00"),
		Status:        order.StatusPending,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, db.Create(m).Error)
	return m.ToDomain()
}
