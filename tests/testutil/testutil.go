// Package testutil provides shared helpers for orderbot tests: database
// fixtures, recording event publishers and gin request helpers.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orderbot/backend/internal/domain/order"
	"github.com/orderbot/backend/internal/domain/tenant"
	"github.com/orderbot/backend/internal/infrastructure/persistence"
	"github.com/orderbot/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// NewSQLiteDB opens a private in-memory SQLite database with the full schema.
// One connection keeps the shared-cache database alive.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
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

// SeedTenant stores a tenant with an English locale and the default delay.
func SeedTenant(t *testing.T, db *gorm.DB, slug string) *tenant.Tenant {
	t.Helper()
	tn := &tenant.Tenant{Slug: slug, Name: strings.ToUpper(slug[:1]) + slug[1:], Locale: "en", ConfirmationDelayMinutes: 5}
	require.NoError(t, persistence.NewGormTenantRepository(db).Save(context.Background(), tn))
	return tn
}

// OrderOption tweaks a seeded order
type OrderOption func(*models.OrderModel)

// WithPhone sets the customer phone
func WithPhone(phone string) OrderOption {
	return func(m *models.OrderModel) { m.CustomerPhone = phone }
}

// WithStatus sets the initial status
func WithStatus(s order.Status) OrderOption {
	return func(m *models.OrderModel) { m.Status = s }
}

// SeedOrder stores a pending order for two mugs at 10.00.
func SeedOrder(t *testing.T, db *gorm.DB, tenantID int64, opts ...OrderOption) *order.Order {
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
	for _, opt := range opts {
		opt(m)
	}
	require.NoError(t, db.Create(m).Error)
	return m.ToDomain()
}

// FixedClock returns a clock function pinned to at.
func FixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

// WaitForCondition polls condition until it holds or timeout elapses.
func WaitForCondition(t *testing.T, condition func() bool, timeout, interval time.Duration) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(interval)
	}
	return false
}
