package testutil

import (
	"context"
	"testing"

	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/infrastructure/persistence"
	"github.com/orderbot/backend/internal/infrastructure/secret"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Stores bundles the gorm repositories over one test database
type Stores struct {
	DB            *gorm.DB
	Credentials   *persistence.GormCredentialRepository
	Links         *persistence.GormIdentityLinkRepository
	Tokens        *persistence.GormPreconnectTokenRepository
	Bindings      *persistence.GormOrderBindingRepository
	Orders        *persistence.GormOrderRepository
	ConfirmLinks  *persistence.GormConfirmationLinkRepository
	ConfirmRecord *persistence.GormConfirmationRecordRepository
	Tenants       *persistence.GormTenantRepository
	Outbound      *persistence.GormOutboundRepository
}

// NewStores opens a fresh SQLite database and wires every repository.
func NewStores(t *testing.T) *Stores {
	t.Helper()
	db := NewSQLiteDB(t)
	return &Stores{
		DB:            db,
		Credentials:   persistence.NewGormCredentialRepository(db, secret.NewDevelopmentBox(t.Name())),
		Links:         persistence.NewGormIdentityLinkRepository(db),
		Tokens:        persistence.NewGormPreconnectTokenRepository(db),
		Bindings:      persistence.NewGormOrderBindingRepository(db),
		Orders:        persistence.NewGormOrderRepository(db),
		ConfirmLinks:  persistence.NewGormConfirmationLinkRepository(db),
		ConfirmRecord: persistence.NewGormConfirmationRecordRepository(db),
		Tenants:       persistence.NewGormTenantRepository(db),
		Outbound:      persistence.NewGormOutboundRepository(db),
	}
}

// EnableChannel stores an enabled credential row for the tenant.
// An empty identity and secret means "use the platform-shared bot".
func (s *Stores) EnableChannel(t *testing.T, tenantID int64, ch channel.Channel, identity, secretValue string) {
	t.Helper()
	require.NoError(t, s.Credentials.Save(context.Background(), &channel.TenantCredential{
		TenantID: tenantID,
		Channel:  ch,
		Enabled:  true,
		Identity: identity,
		Secret:   secretValue,
	}))
}

// Link stores an identity link for phone on ch.
func (s *Stores) Link(t *testing.T, tenantID int64, phone string, ch channel.Channel, subscriberID string) {
	t.Helper()
	l, err := channel.NewIdentityLink(tenantID, phone, ch, subscriberID)
	require.NoError(t, err)
	require.NoError(t, s.Links.Upsert(context.Background(), l))
}

// SharedPlatform is a platform credential set used across service tests
func SharedPlatform() channel.StaticPlatformCredentials {
	return channel.StaticPlatformCredentials{
		channel.Telegram:  {Identity: "orderbot_shared", Secret: "shared-telegram-token"},
		channel.Messenger: {Identity: "900100", Secret: "shared-page-token"},
		channel.Viber:     {Identity: "orderbotshared", Secret: "shared-viber-token", From: "OrderBot"},
	}
}
