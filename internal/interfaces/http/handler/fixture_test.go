package handler

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/orderbot/backend/internal/application/confirmation"
	"github.com/orderbot/backend/internal/application/linking"
	"github.com/orderbot/backend/internal/application/notification"
	"github.com/orderbot/backend/internal/application/settings"
	webhookapp "github.com/orderbot/backend/internal/application/webhook"
	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/domain/order"
	"github.com/orderbot/backend/internal/infrastructure/auth"
	"github.com/orderbot/backend/internal/infrastructure/cache"
	"github.com/orderbot/backend/internal/interfaces/http/middleware"
	"github.com/orderbot/backend/tests/testutil"
	"go.uber.org/zap"
)

const (
	testSalt         = "handler-salt"
	testAppSecret    = "app-secret"
	testVerifyToken  = "verify-me"
	testSharedViber  = "orderbotshared"
	testViberToken   = "shared-viber-token"
	testTelegramSeed = "shared-telegram-token"
)

// app wires the real services over one SQLite database
type app struct {
	stores        *testutil.Stores
	tenantID      int64
	slug          string
	order         *order.Order
	linker        *linking.Service
	links         *confirmation.LinkService
	notifications *notification.Service
	settings      *settings.Service
	webhooks      *webhookapp.Service
	hub           *confirmation.DashboardHub
}

func newApp(t *testing.T) *app {
	t.Helper()
	middleware.SetupValidator()

	stores := testutil.NewStores(t)
	tn := testutil.SeedTenant(t, stores.DB, "acme")
	pub := testutil.NewRecordingPublisher()
	resolver := channel.NewCredentialResolver(stores.Credentials, testutil.SharedPlatform())

	linker := linking.NewService(linking.Config{}, resolver, linking.Repositories{
		Tokens:   stores.Tokens,
		Links:    stores.Links,
		Bindings: stores.Bindings,
		Tenants:  stores.Tenants,
		Orders:   stores.Orders,
		Outbound: stores.Outbound,
	}, pub, zap.NewNop())
	decider := confirmation.NewService(stores.Orders, pub, zap.NewNop())
	links := confirmation.NewLinkService(confirmation.LinkConfig{PublicBaseURL: "https://shop.example.com"},
		auth.NewLinkSigner("test-signing-secret"), stores.ConfirmLinks, stores.Orders, stores.Tenants, decider, zap.NewNop())

	dedup := cache.NewInMemoryDedupStore()
	t.Cleanup(func() { _ = dedup.Close() })

	return &app{
		stores:        stores,
		tenantID:      tn.ID,
		slug:          tn.Slug,
		order:         testutil.SeedOrder(t, stores.DB, tn.ID),
		linker:        linker,
		links:         links,
		notifications: notification.NewService(stores.Tenants, stores.Orders, stores.Links, stores.Outbound, resolver, linker, links, zap.NewNop()),
		settings: settings.NewService(settings.Config{TelegramSecretSalt: testSalt}, stores.Credentials, resolver, stores.Tenants,
			nil, nil, zap.NewNop()),
		webhooks: webhookapp.NewService(webhookapp.Config{
			TelegramSecretSalt:   testSalt,
			MessengerAppSecret:   testAppSecret,
			MessengerVerifyToken: testVerifyToken,
		}, webhookapp.Dependencies{
			Credentials: stores.Credentials,
			Resolver:    resolver,
			Orders:      stores.Orders,
			Linker:      linker,
			Decider:     decider,
			Links:       links,
			Dedup:       dedup,
			Logger:      zap.NewNop(),
		}),
		hub: confirmation.NewDashboardHub(zap.NewNop()),
	}
}

// engine mounts the handlers the way the router does, without auth
func (a *app) engine() *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestID())

	wh := NewWebhookHandler(a.webhooks)
	router.POST("/channel/telegram/webhook", wh.Telegram)
	router.GET("/channel/messenger/webhook", wh.MessengerVerify)
	router.POST("/channel/messenger/webhook", wh.Messenger)
	router.POST("/channel/viber/:bot/webhook", wh.Viber)

	ch := NewConfirmHandler(a.links)
	router.GET("/confirm/:tenantSlug/order/:orderId", ch.View)
	router.POST("/confirm/:tenantSlug/order/:orderId/confirm", ch.Decide)
	router.PATCH("/confirm/:tenantSlug/order/:orderId/update", ch.Update)

	api := router.Group("/api/v1", withTenant(a.tenantID))
	th := NewTenantHandler(a.settings, a.linker)
	api.GET("/tenant/channels", th.ListChannels)
	api.PUT("/tenant/channels/:channel", th.ConfigureChannel)
	api.PUT("/tenant/templates", th.UpdateTemplates)
	api.POST("/tenant/preconnect", th.Preconnect)

	oh := NewOrderHandler(a.notifications)
	api.POST("/orders/:id/notifications", oh.NotifyCreated)
	api.POST("/orders/:id/status-notifications", oh.NotifyStatus)
	return router
}
