package router

import (
	"github.com/gin-gonic/gin"
	"github.com/orderbot/backend/internal/interfaces/http/handler"
)

// DashboardStreamPath accepts the JWT as a query parameter
const DashboardStreamPath = "/api/v1/dashboard/stream"

// Handlers are the HTTP entry points of the service
type Handlers struct {
	System    *handler.SystemHandler
	Webhook   *handler.WebhookHandler
	Confirm   *handler.ConfirmHandler
	Tenant    *handler.TenantHandler
	Order     *handler.OrderHandler
	Dashboard *handler.DashboardSSEHandler
}

// Middleware holds the per-surface chains. Global middleware is applied to
// the engine before Mount.
type Middleware struct {
	// Webhook guards provider callbacks (body limit, IP rate limit)
	Webhook []gin.HandlerFunc
	// Confirm guards the public confirmation page API
	Confirm []gin.HandlerFunc
	// API authenticates store owners (JWT, tenant rate limit)
	API []gin.HandlerFunc
}

// Mount registers every route on engine.
//
//	GET   /health, /ready
//	POST  /channel/telegram/webhook
//	GET   /channel/messenger/webhook     subscription handshake
//	POST  /channel/messenger/webhook
//	POST  /channel/viber/:bot/webhook
//	GET   /confirm/:tenantSlug/order/:orderId
//	POST  /confirm/:tenantSlug/order/:orderId/confirm
//	PATCH /confirm/:tenantSlug/order/:orderId/update
//	/api/v1/tenant/..., /api/v1/orders/..., /api/v1/dashboard/stream
func Mount(engine *gin.Engine, h Handlers, mw Middleware) {
	engine.GET("/health", h.System.Health)
	engine.GET("/ready", h.System.Ready)

	api := NewRouter(engine)
	webhooks := NewDomainGroup("channel", "/channel").Use(mw.Webhook...)
	webhooks.POST("/telegram/webhook", h.Webhook.Telegram)
	webhooks.GET("/messenger/webhook", h.Webhook.MessengerVerify)
	webhooks.POST("/messenger/webhook", h.Webhook.Messenger)
	webhooks.POST("/viber/:bot/webhook", h.Webhook.Viber)
	webhooks.RegisterRoutes(&engine.RouterGroup)

	confirm := NewDomainGroup("confirm", "/confirm/:tenantSlug/order/:orderId").Use(mw.Confirm...)
	confirm.GET("", h.Confirm.View)
	confirm.POST("/confirm", h.Confirm.Decide)
	confirm.PATCH("/update", h.Confirm.Update)
	confirm.RegisterRoutes(&engine.RouterGroup)

	tenantRoutes := NewDomainGroup("tenant", "/tenant")
	tenantRoutes.GET("/channels", h.Tenant.ListChannels)
	tenantRoutes.PUT("/channels/:channel", h.Tenant.ConfigureChannel)
	tenantRoutes.PUT("/templates", h.Tenant.UpdateTemplates)
	tenantRoutes.POST("/preconnect", h.Tenant.Preconnect)

	orderRoutes := NewDomainGroup("orders", "/orders")
	orderRoutes.POST("/:id/notifications", h.Order.NotifyCreated)
	orderRoutes.POST("/:id/status-notifications", h.Order.NotifyStatus)

	dashboardRoutes := NewDomainGroup("dashboard", "/dashboard")
	dashboardRoutes.GET("/stream", h.Dashboard.Stream)

	api.Use(mw.API...).
		Register(tenantRoutes).
		Register(orderRoutes).
		Register(dashboardRoutes).
		Setup()
}
