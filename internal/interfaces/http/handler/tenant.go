package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/orderbot/backend/internal/application/linking"
	"github.com/orderbot/backend/internal/application/settings"
	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/domain/tenant"
	"github.com/orderbot/backend/internal/interfaces/http/middleware"
)

// TenantHandler serves the store owner's channel and template settings and
// mints preconnect links for the storefront.
type TenantHandler struct {
	BaseHandler
	settings *settings.Service
	linker   *linking.Service
}

// NewTenantHandler creates a new TenantHandler
func NewTenantHandler(settings *settings.Service, linker *linking.Service) *TenantHandler {
	return &TenantHandler{settings: settings, linker: linker}
}

// ConfigureChannelRequest updates one channel. Omit secret to keep the
// stored one; send an empty string to clear it.
type ConfigureChannelRequest struct {
	Enabled           bool    `json:"enabled"`
	Identity          string  `json:"identity" binding:"max=200"`
	Secret            *string `json:"secret" binding:"omitempty,max=1000"`
	UsePlatformShared bool    `json:"use_platform_shared"`
}

// UpdateTemplatesRequest replaces template overrides
type UpdateTemplatesRequest struct {
	Templates                map[string]string `json:"templates"`
	ConfirmationDelayMinutes *int              `json:"confirmation_delay_minutes" binding:"omitempty,min=0,max=1440"`
}

// TemplatesResponse shows the effective templates of a tenant
type TemplatesResponse struct {
	Templates                map[string]string `json:"templates"`
	Overrides                map[string]string `json:"overrides"`
	ConfirmationDelayMinutes int               `json:"confirmation_delay_minutes"`
}

func toTemplatesResponse(t *tenant.Tenant) TemplatesResponse {
	resp := TemplatesResponse{
		Templates:                make(map[string]string),
		Overrides:                make(map[string]string, len(t.Templates)),
		ConfirmationDelayMinutes: int(t.ConfirmationDelay().Minutes()),
	}
	for _, key := range tenant.AllTemplateKeys() {
		resp.Templates[string(key)] = t.Template(key)
	}
	for key, v := range t.Templates {
		resp.Overrides[string(key)] = v
	}
	return resp
}

// PreconnectRequest asks for a deep link the customer opens before ordering
type PreconnectRequest struct {
	Phone   string `json:"phone" binding:"required,e164"`
	Channel string `json:"channel" binding:"required,oneof=telegram messenger whatsapp viber"`
	OrderID *int64 `json:"order_id" binding:"omitempty,min=1"`
}

// ListChannels serves GET /api/v1/tenant/channels: list channel settings.
func (h *TenantHandler) ListChannels(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	views, err := h.settings.ListChannels(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, views)
}

// ConfigureChannel serves PUT /api/v1/tenant/channels/:channel: configure a channel.
// Stores credentials and registers the provider webhook when the tenant uses its own bot.
func (h *TenantHandler) ConfigureChannel(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req ConfigureChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	view, err := h.settings.ConfigureChannel(c.Request.Context(), tenantID, channel.Channel(c.Param("channel")), settings.ChannelSettings{
		Enabled:           req.Enabled,
		Identity:          req.Identity,
		Secret:            req.Secret,
		UsePlatformShared: req.UsePlatformShared,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// UpdateTemplates serves PUT /api/v1/tenant/templates: replace message templates.
func (h *TenantHandler) UpdateTemplates(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req UpdateTemplatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	t, err := h.settings.UpdateTemplates(c.Request.Context(), tenantID, settings.TemplateSettings{
		Templates:                req.Templates,
		ConfirmationDelayMinutes: req.ConfirmationDelayMinutes,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toTemplatesResponse(t))
}

// Preconnect serves POST /api/v1/tenant/preconnect: mint a preconnect deep link.
// The link opens the tenant's bot with a one-time token that links the chat to the phone.
func (h *TenantHandler) Preconnect(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req PreconnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	minted, err := h.linker.Mint(c.Request.Context(), tenantID, req.Phone, channel.Channel(req.Channel), req.OrderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, minted)
}
