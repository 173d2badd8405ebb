package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/orderbot/backend/internal/application/confirmation"
	"github.com/orderbot/backend/internal/domain/order"
	"github.com/orderbot/backend/internal/interfaces/http/dto"
	"github.com/orderbot/backend/internal/interfaces/http/middleware"
)

// ConfirmHandler serves the public, token-authorized confirmation page API
type ConfirmHandler struct {
	BaseHandler
	links *confirmation.LinkService
}

// NewConfirmHandler creates a new ConfirmHandler
func NewConfirmHandler(links *confirmation.LinkService) *ConfirmHandler {
	return &ConfirmHandler{links: links}
}

// linkParams reads slug, order id and token. The token may come from the
// query string (the link itself) or the X-Confirm-Token header.
func (h *ConfirmHandler) linkParams(c *gin.Context) (slug string, orderID int64, token string, ok bool) {
	orderID, err := strconv.ParseInt(c.Param("orderId"), 10, 64)
	if err != nil || orderID <= 0 {
		h.BadRequest(c, "Invalid order ID")
		return "", 0, "", false
	}
	token = c.Query("token")
	if token == "" {
		token = c.GetHeader("X-Confirm-Token")
	}
	if token == "" {
		h.Error(c, http.StatusForbidden, dto.ErrCodeLinkInvalid, "Confirmation token is required")
		return "", 0, "", false
	}
	return c.Param("tenantSlug"), orderID, token, true
}

// View serves GET /confirm/:tenantSlug/order/:orderId: show an order behind a confirmation link.
func (h *ConfirmHandler) View(c *gin.Context) {
	slug, orderID, token, ok := h.linkParams(c)
	if !ok {
		return
	}
	view, err := h.links.View(c.Request.Context(), slug, orderID, token)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ConfirmPageResponse{
		Store:     view.Tenant.Name,
		Order:     toOrderResponse(view.Order),
		Editable:  view.Order.IsPending(),
		ExpiresAt: view.Link.ExpiresAt,
	})
}

// Decide serves POST /confirm/:tenantSlug/order/:orderId/confirm: confirm or decline an order.
func (h *ConfirmHandler) Decide(c *gin.Context) {
	slug, orderID, token, ok := h.linkParams(c)
	if !ok {
		return
	}
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	out, err := h.links.Decide(c.Request.Context(), slug, orderID, token, order.Decision(req.Action))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, DecisionResponse{Order: toOrderResponse(out.Order), AlreadyProcessed: out.AlreadyProcessed})
}

// Update serves PATCH /confirm/:tenantSlug/order/:orderId/update: edit customer details of a pending order.
func (h *ConfirmHandler) Update(c *gin.Context) {
	slug, orderID, token, ok := h.linkParams(c)
	if !ok {
		return
	}
	var req UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	o, err := h.links.Update(c.Request.Context(), slug, orderID, token, req.toEdit())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toOrderResponse(o))
}
