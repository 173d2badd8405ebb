package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/orderbot/backend/internal/application/notification"
	"github.com/orderbot/backend/internal/domain/outbound"
	"github.com/orderbot/backend/internal/interfaces/http/middleware"
)

// OrderHandler is the storefront's hand-off into the notification pipeline
type OrderHandler struct {
	BaseHandler
	notifications *notification.Service
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(notifications *notification.Service) *OrderHandler {
	return &OrderHandler{notifications: notifications}
}

func (h *OrderHandler) orderID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.BadRequest(c, "Invalid order ID")
		return 0, false
	}
	return id, true
}

// NotifyCreated serves POST /api/v1/orders/:id/notifications: queue notifications for a new order.
// Queues the receipt and the delayed confirmation prompt on every enabled channel, and returns connect links for channels the customer has not linked yet.
func (h *OrderHandler) NotifyCreated(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	result, err := h.notifications.OnOrderCreated(c.Request.Context(), tenantID, orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, result)
}

// NotifyStatus serves POST /api/v1/orders/:id/status-notifications: queue a payment or shipping notice.
func (h *OrderHandler) NotifyStatus(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}
	var req StatusNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	n, err := h.notifications.NotifyStatus(c.Request.Context(), tenantID, orderID, outbound.Purpose(req.Kind))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, StatusNotificationResponse{OrderID: orderID, Kind: req.Kind, Enqueued: n})
}
