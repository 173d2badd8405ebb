package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orderbot/backend/internal/application/confirmation"
	"github.com/orderbot/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// SSEMessage is one server-sent event
type SSEMessage struct {
	Event string
	Data  string
	ID    string
}

// DashboardSSEHandler streams order status changes to a tenant's dashboard
type DashboardSSEHandler struct {
	BaseHandler
	hub        *confirmation.DashboardHub
	logger     *zap.Logger
	heartbeat  time.Duration
	maxClients int
}

// DashboardSSEOption is a functional option for configuring the handler
type DashboardSSEOption func(*DashboardSSEHandler)

// WithSSELogger sets the logger for the handler
func WithSSELogger(logger *zap.Logger) DashboardSSEOption {
	return func(h *DashboardSSEHandler) {
		h.logger = logger
	}
}

// WithSSEHeartbeat sets the heartbeat interval
func WithSSEHeartbeat(interval time.Duration) DashboardSSEOption {
	return func(h *DashboardSSEHandler) {
		if interval > 0 {
			h.heartbeat = interval
		}
	}
}

// WithSSEMaxClients caps concurrent streams across all tenants
func WithSSEMaxClients(max int) DashboardSSEOption {
	return func(h *DashboardSSEHandler) {
		h.maxClients = max
	}
}

// NewDashboardSSEHandler creates a new DashboardSSEHandler
func NewDashboardSSEHandler(hub *confirmation.DashboardHub, opts ...DashboardSSEOption) *DashboardSSEHandler {
	h := &DashboardSSEHandler{
		hub:        hub,
		logger:     zap.NewNop(),
		heartbeat:  30 * time.Second,
		maxClients: 10000,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Stream serves GET /api/v1/dashboard/stream: subscribe to order status changes via SSE.
// EventSource cannot set headers, so the JWT may be passed as ?access_token=.
func (h *DashboardSSEHandler) Stream(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	if h.maxClients > 0 && h.hub.ClientCount() >= h.maxClients {
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeMaxConnections, "Maximum number of dashboard streams reached")
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	// the server WriteTimeout would otherwise cut the stream
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	clientID, updates, unsubscribe := h.hub.Subscribe(tenantID)
	defer unsubscribe()

	log := h.logger.With(zap.String("client_id", clientID), zap.Int64("tenant_id", tenantID))
	log.Info("Dashboard stream connected")

	c.Status(http.StatusOK)
	h.send(c.Writer, SSEMessage{
		Event: "connected",
		Data:  fmt.Sprintf(`{"client_id":%q,"timestamp":%d}`, clientID, time.Now().Unix()),
	})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	reqCtx := c.Request.Context()
	for {
		select {
		case <-reqCtx.Done():
			log.Info("Dashboard stream disconnected")
			return
		case <-ticker.C:
			h.send(c.Writer, SSEMessage{
				Event: "heartbeat",
				Data:  fmt.Sprintf(`{"timestamp":%d}`, time.Now().Unix()),
			})
			c.Writer.Flush()
		case u, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(u)
			if err != nil {
				log.Error("Failed to marshal dashboard update", zap.Error(err))
				continue
			}
			h.send(c.Writer, SSEMessage{
				Event: u.EventType,
				Data:  string(data),
				ID:    strconv.FormatInt(u.OccurredAt.UnixNano(), 10),
			})
			c.Writer.Flush()
		}
	}
}

func (h *DashboardSSEHandler) send(w io.Writer, msg SSEMessage) {
	if msg.Event != "" {
		fmt.Fprintf(w, "event: %s\n", msg.Event)
	}
	if msg.ID != "" {
		fmt.Fprintf(w, "id: %s\n", msg.ID)
	}
	fmt.Fprintf(w, "data: %s\n\n", msg.Data)
}
