package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	webhookapp "github.com/orderbot/backend/internal/application/webhook"
	"github.com/orderbot/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Provider headers
const (
	TelegramSecretHeader   = "X-Telegram-Bot-Api-Secret-Token"
	MessengerSignatureHdr  = "X-Hub-Signature-256"
	ViberSignatureHeader   = "X-Viber-Content-Signature"
	maxWebhookPayloadBytes = 1 << 20
)

// WebhookHandler receives provider callbacks. These endpoints carry no JWT;
// each provider authenticates with its own secret or signature.
type WebhookHandler struct {
	BaseHandler
	service *webhookapp.Service
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(service *webhookapp.Service) *WebhookHandler {
	return &WebhookHandler{service: service}
}

// WebhookResponse acknowledges a delivery
type WebhookResponse struct {
	Received bool     `json:"received"`
	Results  []string `json:"results,omitempty"`
}

func (h *WebhookHandler) readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookPayloadBytes+1))
	if err != nil {
		h.BadRequest(c, "Failed to read request body")
		return nil, false
	}
	if len(body) > maxWebhookPayloadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, WebhookResponse{Received: false})
		return nil, false
	}
	return body, true
}

// ack answers 200 so the provider does not redeliver. A body that
// authenticated but does not parse will not parse on retry either.
func (h *WebhookHandler) ack(c *gin.Context, results ...string) {
	c.JSON(http.StatusOK, WebhookResponse{Received: true, Results: results})
}

// authFailed answers auth errors with 401/403 and anything else with 500,
// which makes the provider retry.
func (h *WebhookHandler) authFailed(c *gin.Context, provider string, err error) {
	if webhookapp.IsAuthError(err) {
		logger.L(c.Request.Context()).Warn("Rejected webhook delivery",
			zap.String("provider", provider), zap.Error(err))
	}
	h.HandleError(c, err)
}

// Telegram serves POST /channel/telegram/webhook, the Telegram Bot API update hook.
func (h *WebhookHandler) Telegram(c *gin.Context) {
	ctx := c.Request.Context()
	bot, err := h.service.AuthenticateTelegram(ctx, c.GetHeader(TelegramSecretHeader))
	if err != nil {
		h.authFailed(c, "telegram", err)
		return
	}

	body, ok := h.readBody(c)
	if !ok {
		return
	}
	var update webhookapp.TelegramUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		logger.L(ctx).Warn("Unparseable Telegram update", zap.Error(err))
		h.ack(c)
		return
	}
	h.ack(c, h.service.HandleTelegram(ctx, bot, update))
}

// MessengerVerify serves GET /channel/messenger/webhook, the Messenger subscription handshake.
func (h *WebhookHandler) MessengerVerify(c *gin.Context) {
	challenge, err := h.service.VerifyMessengerSubscription(
		c.Query("hub.mode"), c.Query("hub.verify_token"), c.Query("hub.challenge"))
	if err != nil {
		h.authFailed(c, "messenger", err)
		return
	}
	c.String(http.StatusOK, challenge)
}

// Messenger serves POST /channel/messenger/webhook, the Messenger Platform update hook.
func (h *WebhookHandler) Messenger(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	if err := h.service.VerifyMessengerSignature(body, c.GetHeader(MessengerSignatureHdr)); err != nil {
		h.authFailed(c, "messenger", err)
		return
	}

	var payload webhookapp.MessengerPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		logger.L(c.Request.Context()).Warn("Unparseable Messenger payload", zap.Error(err))
		h.ack(c)
		return
	}
	h.ack(c, h.service.HandleMessenger(c.Request.Context(), payload)...)
}

// Viber serves POST /channel/viber/:bot/webhook, the Viber callback for the bot named by :bot.
func (h *WebhookHandler) Viber(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	bot, err := h.service.AuthenticateViber(ctx, c.Param("bot"), body, c.GetHeader(ViberSignatureHeader))
	if err != nil {
		h.authFailed(c, "viber", err)
		return
	}

	var cb webhookapp.ViberCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		logger.L(ctx).Warn("Unparseable Viber callback", zap.Error(err))
		h.ack(c)
		return
	}
	h.ack(c, h.service.HandleViber(ctx, bot, cb))
}
