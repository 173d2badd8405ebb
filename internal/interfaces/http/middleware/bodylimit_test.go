package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/orderbot/backend/internal/interfaces/http/dto"
	"github.com/orderbot/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// webhookRouter mirrors the provider callback chain: request id, then the
// body cap, then a handler that reads the whole payload like a signature check.
func webhookRouter(limit int64) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), BodyLimit(limit))
	router.POST("/channel/telegram/webhook", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponse(dto.ErrCodeRequestTooLarge, "truncated"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"read": len(body)})
	})
	return router
}

func TestBodyLimit_WebhookPayloads(t *testing.T) {
	router := webhookRouter(DefaultWebhookBodyLimit)

	t.Run("typical update passes", func(t *testing.T) {
		update := []byte(`{"update_id":1,"callback_query":{"id":"cb","data":"approve:42"}}`)
		req := httptest.NewRequest(http.MethodPost, "/channel/telegram/webhook", bytes.NewReader(update))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"read":64}`, w.Body.String())
	})

	t.Run("declared oversize body is refused before the handler", func(t *testing.T) {
		body := bytes.Repeat([]byte("x"), int(DefaultWebhookBodyLimit)+1)
		req := httptest.NewRequest(http.MethodPost, "/channel/telegram/webhook", bytes.NewReader(body))
		req.Header.Set(RequestIDHeader, "req-413")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		testutil.RequireStatus(t, w, http.StatusRequestEntityTooLarge)
		resp := testutil.DecodeJSON[dto.Response](t, w)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeRequestTooLarge, resp.Error.Code)
		assert.Equal(t, "req-413", resp.Error.RequestID)
		assert.Equal(t, dto.GetHTTPStatus(resp.Error.Code), w.Code)
	})

	t.Run("undeclared length is capped while reading", func(t *testing.T) {
		router := webhookRouter(32)
		req := httptest.NewRequest(http.MethodPost, "/channel/telegram/webhook", bytes.NewReader(bytes.Repeat([]byte("x"), 100)))
		req.ContentLength = -1
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, w.Body.String(), "truncated")
	})
}
