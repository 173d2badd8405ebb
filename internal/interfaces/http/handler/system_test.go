package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/orderbot/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func systemRouter(checks map[string]Pinger) *gin.Engine {
	h := NewSystemHandler("test", checks)
	router := gin.New()
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	return router
}

func TestSystemHandler_Health(t *testing.T) {
	router := systemRouter(nil)
	w := testutil.PerformJSON(t, router, http.MethodGet, "/health", nil, nil)

	testutil.RequireStatus(t, w, http.StatusOK)
	env := testutil.DecodeJSON[testutil.Envelope](t, w)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(env.Data, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)
}

func TestSystemHandler_Ready(t *testing.T) {
	t.Run("database reachable", func(t *testing.T) {
		db := testutil.NewSQLiteDB(t)
		sqlDB, err := db.DB()
		require.NoError(t, err)

		w := testutil.PerformJSON(t, systemRouter(map[string]Pinger{"database": sqlDB}), http.MethodGet, "/ready", nil, nil)
		testutil.RequireStatus(t, w, http.StatusOK)
		assert.Contains(t, w.Body.String(), `"database":"ok"`)
	})

	t.Run("failing dependency", func(t *testing.T) {
		checks := map[string]Pinger{
			"redis": pingFunc(func(context.Context) error { return errors.New("dial tcp: refused") }),
		}
		w := testutil.PerformJSON(t, systemRouter(checks), http.MethodGet, "/ready", nil, nil)
		testutil.RequireStatus(t, w, http.StatusServiceUnavailable)
		assert.Contains(t, w.Body.String(), "degraded")
		assert.Contains(t, w.Body.String(), "refused")
	})
}
