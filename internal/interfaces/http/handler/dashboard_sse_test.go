package handler

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orderbot/backend/internal/application/confirmation"
	"github.com/orderbot/backend/internal/domain/order"
	"github.com/orderbot/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sseServer(t *testing.T, h *DashboardSSEHandler, tenantID int64) *httptest.Server {
	t.Helper()
	router := gin.New()
	router.GET("/stream", withTenant(tenantID), h.Stream)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

// readEvent returns the next "event:" name and its data line
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			return event, data
		}
	}
}

func TestDashboardSSEHandler_Stream(t *testing.T) {
	hub := confirmation.NewDashboardHub(zap.NewNop())
	h := NewDashboardSSEHandler(hub, WithSSEHeartbeat(time.Hour))
	srv := sseServer(t, h, 7)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	event, _ := readEvent(t, reader)
	assert.Equal(t, "connected", event)
	require.Equal(t, 1, hub.ClientCount())

	require.NoError(t, hub.Broadcast(ctx, confirmation.DashboardUpdate{
		EventType: order.EventTypeConfirmed, TenantID: 8, OrderID: 1, Status: order.StatusConfirmed, OccurredAt: time.Now(),
	}))
	require.NoError(t, hub.Broadcast(ctx, confirmation.DashboardUpdate{
		EventType: order.EventTypeConfirmed, TenantID: 7, OrderID: 2, Status: order.StatusConfirmed, OccurredAt: time.Now(),
	}))

	event, data := readEvent(t, reader)
	assert.Equal(t, order.EventTypeConfirmed, event)
	assert.Contains(t, data, `"order_id":2`, "other tenants' updates are not streamed")

	cancel()
	assert.True(t, testutil.WaitForCondition(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond))
}

func TestDashboardSSEHandler_MaxClients(t *testing.T) {
	hub := confirmation.NewDashboardHub(zap.NewNop())
	_, _, unsubscribe := hub.Subscribe(1)
	defer unsubscribe()

	router := gin.New()
	router.GET("/stream", withTenant(1), NewDashboardSSEHandler(hub, WithSSEMaxClients(1)).Stream)

	w := testutil.PerformJSON(t, router, http.MethodGet, "/stream", nil, nil)
	testutil.RequireStatus(t, w, http.StatusServiceUnavailable)
	assert.Contains(t, w.Body.String(), "ERR_MAX_CONNECTIONS")
}
