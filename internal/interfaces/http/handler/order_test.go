package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/orderbot/backend/internal/application/notification"
	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/domain/outbound"
	"github.com/orderbot/backend/internal/interfaces/http/dto"
	"github.com/orderbot/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderHandler_NotifyCreated(t *testing.T) {
	a := newApp(t)
	router := a.engine()
	a.stores.EnableChannel(t, a.tenantID, channel.WhatsApp, "10200300", "cloud-token")
	a.stores.EnableChannel(t, a.tenantID, channel.Telegram, "", "")

	w := testutil.PerformJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/notifications", a.order.ID), nil, nil)
	testutil.RequireStatus(t, w, http.StatusAccepted)

	env := testutil.DecodeJSON[testutil.Envelope](t, w)
	var result notification.HandoffResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, a.order.ID, result.OrderID)
	assert.NotEmpty(t, result.ConfirmURL)
	assert.Positive(t, result.Enqueued)

	var telegramLink bool
	for _, in := range result.Instructions {
		if in.Channel == channel.Telegram {
			telegramLink = in.DeepLink != ""
		}
	}
	assert.True(t, telegramLink, "unlinked telegram customer gets a connect link")

	msgs, err := a.stores.Outbound.FindByOrder(context.Background(), a.order.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, result.Enqueued)
}

func TestOrderHandler_NotifyCreated_UnknownOrder(t *testing.T) {
	router := newApp(t).engine()

	w := testutil.PerformJSON(t, router, http.MethodPost, "/api/v1/orders/9999/notifications", nil, nil)
	testutil.RequireStatus(t, w, http.StatusNotFound)

	w = testutil.PerformJSON(t, router, http.MethodPost, "/api/v1/orders/x/notifications", nil, nil)
	testutil.RequireStatus(t, w, http.StatusBadRequest)
}

func TestOrderHandler_NotifyStatus(t *testing.T) {
	a := newApp(t)
	router := a.engine()
	a.stores.EnableChannel(t, a.tenantID, channel.WhatsApp, "10200300", "cloud-token")
	path := fmt.Sprintf("/api/v1/orders/%d/status-notifications", a.order.ID)

	w := testutil.PerformJSON(t, router, http.MethodPost, path, StatusNotificationRequest{Kind: "shipping"}, nil)
	testutil.RequireStatus(t, w, http.StatusAccepted)
	env := testutil.DecodeJSON[testutil.Envelope](t, w)
	var resp StatusNotificationResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, 1, resp.Enqueued)

	msgs, err := a.stores.Outbound.FindByOrder(context.Background(), a.order.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, outbound.PurposeShipping, msgs[0].Purpose)

	w = testutil.PerformJSON(t, router, http.MethodPost, path, map[string]string{"kind": "refund"}, nil)
	testutil.RequireStatus(t, w, http.StatusUnprocessableEntity)
	assert.Equal(t, dto.ErrCodeValidation, errorCode(t, w.Body.Bytes()))
}
