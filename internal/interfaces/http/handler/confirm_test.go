package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/orderbot/backend/internal/domain/order"
	"github.com/orderbot/backend/internal/interfaces/http/dto"
	"github.com/orderbot/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (a *app) issueLink(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	tn, err := a.stores.Tenants.FindByID(ctx, a.tenantID)
	require.NoError(t, err)
	issued, err := a.links.Issue(ctx, tn, a.order)
	require.NoError(t, err)
	return issued.Token
}

func (a *app) confirmPath(orderID int64, suffix, token string) string {
	return fmt.Sprintf("/confirm/%s/order/%d%s?token=%s", a.slug, orderID, suffix, token)
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(body, &resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func TestConfirmHandler_View(t *testing.T) {
	a := newApp(t)
	router := a.engine()
	token := a.issueLink(t)

	t.Run("valid link", func(t *testing.T) {
		w := testutil.PerformJSON(t, router, http.MethodGet, a.confirmPath(a.order.ID, "", token), nil, nil)
		testutil.RequireStatus(t, w, http.StatusOK)

		env := testutil.DecodeJSON[testutil.Envelope](t, w)
		var page ConfirmPageResponse
		require.NoError(t, json.Unmarshal(env.Data, &page))
		assert.True(t, page.Editable)
		assert.Equal(t, a.order.ID, page.Order.ID)
		assert.Equal(t, order.StatusPending, page.Order.Status)
		assert.Equal(t, "20", page.Order.Total.String())
	})

	t.Run("token header", func(t *testing.T) {
		path := fmt.Sprintf("/confirm/%s/order/%d", a.slug, a.order.ID)
		w := testutil.PerformJSON(t, router, http.MethodGet, path, nil, map[string]string{"X-Confirm-Token": token})
		testutil.RequireStatus(t, w, http.StatusOK)
	})

	t.Run("missing token", func(t *testing.T) {
		w := testutil.PerformJSON(t, router, http.MethodGet, a.confirmPath(a.order.ID, "", ""), nil, nil)
		testutil.RequireStatus(t, w, http.StatusForbidden)
		assert.Equal(t, dto.ErrCodeLinkInvalid, errorCode(t, w.Body.Bytes()))
	})

	t.Run("forged token", func(t *testing.T) {
		w := testutil.PerformJSON(t, router, http.MethodGet, a.confirmPath(a.order.ID, "", token+"x"), nil, nil)
		testutil.RequireStatus(t, w, http.StatusForbidden)
	})

	t.Run("token for another order", func(t *testing.T) {
		w := testutil.PerformJSON(t, router, http.MethodGet, a.confirmPath(a.order.ID+1, "", token), nil, nil)
		testutil.RequireStatus(t, w, http.StatusForbidden)
	})

	t.Run("unknown store", func(t *testing.T) {
		path := fmt.Sprintf("/confirm/nope/order/%d?token=%s", a.order.ID, token)
		w := testutil.PerformJSON(t, router, http.MethodGet, path, nil, nil)
		testutil.RequireStatus(t, w, http.StatusNotFound)
	})

	t.Run("bad order id", func(t *testing.T) {
		path := fmt.Sprintf("/confirm/%s/order/abc?token=%s", a.slug, token)
		w := testutil.PerformJSON(t, router, http.MethodGet, path, nil, nil)
		testutil.RequireStatus(t, w, http.StatusBadRequest)
	})
}

func TestConfirmHandler_Decide(t *testing.T) {
	a := newApp(t)
	router := a.engine()
	token := a.issueLink(t)
	path := a.confirmPath(a.order.ID, "/confirm", token)

	w := testutil.PerformJSON(t, router, http.MethodPost, path, DecisionRequest{Action: "approve"}, nil)
	testutil.RequireStatus(t, w, http.StatusOK)
	env := testutil.DecodeJSON[testutil.Envelope](t, w)
	var first DecisionResponse
	require.NoError(t, json.Unmarshal(env.Data, &first))
	assert.Equal(t, order.StatusConfirmed, first.Order.Status)
	assert.False(t, first.AlreadyProcessed)

	w = testutil.PerformJSON(t, router, http.MethodPost, path, DecisionRequest{Action: "decline"}, nil)
	testutil.RequireStatus(t, w, http.StatusOK)
	env = testutil.DecodeJSON[testutil.Envelope](t, w)
	var second DecisionResponse
	require.NoError(t, json.Unmarshal(env.Data, &second))
	assert.Equal(t, order.StatusConfirmed, second.Order.Status, "first decision wins")
	assert.True(t, second.AlreadyProcessed)

	w = testutil.PerformJSON(t, router, http.MethodPost, path, map[string]string{"action": "maybe"}, nil)
	testutil.RequireStatus(t, w, http.StatusUnprocessableEntity)
	assert.Equal(t, dto.ErrCodeValidation, errorCode(t, w.Body.Bytes()))
}

func TestConfirmHandler_Update(t *testing.T) {
	a := newApp(t)
	router := a.engine()
	token := a.issueLink(t)
	path := a.confirmPath(a.order.ID, "/update", token)

	qty := 3
	address := "Harbor Rd 9"
	w := testutil.PerformJSON(t, router, http.MethodPatch, path, UpdateOrderRequest{Quantity: &qty, Address: &address}, nil)
	testutil.RequireStatus(t, w, http.StatusOK)
	env := testutil.DecodeJSON[testutil.Envelope](t, w)
	var updated OrderResponse
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, 3, updated.Quantity)
	assert.Equal(t, "30", updated.Total.String())
	assert.Equal(t, "Harbor Rd 9", updated.Address)

	w = testutil.PerformJSON(t, router, http.MethodPatch, path, map[string]string{"customer_phone": "0555"}, nil)
	testutil.RequireStatus(t, w, http.StatusUnprocessableEntity)

	w = testutil.PerformJSON(t, router, http.MethodPatch, path, map[string]any{}, nil)
	testutil.RequireStatus(t, w, http.StatusUnprocessableEntity)
	assert.Equal(t, dto.ErrCodeEmptyEdit, errorCode(t, w.Body.Bytes()))

	w = testutil.PerformJSON(t, router, http.MethodPost, a.confirmPath(a.order.ID, "/confirm", token), DecisionRequest{Action: "decline"}, nil)
	testutil.RequireStatus(t, w, http.StatusOK)

	w = testutil.PerformJSON(t, router, http.MethodPatch, path, UpdateOrderRequest{Address: &address}, nil)
	testutil.RequireStatus(t, w, http.StatusConflict)
	assert.Equal(t, dto.ErrCodeInvalidState, errorCode(t, w.Body.Bytes()))
}
