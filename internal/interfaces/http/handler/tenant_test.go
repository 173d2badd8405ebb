package handler

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/orderbot/backend/internal/application/linking"
	"github.com/orderbot/backend/internal/application/settings"
	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/interfaces/http/dto"
	"github.com/orderbot/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenantHandler_Channels(t *testing.T) {
	a := newApp(t)
	router := a.engine()

	secret := "123:abc"
	w := testutil.PerformJSON(t, router, http.MethodPut, "/api/v1/tenant/channels/telegram",
		ConfigureChannelRequest{Enabled: true, Identity: "acme_bot", Secret: &secret}, nil)
	testutil.RequireStatus(t, w, http.StatusOK)
	assert.NotContains(t, w.Body.String(), secret)

	env := testutil.DecodeJSON[testutil.Envelope](t, w)
	var view settings.ChannelView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.True(t, view.Ready)
	assert.True(t, view.HasSecret)
	assert.False(t, view.UsingPlatformShared)

	w = testutil.PerformJSON(t, router, http.MethodGet, "/api/v1/tenant/channels", nil, nil)
	testutil.RequireStatus(t, w, http.StatusOK)
	env = testutil.DecodeJSON[testutil.Envelope](t, w)
	var views []settings.ChannelView
	require.NoError(t, json.Unmarshal(env.Data, &views))
	require.Len(t, views, len(channel.All()))
	assert.Equal(t, channel.Telegram, views[0].Channel)
	assert.Equal(t, "acme_bot", views[0].Identity)

	w = testutil.PerformJSON(t, router, http.MethodPut, "/api/v1/tenant/channels/sms",
		ConfigureChannelRequest{Enabled: true}, nil)
	testutil.RequireStatus(t, w, http.StatusUnprocessableEntity)
	assert.Equal(t, dto.ErrCodeInvalidChannel, errorCode(t, w.Body.Bytes()))
}

func TestTenantHandler_UpdateTemplates(t *testing.T) {
	router := newApp(t).engine()

	delay := 15
	w := testutil.PerformJSON(t, router, http.MethodPut, "/api/v1/tenant/templates", UpdateTemplatesRequest{
		Templates:                map[string]string{"confirmation": "Hi {customer_name}, confirm order #{order_id}?"},
		ConfirmationDelayMinutes: &delay,
	}, nil)
	testutil.RequireStatus(t, w, http.StatusOK)

	env := testutil.DecodeJSON[testutil.Envelope](t, w)
	var resp TemplatesResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, 15, resp.ConfirmationDelayMinutes)
	assert.Equal(t, "Hi {customer_name}, confirm order #{order_id}?", resp.Overrides["confirmation"])
	assert.Equal(t, resp.Overrides["confirmation"], resp.Templates["confirmation"])

	w = testutil.PerformJSON(t, router, http.MethodPut, "/api/v1/tenant/templates", UpdateTemplatesRequest{
		Templates: map[string]string{"nope": "x"},
	}, nil)
	testutil.RequireStatus(t, w, http.StatusUnprocessableEntity)
	assert.Equal(t, dto.ErrCodeInvalidTemplate, errorCode(t, w.Body.Bytes()))
}

func TestTenantHandler_Preconnect(t *testing.T) {
	a := newApp(t)
	router := a.engine()

	t.Run("disabled channel", func(t *testing.T) {
		w := testutil.PerformJSON(t, router, http.MethodPost, "/api/v1/tenant/preconnect",
			PreconnectRequest{Phone: "+15557654321", Channel: "telegram"}, nil)
		testutil.RequireStatus(t, w, http.StatusUnprocessableEntity)
		assert.Equal(t, dto.ErrCodeChannelDisabled, errorCode(t, w.Body.Bytes()))
	})

	t.Run("shared bot deep link", func(t *testing.T) {
		a.stores.EnableChannel(t, a.tenantID, channel.Telegram, "", "")
		w := testutil.PerformJSON(t, router, http.MethodPost, "/api/v1/tenant/preconnect",
			PreconnectRequest{Phone: "+15557654321", Channel: "telegram", OrderID: &a.order.ID}, nil)
		testutil.RequireStatus(t, w, http.StatusCreated)

		env := testutil.DecodeJSON[testutil.Envelope](t, w)
		var minted linking.MintResult
		require.NoError(t, json.Unmarshal(env.Data, &minted))
		assert.True(t, minted.UsingPlatformShared)
		assert.True(t, strings.HasPrefix(minted.DeepLink, "https://t.me/orderbot_shared?start="), minted.DeepLink)
		assert.True(t, strings.HasSuffix(minted.DeepLink, url.QueryEscape(minted.Token)))
	})

	t.Run("phone must be e164", func(t *testing.T) {
		w := testutil.PerformJSON(t, router, http.MethodPost, "/api/v1/tenant/preconnect",
			PreconnectRequest{Phone: "5557654321", Channel: "telegram"}, nil)
		testutil.RequireStatus(t, w, http.StatusUnprocessableEntity)
		assert.Equal(t, dto.ErrCodeValidation, errorCode(t, w.Body.Bytes()))
	})
}
