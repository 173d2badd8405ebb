package sender

import (
	"context"
	"net/http"
	"testing"

	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhatsAppSender_CloudAPI(t *testing.T) {
	var got map[string]any
	srv := newProviderServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/10001/messages", r.URL.Path)
		assert.Equal(t, "Bearer wa-token", r.Header.Get("Authorization"))
		got = decodeJSON(t, r)
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	})
	s := NewWhatsAppSender(srv.URL, "http://unused", srv.Client())

	res, err := s.Send(context.Background(),
		channel.Credential{Channel: channel.WhatsApp, Identity: "10001", Secret: "wa-token", Provider: channel.ProviderCloudAPI},
		"+380501112233",
		channel.Content{Text: "Confirm order #5", Confirmation: &channel.ConfirmationPrompt{OrderID: 5, LinkURL: "https://s.example/c"}},
	)

	require.NoError(t, err)
	assert.Equal(t, "wamid.1", res.MessageID)
	assert.Equal(t, "380501112233", got["to"])
	body := got["text"].(map[string]any)["body"].(string)
	assert.Contains(t, body, "Confirm order #5")
	assert.Contains(t, body, "https://s.example/c")
}

func TestWhatsAppSender_TwilioFallback(t *testing.T) {
	srv := newProviderServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC1/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC1", user)
		assert.Equal(t, "tw-token", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "whatsapp:+14155238886", r.PostForm.Get("From"))
		assert.Equal(t, "whatsapp:+380501112233", r.PostForm.Get("To"))
		assert.Equal(t, "hello", r.PostForm.Get("Body"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM123"}`))
	})
	s := NewWhatsAppSender("http://unused", srv.URL, srv.Client())

	res, err := s.Send(context.Background(), channel.Credential{
		Channel: channel.WhatsApp, Provider: channel.ProviderTwilio,
		AccountSID: "AC1", Secret: "tw-token", From: "+14155238886",
	}, "+380501112233", channel.Content{Text: "hello"})

	require.NoError(t, err)
	assert.Equal(t, "SM123", res.MessageID)
}

func TestWhatsAppSender_TwilioErrorIsPermanent(t *testing.T) {
	srv := newProviderServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"The 'To' number is not a valid phone number."}`))
	})
	s := NewWhatsAppSender("http://unused", srv.URL, srv.Client())

	_, err := s.Send(context.Background(), channel.Credential{
		Channel: channel.WhatsApp, Provider: channel.ProviderTwilio,
		AccountSID: "AC1", Secret: "t", From: "+1",
	}, "+1", channel.Content{Text: "x"})

	var se *channel.SendError
	require.ErrorAs(t, err, &se)
	assert.False(t, se.Retryable)
	assert.Equal(t, "The 'To' number is not a valid phone number.", se.Message)
}
