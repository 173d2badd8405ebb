package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/orderbot/backend/internal/domain/channel"
)

// WhatsAppSender sends over the Cloud API with a tenant's phone-number id
// and token, or over the platform Twilio account.
type WhatsAppSender struct {
	cloudBaseURL  string
	twilioBaseURL string
	client        *http.Client
}

// NewWhatsAppSender creates a sender for both providers
func NewWhatsAppSender(cloudBaseURL, twilioBaseURL string, client *http.Client) *WhatsAppSender {
	return &WhatsAppSender{
		cloudBaseURL:  strings.TrimRight(cloudBaseURL, "/"),
		twilioBaseURL: strings.TrimRight(twilioBaseURL, "/"),
		client:        client,
	}
}

// Channel implements channel.Sender
func (s *WhatsAppSender) Channel() channel.Channel { return channel.WhatsApp }

// Send delivers plain text to an E.164 phone number
func (s *WhatsAppSender) Send(ctx context.Context, cred channel.Credential, phone string, content channel.Content) (*channel.SendResult, error) {
	text := plainText(content)
	if cred.Provider == channel.ProviderTwilio {
		return s.sendTwilio(ctx, cred, phone, text)
	}
	return s.sendCloud(ctx, cred, phone, text)
}

func (s *WhatsAppSender) sendCloud(ctx context.Context, cred channel.Credential, phone, text string) (*channel.SendResult, error) {
	if cred.Identity == "" || cred.Secret == "" {
		return nil, &channel.SendError{Channel: channel.WhatsApp, Message: "missing phone number id or token"}
	}
	body, err := do(ctx, s.client, channel.WhatsApp, request{
		method:  http.MethodPost,
		url:     fmt.Sprintf("%s/%s/messages", s.cloudBaseURL, url.PathEscape(cred.Identity)),
		headers: map[string]string{"Authorization": "Bearer " + cred.Secret},
		json: map[string]any{
			"messaging_product": "whatsapp",
			"recipient_type":    "individual",
			"to":                strings.TrimPrefix(phone, "+"),
			"type":              "text",
			"text":              map[string]any{"body": text, "preview_url": true},
		},
	})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &channel.SendError{Channel: channel.WhatsApp, Message: "decode response", Err: err}
	}
	result := &channel.SendResult{}
	if len(resp.Messages) > 0 {
		result.MessageID = resp.Messages[0].ID
	}
	return result, nil
}

func (s *WhatsAppSender) sendTwilio(ctx context.Context, cred channel.Credential, phone, text string) (*channel.SendResult, error) {
	if cred.AccountSID == "" || cred.Secret == "" || cred.From == "" {
		return nil, &channel.SendError{Channel: channel.WhatsApp, Message: "missing twilio credentials"}
	}
	form := url.Values{}
	form.Set("From", whatsappAddress(cred.From))
	form.Set("To", whatsappAddress(phone))
	form.Set("Body", text)

	body, err := do(ctx, s.client, channel.WhatsApp, request{
		method: http.MethodPost,
		url:    fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.twilioBaseURL, url.PathEscape(cred.AccountSID)),
		form:   form,
		user:   cred.AccountSID,
		pass:   cred.Secret,
	})
	if err != nil {
		return nil, err
	}
	var resp struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &channel.SendError{Channel: channel.WhatsApp, Message: "decode response", Err: err}
	}
	return &channel.SendResult{MessageID: resp.SID}, nil
}

func whatsappAddress(phone string) string {
	if strings.HasPrefix(phone, "whatsapp:") {
		return phone
	}
	return "whatsapp:" + channel.NormalizePhone(phone)
}

var _ channel.Sender = (*WhatsAppSender)(nil)
