package sender

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/orderbot/backend/internal/domain/channel"
)

// Messenger limits
const (
	messengerButtonTextLimit = 640
	messengerTitleLimit      = 20
)

// GetStartedPayload is the postback sent when a user taps Get Started
const GetStartedPayload = "GET_STARTED"

// MessengerSender talks to the Graph Send API with a page token.
type MessengerSender struct {
	baseURL string
	client  *http.Client
}

// NewMessengerSender creates a sender against the Graph base URL
func NewMessengerSender(baseURL string, client *http.Client) *MessengerSender {
	return &MessengerSender{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Channel implements channel.Sender
func (s *MessengerSender) Channel() channel.Channel { return channel.Messenger }

// Send delivers an order update outside the 24h window using the
// POST_PURCHASE_UPDATE tag. Confirmation prompts use a button template.
func (s *MessengerSender) Send(ctx context.Context, cred channel.Credential, psid string, content channel.Content) (*channel.SendResult, error) {
	return s.send(ctx, cred, psid, content, map[string]any{
		"messaging_type": "MESSAGE_TAG",
		"tag":            "POST_PURCHASE_UPDATE",
	})
}

// Reply answers a user message inside the standard messaging window
func (s *MessengerSender) Reply(ctx context.Context, cred channel.Credential, psid, text string) error {
	_, err := s.send(ctx, cred, psid, channel.Content{Kind: channel.KindText, Text: text}, map[string]any{
		"messaging_type": "RESPONSE",
	})
	return err
}

func (s *MessengerSender) send(ctx context.Context, cred channel.Credential, psid string, content channel.Content, envelope map[string]any) (*channel.SendResult, error) {
	envelope["recipient"] = map[string]string{"id": psid}
	envelope["message"] = messengerMessage(content)

	body, err := s.post(ctx, cred, "/me/messages", envelope)
	if err != nil {
		return nil, err
	}
	var resp struct {
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &channel.SendError{Channel: channel.Messenger, Message: "decode response", Err: err}
	}
	return &channel.SendResult{MessageID: resp.MessageID}, nil
}

func messengerMessage(content channel.Content) map[string]any {
	p := content.Confirmation
	if p == nil {
		return map[string]any{"text": content.Text}
	}
	confirm, decline := labels(p)
	buttons := []map[string]string{
		{"type": "postback", "title": truncate(confirm, messengerTitleLimit), "payload": channel.MessengerPostback(channel.ActionConfirm, p.OrderID)},
		{"type": "postback", "title": truncate(decline, messengerTitleLimit), "payload": channel.MessengerPostback(channel.ActionDecline, p.OrderID)},
	}
	if strings.HasPrefix(p.LinkURL, "https://") {
		buttons = append(buttons, map[string]string{"type": "web_url", "title": "Edit order", "url": p.LinkURL})
	}
	return map[string]any{
		"attachment": map[string]any{
			"type": "template",
			"payload": map[string]any{
				"template_type": "button",
				"text":          truncate(content.Text, messengerButtonTextLimit),
				"buttons":       buttons,
			},
		},
	}
}

// SetGetStarted installs the Get Started button on the page
func (s *MessengerSender) SetGetStarted(ctx context.Context, cred channel.Credential) error {
	_, err := s.post(ctx, cred, "/me/messenger_profile", map[string]any{
		"get_started": map[string]string{"payload": GetStartedPayload},
	})
	return err
}

func (s *MessengerSender) post(ctx context.Context, cred channel.Credential, path string, payload any) ([]byte, error) {
	if cred.Secret == "" {
		return nil, &channel.SendError{Channel: channel.Messenger, Message: "missing page token"}
	}
	return do(ctx, s.client, channel.Messenger, request{
		method: http.MethodPost,
		url:    s.baseURL + path + "?access_token=" + url.QueryEscape(cred.Secret),
		json:   payload,
	})
}

var _ channel.Sender = (*MessengerSender)(nil)
