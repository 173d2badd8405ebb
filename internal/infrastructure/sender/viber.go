package sender

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/orderbot/backend/internal/domain/channel"
)

// Viber REST status codes that are worth retrying. Everything else that is
// non-zero is a permanent failure (bad receiver, not subscribed, bad token).
var viberRetryableStatus = map[int]bool{
	12: true, // too many requests
}

// ViberSender talks to the Viber REST bot API.
type ViberSender struct {
	baseURL string
	client  *http.Client
}

// NewViberSender creates a sender against baseURL (https://chatapi.viber.com/pa)
func NewViberSender(baseURL string, client *http.Client) *ViberSender {
	return &ViberSender{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Channel implements channel.Sender
func (s *ViberSender) Channel() channel.Channel { return channel.Viber }

// Send delivers plain text. The sender name is the credential's From, or
// its identity.
func (s *ViberSender) Send(ctx context.Context, cred channel.Credential, receiver string, content channel.Content) (*channel.SendResult, error) {
	if cred.Secret == "" {
		return nil, &channel.SendError{Channel: channel.Viber, Message: "missing auth token"}
	}
	name := cred.From
	if name == "" {
		name = cred.Identity
	}
	body, err := do(ctx, s.client, channel.Viber, request{
		method:  http.MethodPost,
		url:     s.baseURL + "/send_message",
		headers: map[string]string{"X-Viber-Auth-Token": cred.Secret},
		json: map[string]any{
			"receiver": receiver,
			"type":     "text",
			"text":     plainText(content),
			"sender":   map[string]string{"name": truncate(name, 28)},
		},
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Status        int    `json:"status"`
		StatusMessage string `json:"status_message"`
		MessageToken  int64  `json:"message_token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &channel.SendError{Channel: channel.Viber, Message: "decode response", Err: err}
	}
	if resp.Status != 0 {
		return nil, &channel.SendError{
			Channel:    channel.Viber,
			StatusCode: http.StatusOK,
			Message:    resp.StatusMessage,
			Retryable:  viberRetryableStatus[resp.Status],
		}
	}
	return &channel.SendResult{MessageID: strconv.FormatInt(resp.MessageToken, 10)}, nil
}

var _ channel.Sender = (*ViberSender)(nil)
