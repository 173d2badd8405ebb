package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/orderbot/backend/internal/domain/channel"
)

// TelegramSender talks to the Bot API.
type TelegramSender struct {
	baseURL string
	client  *http.Client
}

// NewTelegramSender creates a sender against baseURL (https://api.telegram.org)
func NewTelegramSender(baseURL string, client *http.Client) *TelegramSender {
	return &TelegramSender{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Channel implements channel.Sender
func (s *TelegramSender) Channel() channel.Channel { return channel.Telegram }

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

type telegramResponse struct {
	OK     bool `json:"ok"`
	Result struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
	Description string `json:"description"`
}

// Send delivers text to a chat. Confirmation prompts carry an inline
// keyboard whose callback data names the order and the tenant.
func (s *TelegramSender) Send(ctx context.Context, cred channel.Credential, chatID string, content channel.Content) (*channel.SendResult, error) {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    content.Text,
	}
	if p := content.Confirmation; p != nil {
		confirm, decline := labels(p)
		rows := [][]inlineButton{{
			{Text: confirm, CallbackData: channel.TelegramCallbackData(channel.ActionConfirm, p.OrderID, p.TenantID)},
			{Text: decline, CallbackData: channel.TelegramCallbackData(channel.ActionDecline, p.OrderID, p.TenantID)},
		}}
		if p.LinkURL != "" && strings.HasPrefix(p.LinkURL, "https://") {
			rows = append(rows, []inlineButton{{Text: "Edit order", URL: p.LinkURL}})
		}
		payload["reply_markup"] = map[string]any{"inline_keyboard": rows}
	}

	body, err := s.call(ctx, cred, "sendMessage", payload)
	if err != nil {
		return nil, err
	}
	var resp telegramResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &channel.SendError{Channel: channel.Telegram, Message: "decode response", Err: err}
	}
	return &channel.SendResult{MessageID: strconv.FormatInt(resp.Result.MessageID, 10)}, nil
}

// AnswerCallbackQuery stops the client-side spinner on a pressed button
func (s *TelegramSender) AnswerCallbackQuery(ctx context.Context, cred channel.Credential, callbackQueryID, text string) error {
	payload := map[string]any{"callback_query_id": callbackQueryID}
	if text != "" {
		payload["text"] = text
	}
	_, err := s.call(ctx, cred, "answerCallbackQuery", payload)
	return err
}

// SetWebhook registers url with the derived secret token
func (s *TelegramSender) SetWebhook(ctx context.Context, cred channel.Credential, url, secretToken string) error {
	_, err := s.call(ctx, cred, "setWebhook", map[string]any{
		"url":             url,
		"secret_token":    secretToken,
		"allowed_updates": []string{"message", "callback_query"},
	})
	return err
}

// call posts to a Bot API method. Telegram answers 200 with ok=false for
// some failures, so the envelope is checked as well as the status.
func (s *TelegramSender) call(ctx context.Context, cred channel.Credential, method string, payload any) ([]byte, error) {
	if cred.Secret == "" {
		return nil, &channel.SendError{Channel: channel.Telegram, Message: "missing bot token"}
	}
	body, err := do(ctx, s.client, channel.Telegram, request{
		method: http.MethodPost,
		url:    fmt.Sprintf("%s/bot%s/%s", s.baseURL, cred.Secret, method),
		json:   payload,
	})
	if err != nil {
		return nil, err
	}
	var env struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(body, &env); err == nil && !env.OK {
		return nil, &channel.SendError{Channel: channel.Telegram, StatusCode: http.StatusOK, Message: env.Description}
	}
	return body, nil
}

var _ channel.Sender = (*TelegramSender)(nil)
