package webhook

import (
	"context"
	"crypto/hmac"
	"errors"
	"strconv"
	"strings"

	"github.com/orderbot/backend/internal/application/confirmation"
	"github.com/orderbot/backend/internal/application/linking"
	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/domain/order"
	"github.com/orderbot/backend/internal/domain/shared"
	"github.com/orderbot/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// TelegramUpdate is the subset of a Bot API update the ingest reads
type TelegramUpdate struct {
	UpdateID      int64                  `json:"update_id"`
	Message       *TelegramMessage       `json:"message,omitempty"`
	CallbackQuery *TelegramCallbackQuery `json:"callback_query,omitempty"`
}

// TelegramMessage is an incoming chat message
type TelegramMessage struct {
	MessageID int64         `json:"message_id"`
	From      *TelegramUser `json:"from,omitempty"`
	Chat      TelegramChat  `json:"chat"`
	Text      string        `json:"text"`
}

// TelegramUser is the sender of a message or button press
type TelegramUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

// TelegramChat identifies the conversation
type TelegramChat struct {
	ID int64 `json:"id"`
}

// TelegramCallbackQuery is an inline button press
type TelegramCallbackQuery struct {
	ID      string           `json:"id"`
	From    TelegramUser     `json:"from"`
	Message *TelegramMessage `json:"message,omitempty"`
	Data    string           `json:"data"`
}

const telegramConnectHint = "To get your order updates here, open the link from your order confirmation page."

// AuthenticateTelegram maps the X-Telegram-Bot-Api-Secret-Token header to
// the bot the update was sent to. Tenants sharing a bot share the secret.
func (s *Service) AuthenticateTelegram(ctx context.Context, secretToken string) (channel.Credential, error) {
	if secretToken == "" || s.cfg.TelegramSecretSalt == "" {
		return channel.Credential{}, ErrUnknownSecret
	}
	if cred, ok := s.resolver.Platform().Shared(channel.Telegram); ok {
		if s.secretMatches(cred.Secret, secretToken) {
			return cred, nil
		}
	}

	tc, err := s.credentials.FindByWebhookSecretHash(ctx, channel.Telegram, channel.HashWebhookSecret(secretToken))
	if errors.Is(err, shared.ErrNotFound) {
		return channel.Credential{}, ErrUnknownSecret
	}
	if err != nil {
		return channel.Credential{}, err
	}
	res, err := s.resolver.Resolve(ctx, tc.TenantID, channel.Telegram)
	if err != nil {
		return channel.Credential{}, err
	}
	// The stored hash may predate a token rotation.
	if !res.Enabled || !s.secretMatches(res.Credential.Secret, secretToken) {
		return channel.Credential{}, ErrUnknownSecret
	}
	return res.Credential, nil
}

func (s *Service) secretMatches(botToken, presented string) bool {
	expected := channel.TelegramWebhookSecret(s.cfg.TelegramSecretSalt, botToken)
	return hmac.Equal([]byte(expected), []byte(presented))
}

// HandleTelegram processes one authenticated update and returns how it was
// handled. Errors never reach the provider; Telegram would only redeliver.
func (s *Service) HandleTelegram(ctx context.Context, bot channel.Credential, u TelegramUpdate) string {
	ctx, span := telemetry.StartServiceSpan(ctx, "webhook", "HandleTelegram",
		telemetry.WithAttribute(telemetry.SpanAttrChannel, channel.Telegram.String()),
	)
	defer span.End()

	result := ResultIgnored
	if !s.firstDelivery(ctx, "telegram:"+bot.Identity+":"+strconv.FormatInt(u.UpdateID, 10)) {
		result = ResultDuplicate
	} else if u.CallbackQuery != nil {
		result = s.handleTelegramCallback(ctx, bot, u.CallbackQuery)
	} else if u.Message != nil {
		result = s.handleTelegramMessage(ctx, bot, u.Message)
	}
	s.metrics.WebhookUpdate(ctx, channel.Telegram.String(), result)
	telemetry.SetAttribute(span, "result", result)
	return result
}

func (s *Service) handleTelegramMessage(ctx context.Context, bot channel.Credential, m *TelegramMessage) string {
	payload, ok := startPayload(m.Text)
	if !ok {
		return ResultIgnored
	}
	chatID := strconv.FormatInt(m.Chat.ID, 10)
	log := s.logger.With(zap.String("channel", "telegram"), zap.String("bot", bot.Identity), zap.String("chat_id", chatID))

	bound, err := s.linker.ResolveAndBind(ctx, linking.Contact{
		Channel:      channel.Telegram,
		BotIdentity:  bot.Identity,
		SubscriberID: chatID,
		Token:        payload,
	})
	if err != nil {
		log.Error("Failed to link Telegram chat", zap.Error(err))
		return ResultError
	}
	if bound == nil {
		log.Info("Telegram /start did not match a customer")
		s.replyTelegram(ctx, bot, chatID, telegramConnectHint, log)
		return ResultIgnored
	}
	log.Info("Telegram chat linked",
		zap.Int64("tenant_id", bound.Link.TenantID), zap.String("strategy", bound.Strategy))
	return ResultLinked
}

// startPayload extracts the deep-link payload from "/start <payload>". The
// command may carry the bot name, as in "/start@acme_bot".
func startPayload(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", false
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	if cmd != "/start" {
		return "", false
	}
	if len(fields) > 1 {
		return fields[1], true
	}
	return "", true
}

func (s *Service) handleTelegramCallback(ctx context.Context, bot channel.Credential, cq *TelegramCallbackQuery) string {
	chatID := strconv.FormatInt(cq.From.ID, 10)
	if cq.Message != nil {
		chatID = strconv.FormatInt(cq.Message.Chat.ID, 10)
	}
	log := s.logger.With(zap.String("channel", "telegram"), zap.String("bot", bot.Identity), zap.String("chat_id", chatID))

	p, err := channel.ParseTelegramCallback(cq.Data)
	if err != nil {
		log.Warn("Unrecognized callback data", zap.String("data", cq.Data))
		s.answerTelegram(ctx, bot, cq.ID, "Unknown action", log)
		return ResultIgnored
	}

	actor := "telegram:" + chatID
	var out *confirmation.Outcome
	if p.HasToken() {
		out, err = s.links.DecideByToken(ctx, p.Token, decisionFor(p.Action), order.SourceTelegram, actor)
	} else {
		out, err = s.decideFromChat(ctx, channel.Telegram, bot.Identity, chatID, p, actor)
	}

	result := resultFor(err)
	switch result {
	case ResultUnauthorized:
		log.Warn("Unauthorized Telegram decision dropped",
			zap.Int64("order_id", p.OrderID), zap.Int64("tenant_id", p.TenantID), zap.Error(err))
	case ResultError:
		log.Error("Telegram decision failed", zap.Int64("order_id", p.OrderID), zap.Error(err))
	}

	text := replyText(out, err)
	s.answerTelegram(ctx, bot, cq.ID, text, log)
	s.replyTelegram(ctx, bot, chatID, text, log)
	return result
}

// decideFromChat authorizes a subscriber against an order named by id and
// applies the decision.
func (s *Service) decideFromChat(ctx context.Context, ch channel.Channel, identity, subscriberID string, p channel.CallbackPayload, actor string) (*confirmation.Outcome, error) {
	o, err := s.loadOrderForBot(ctx, p.TenantID, p.OrderID, ch, identity)
	if err != nil {
		return nil, err
	}
	authorizer, err := s.linker.AuthorizeSender(ctx, o, ch, subscriberID)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Chat decision authorized",
		zap.Int64("order_id", o.ID), zap.String("channel", ch.String()), zap.String("authorizer", authorizer))
	return s.decide(ctx, o, p.Action, sourceFor(ch), actor)
}

func sourceFor(ch channel.Channel) order.Source {
	if ch == channel.Messenger {
		return order.SourceMessenger
	}
	return order.SourceTelegram
}

func (s *Service) answerTelegram(ctx context.Context, bot channel.Credential, callbackID, text string, log *zap.Logger) {
	if s.telegram == nil || callbackID == "" {
		return
	}
	if err := s.telegram.AnswerCallbackQuery(ctx, bot, callbackID, text); err != nil {
		log.Warn("answerCallbackQuery failed", zap.Error(err))
	}
}

func (s *Service) replyTelegram(ctx context.Context, bot channel.Credential, chatID, text string, log *zap.Logger) {
	if s.telegram == nil {
		return
	}
	if _, err := s.telegram.Send(ctx, bot, chatID, channel.Content{Kind: channel.KindText, Text: text}); err != nil {
		log.Warn("Telegram reply failed", zap.Error(err))
	}
}
