package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/orderbot/backend/internal/application/linking"
	"github.com/orderbot/backend/internal/domain/channel"
	"go.uber.org/zap"
)

// ViberCallback is a Viber bot callback
type ViberCallback struct {
	Event        string     `json:"event"`
	Timestamp    int64      `json:"timestamp"`
	MessageToken int64      `json:"message_token"`
	Context      string     `json:"context,omitempty"`
	User         *ViberUser `json:"user,omitempty"`
	Sender       *ViberUser `json:"sender,omitempty"`
}

// ViberUser is the subscriber behind a callback
type ViberUser struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// AuthenticateViber resolves the bot named in the webhook URL and checks
// X-Viber-Content-Signature, an HMAC-SHA256 of the body keyed by the bot's
// auth token.
func (s *Service) AuthenticateViber(ctx context.Context, botURI string, body []byte, signature string) (channel.Credential, error) {
	cred, err := s.botCredential(ctx, channel.Viber, botURI)
	if err != nil {
		return channel.Credential{}, ErrUnknownSecret
	}
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) == 0 {
		return channel.Credential{}, ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(cred.Secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return channel.Credential{}, ErrInvalidSignature
	}
	return cred, nil
}

// HandleViber links the subscriber on conversation_started and subscribed.
// Viber has no buttons here; confirmations go through the web link.
func (s *Service) HandleViber(ctx context.Context, bot channel.Credential, cb ViberCallback) string {
	result := ResultIgnored
	key := "viber:" + bot.Identity + ":" + cb.Event + ":" + strconv.FormatInt(cb.MessageToken, 10)
	if !s.firstDelivery(ctx, key) {
		result = ResultDuplicate
	} else if user := viberUser(cb); user != "" && (cb.Event == "conversation_started" || cb.Event == "subscribed") {
		result = s.linkViber(ctx, bot, user, cb.Context)
	}
	s.metrics.WebhookUpdate(ctx, channel.Viber.String(), result)
	return result
}

func viberUser(cb ViberCallback) string {
	if cb.User != nil {
		return cb.User.ID
	}
	if cb.Sender != nil {
		return cb.Sender.ID
	}
	return ""
}

func (s *Service) linkViber(ctx context.Context, bot channel.Credential, userID, token string) string {
	log := s.logger.With(zap.String("channel", "viber"), zap.String("bot", bot.Identity))
	bound, err := s.linker.ResolveAndBind(ctx, linking.Contact{
		Channel:      channel.Viber,
		BotIdentity:  bot.Identity,
		SubscriberID: userID,
		Token:        token,
	})
	if err != nil {
		log.Error("Failed to link Viber user", zap.Error(err))
		return ResultError
	}
	if bound == nil {
		log.Info("Viber contact did not match a customer", zap.Bool("had_context", token != ""))
		return ResultIgnored
	}
	log.Info("Viber user linked",
		zap.Int64("tenant_id", bound.Link.TenantID), zap.String("strategy", bound.Strategy))
	return ResultLinked
}
