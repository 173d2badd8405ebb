package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"

	"github.com/orderbot/backend/internal/application/linking"
	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Postback payload sent by the page's Get Started button
const messengerGetStarted = "GET_STARTED"

// MessengerPayload is a page webhook delivery
type MessengerPayload struct {
	Object string           `json:"object"`
	Entry  []MessengerEntry `json:"entry"`
}

// MessengerEntry groups the events for one page
type MessengerEntry struct {
	ID        string               `json:"id"`
	Time      int64                `json:"time"`
	Messaging []MessengerMessaging `json:"messaging"`
}

// MessengerMessaging is one event from one user
type MessengerMessaging struct {
	Sender    MessengerParty     `json:"sender"`
	Recipient MessengerParty     `json:"recipient"`
	Timestamp int64              `json:"timestamp"`
	Message   *MessengerMessage  `json:"message,omitempty"`
	Postback  *MessengerPostback `json:"postback,omitempty"`
	Referral  *MessengerReferral `json:"referral,omitempty"`
	Optin     *MessengerReferral `json:"optin,omitempty"`
}

// MessengerParty is a PSID or page id
type MessengerParty struct {
	ID string `json:"id"`
}

// MessengerMessage is a text message from the user
type MessengerMessage struct {
	MID    string `json:"mid"`
	Text   string `json:"text"`
	IsEcho bool   `json:"is_echo,omitempty"`
}

// MessengerPostback is a button press
type MessengerPostback struct {
	MID      string             `json:"mid"`
	Title    string             `json:"title"`
	Payload  string             `json:"payload"`
	Referral *MessengerReferral `json:"referral,omitempty"`
}

// MessengerReferral carries the m.me ref parameter
type MessengerReferral struct {
	Ref    string `json:"ref"`
	Source string `json:"source,omitempty"`
}

// VerifyMessengerSignature checks X-Hub-Signature-256 against the raw body.
// Without an app secret every delivery is refused.
func (s *Service) VerifyMessengerSignature(body []byte, header string) error {
	if s.cfg.MessengerAppSecret == "" {
		return ErrNotConfigured
	}
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok || sig == "" {
		return ErrInvalidSignature
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(s.cfg.MessengerAppSecret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyMessengerSubscription answers the GET handshake Meta sends when the
// webhook is registered.
func (s *Service) VerifyMessengerSubscription(mode, token, challenge string) (string, error) {
	if s.cfg.MessengerVerifyToken == "" {
		return "", ErrNotConfigured
	}
	if mode != "subscribe" || !hmac.Equal([]byte(token), []byte(s.cfg.MessengerVerifyToken)) {
		return "", ErrVerifyTokenReject
	}
	return challenge, nil
}

// HandleMessenger processes every event in a delivery and returns one result
// per event.
func (s *Service) HandleMessenger(ctx context.Context, p MessengerPayload) []string {
	ctx, span := telemetry.StartServiceSpan(ctx, "webhook", "HandleMessenger",
		telemetry.WithAttribute(telemetry.SpanAttrChannel, channel.Messenger.String()),
	)
	defer span.End()

	var results []string
	if p.Object != "" && p.Object != "page" {
		return results
	}
	for _, entry := range p.Entry {
		pageID := entry.ID
		log := s.logger.With(zap.String("channel", "messenger"), zap.String("page_id", pageID))
		cred, err := s.botCredential(ctx, channel.Messenger, pageID)
		if err != nil {
			log.Warn("Delivery for a page no tenant uses", zap.Error(err))
			for range entry.Messaging {
				results = append(results, ResultIgnored)
				s.metrics.WebhookUpdate(ctx, channel.Messenger.String(), ResultIgnored)
			}
			continue
		}
		for _, ev := range entry.Messaging {
			result := ResultDuplicate
			if s.firstDelivery(ctx, messengerKey(pageID, ev)) {
				result = s.handleMessengerEvent(ctx, cred, ev, log.With(zap.String("psid", ev.Sender.ID)))
			}
			results = append(results, result)
			s.metrics.WebhookUpdate(ctx, channel.Messenger.String(), result)
		}
	}
	return results
}

// messengerKey is the dedup key: the message id when the platform sent one,
// else sender and timestamp.
func messengerKey(pageID string, ev MessengerMessaging) string {
	switch {
	case ev.Message != nil && ev.Message.MID != "":
		return "messenger:" + ev.Message.MID
	case ev.Postback != nil && ev.Postback.MID != "":
		return "messenger:" + ev.Postback.MID
	}
	return "messenger:" + pageID + ":" + ev.Sender.ID + ":" + strconv.FormatInt(ev.Timestamp, 10)
}

func (s *Service) handleMessengerEvent(ctx context.Context, page channel.Credential, ev MessengerMessaging, log *zap.Logger) string {
	psid := ev.Sender.ID
	if psid == "" || psid == page.Identity {
		return ResultIgnored
	}

	switch {
	case ev.Referral != nil:
		return s.linkMessenger(ctx, page, psid, ev.Referral.Ref, log)
	case ev.Optin != nil:
		return s.linkMessenger(ctx, page, psid, ev.Optin.Ref, log)
	case ev.Postback != nil && ev.Postback.Referral != nil:
		return s.linkMessenger(ctx, page, psid, ev.Postback.Referral.Ref, log)
	case ev.Postback != nil && ev.Postback.Payload == messengerGetStarted:
		return s.linkMessenger(ctx, page, psid, "", log)
	case ev.Postback != nil:
		return s.handleMessengerPostback(ctx, page, psid, ev.Postback.Payload, log)
	}
	return ResultIgnored
}

func (s *Service) linkMessenger(ctx context.Context, page channel.Credential, psid, ref string, log *zap.Logger) string {
	bound, err := s.linker.ResolveAndBind(ctx, linking.Contact{
		Channel:      channel.Messenger,
		BotIdentity:  page.Identity,
		SubscriberID: psid,
		Token:        ref,
	})
	if err != nil {
		log.Error("Failed to link Messenger user", zap.Error(err))
		return ResultError
	}
	if bound == nil {
		log.Info("Messenger contact did not match a customer", zap.Bool("had_ref", ref != ""))
		return ResultIgnored
	}
	log.Info("Messenger user linked",
		zap.Int64("tenant_id", bound.Link.TenantID), zap.String("strategy", bound.Strategy))
	return ResultLinked
}

func (s *Service) handleMessengerPostback(ctx context.Context, page channel.Credential, psid, payload string, log *zap.Logger) string {
	action, orderID, ok := channel.ParseMessengerPostback(payload)
	if !ok {
		log.Debug("Ignoring postback", zap.String("payload", payload))
		return ResultIgnored
	}
	p := channel.CallbackPayload{Action: action, OrderID: orderID}
	out, err := s.decideFromChat(ctx, channel.Messenger, page.Identity, psid, p, "messenger:"+psid)

	result := resultFor(err)
	switch result {
	case ResultUnauthorized:
		// Dropped without a reply so strangers learn nothing about the order.
		log.Warn("Unauthorized Messenger decision dropped", zap.Int64("order_id", orderID), zap.Error(err))
		return result
	case ResultError:
		log.Error("Messenger decision failed", zap.Int64("order_id", orderID), zap.Error(err))
	}

	if s.messenger != nil {
		if err := s.messenger.Reply(ctx, page, psid, replyText(out, err)); err != nil {
			log.Warn("Messenger reply failed", zap.Error(err))
		}
	}
	return result
}

// IsAuthError reports whether err should be answered 401/403 rather than 200
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnknownSecret) || errors.Is(err, ErrNotConfigured) ||
		errors.Is(err, ErrInvalidSignature) || errors.Is(err, ErrVerifyTokenReject)
}
