package sender

import (
	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/infrastructure/config"
)

// PlatformCredentials exposes the platform-shared credentials from process
// configuration. Reading through cfg on every call picks up a rotated
// secret on restart without touching tenant rows.
type PlatformCredentials struct {
	cfg *config.Config
}

// NewPlatformCredentials wraps the loaded configuration
func NewPlatformCredentials(cfg *config.Config) *PlatformCredentials {
	return &PlatformCredentials{cfg: cfg}
}

// Shared implements channel.PlatformCredentials
func (p *PlatformCredentials) Shared(ch channel.Channel) (channel.Credential, bool) {
	var c channel.Credential
	switch ch {
	case channel.Telegram:
		c = channel.Credential{Identity: p.cfg.Telegram.SharedBotUsername, Secret: p.cfg.Telegram.SharedBotToken}
	case channel.Messenger:
		c = channel.Credential{Identity: p.cfg.Messenger.SharedPageID, Secret: p.cfg.Messenger.SharedPageToken}
	case channel.WhatsApp:
		c = channel.Credential{
			Identity:   p.cfg.WhatsApp.TwilioFrom,
			Provider:   channel.ProviderTwilio,
			AccountSID: p.cfg.WhatsApp.TwilioAccountSID,
			Secret:     p.cfg.WhatsApp.TwilioAuthToken,
			From:       p.cfg.WhatsApp.TwilioFrom,
		}
	case channel.Viber:
		c = channel.Credential{
			Identity: p.cfg.Viber.SharedBotURI,
			Secret:   p.cfg.Viber.SharedToken,
			From:     p.cfg.Viber.SharedSenderName,
		}
	default:
		return channel.Credential{}, false
	}
	return channel.StaticPlatformCredentials{ch: c}.Shared(ch)
}

var _ channel.PlatformCredentials = (*PlatformCredentials)(nil)
