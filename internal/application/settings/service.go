// Package settings manages a tenant's channel credentials and templates.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/domain/shared"
	"github.com/orderbot/backend/internal/domain/tenant"
	"go.uber.org/zap"
)

// TelegramRegistrar registers the bot webhook with Telegram
type TelegramRegistrar interface {
	SetWebhook(ctx context.Context, cred channel.Credential, url, secretToken string) error
}

// MessengerProfile configures the page's Get Started button
type MessengerProfile interface {
	SetGetStarted(ctx context.Context, cred channel.Credential) error
}

// Config holds what provider registration needs
type Config struct {
	TelegramSecretSalt string
	TelegramWebhookURL string
}

// ChannelView is a channel's settings as shown to the tenant. Secrets are
// never returned.
type ChannelView struct {
	Channel             channel.Channel `json:"channel"`
	Enabled             bool            `json:"enabled"`
	Identity            string          `json:"identity,omitempty"`
	HasSecret           bool            `json:"has_secret"`
	UsePlatformShared   bool            `json:"use_platform_shared"`
	UsingPlatformShared bool            `json:"using_platform_shared"`
	Ready               bool            `json:"ready"`
	Reason              string          `json:"reason,omitempty"`
	RegistrationError   string          `json:"registration_error,omitempty"`
}

// ChannelSettings is a tenant's update for one channel. A nil Secret keeps
// the stored one.
type ChannelSettings struct {
	Enabled           bool
	Identity          string
	Secret            *string
	UsePlatformShared bool
}

// TemplateSettings replaces template overrides and the confirmation delay
type TemplateSettings struct {
	Templates                map[string]string
	ConfirmationDelayMinutes *int
}

// Service reads and writes tenant channel settings
type Service struct {
	cfg         Config
	credentials channel.CredentialRepository
	resolver    *channel.CredentialResolver
	tenants     tenant.Repository
	telegram    TelegramRegistrar
	messenger   MessengerProfile
	logger      *zap.Logger
}

// NewService creates a settings service. telegram and messenger may be nil.
func NewService(cfg Config, credentials channel.CredentialRepository, resolver *channel.CredentialResolver, tenants tenant.Repository,
	telegram TelegramRegistrar, messenger MessengerProfile, logger *zap.Logger) *Service {
	return &Service{
		cfg:         cfg,
		credentials: credentials,
		resolver:    resolver,
		tenants:     tenants,
		telegram:    telegram,
		messenger:   messenger,
		logger:      logger,
	}
}

// ListChannels returns every channel in display order
func (s *Service) ListChannels(ctx context.Context, tenantID int64) ([]ChannelView, error) {
	stored, err := s.credentials.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load channel settings: %w", err)
	}
	byChannel := make(map[channel.Channel]*channel.TenantCredential, len(stored))
	for i := range stored {
		byChannel[stored[i].Channel] = &stored[i]
	}

	views := make([]ChannelView, 0, len(channel.All()))
	for _, ch := range channel.All() {
		views = append(views, s.view(ch, byChannel[ch]))
	}
	return views, nil
}

func (s *Service) view(ch channel.Channel, tc *channel.TenantCredential) ChannelView {
	res := channel.Resolve(ch, tc, s.resolver.Platform())
	v := ChannelView{
		Channel:             ch,
		UsingPlatformShared: res.UsingPlatformShared,
		Ready:               res.Enabled,
		Reason:              res.Reason,
	}
	if tc != nil {
		v.Enabled = tc.Enabled
		v.Identity = tc.Identity
		v.HasSecret = tc.HasSecret()
		v.UsePlatformShared = tc.UsePlatformShared
	}
	return v
}

// ConfigureChannel stores a channel's settings. For an own Telegram bot the
// webhook is registered with a secret derived from the token; for an own
// Messenger page the Get Started button is set. Registration failures are
// reported on the view and do not undo the save.
func (s *Service) ConfigureChannel(ctx context.Context, tenantID int64, ch channel.Channel, in ChannelSettings) (*ChannelView, error) {
	if !ch.IsValid() {
		return nil, shared.NewDomainError("INVALID_CHANNEL", fmt.Sprintf("Unknown channel %q", ch))
	}
	existing, err := s.credentials.FindByTenantAndChannel(ctx, tenantID, ch)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	tc := &channel.TenantCredential{
		TenantID:          tenantID,
		Channel:           ch,
		Enabled:           in.Enabled,
		Identity:          strings.TrimSpace(in.Identity),
		UsePlatformShared: in.UsePlatformShared,
	}
	switch {
	case in.Secret != nil:
		tc.Secret = strings.TrimSpace(*in.Secret)
	case existing != nil:
		tc.Secret = existing.Secret
	}
	if ch == channel.Telegram && tc.Secret != "" && s.cfg.TelegramSecretSalt != "" {
		tc.WebhookSecretHash = channel.HashWebhookSecret(channel.TelegramWebhookSecret(s.cfg.TelegramSecretSalt, tc.Secret))
	}

	if err := s.credentials.Save(ctx, tc); err != nil {
		return nil, fmt.Errorf("save %s settings: %w", ch, err)
	}
	s.logger.Info("Channel settings saved",
		zap.Int64("tenant_id", tenantID),
		zap.String("channel", ch.String()),
		zap.Bool("enabled", tc.Enabled),
		zap.Bool("use_platform_shared", tc.UsePlatformShared),
	)

	v := s.view(ch, tc)
	res := channel.Resolve(ch, tc, s.resolver.Platform())
	if res.Enabled && !res.UsingPlatformShared {
		if err := s.register(ctx, res.Credential); err != nil {
			s.logger.Warn("Provider registration failed",
				zap.Int64("tenant_id", tenantID), zap.String("channel", ch.String()), zap.Error(err))
			v.RegistrationError = err.Error()
		}
	}
	return &v, nil
}

func (s *Service) register(ctx context.Context, cred channel.Credential) error {
	switch cred.Channel {
	case channel.Telegram:
		if s.telegram == nil || s.cfg.TelegramWebhookURL == "" {
			return nil
		}
		secret := channel.TelegramWebhookSecret(s.cfg.TelegramSecretSalt, cred.Secret)
		return s.telegram.SetWebhook(ctx, cred, s.cfg.TelegramWebhookURL, secret)
	case channel.Messenger:
		if s.messenger == nil {
			return nil
		}
		return s.messenger.SetGetStarted(ctx, cred)
	}
	return nil
}

// UpdateTemplates replaces template overrides. Unknown keys are rejected.
func (s *Service) UpdateTemplates(ctx context.Context, tenantID int64, in TemplateSettings) (*tenant.Tenant, error) {
	t, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	overrides := make(map[tenant.TemplateKey]string, len(in.Templates))
	for k, v := range in.Templates {
		overrides[tenant.TemplateKey(k)] = v
	}
	if err := t.UpdateTemplates(overrides, in.ConfirmationDelayMinutes); err != nil {
		return nil, err
	}
	if err := s.tenants.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("save templates: %w", err)
	}
	return t, nil
}
