package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/domain/shared"
	"github.com/orderbot/backend/internal/domain/tenant"
	"github.com/orderbot/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockTelegram struct {
	mock.Mock
}

func (m *MockTelegram) SetWebhook(ctx context.Context, cred channel.Credential, url, secretToken string) error {
	return m.Called(ctx, cred, url, secretToken).Error(0)
}

type MockMessenger struct {
	mock.Mock
}

func (m *MockMessenger) SetGetStarted(ctx context.Context, cred channel.Credential) error {
	return m.Called(ctx, cred).Error(0)
}

const testSalt = "settings-salt"

func newService(t *testing.T) (*Service, *testutil.Stores, int64, *MockTelegram, *MockMessenger) {
	t.Helper()
	stores := testutil.NewStores(t)
	tn := testutil.SeedTenant(t, stores.DB, "acme")
	tg := new(MockTelegram)
	fb := new(MockMessenger)
	resolver := channel.NewCredentialResolver(stores.Credentials, testutil.SharedPlatform())
	svc := NewService(Config{
		TelegramSecretSalt: testSalt,
		TelegramWebhookURL: "https://hooks.example.com/channel/telegram/webhook",
	}, stores.Credentials, resolver, stores.Tenants, tg, fb, zap.NewNop())
	return svc, stores, tn.ID, tg, fb
}

func strPtr(s string) *string { return &s }

func TestListChannels(t *testing.T) {
	svc, stores, tenantID, _, _ := newService(t)
	stores.EnableChannel(t, tenantID, channel.Messenger, "", "")
	stores.EnableChannel(t, tenantID, channel.Telegram, "acme_bot", "123:abc")

	views, err := svc.ListChannels(context.Background(), tenantID)
	require.NoError(t, err)
	require.Len(t, views, len(channel.All()))

	byChannel := map[channel.Channel]ChannelView{}
	for _, v := range views {
		byChannel[v.Channel] = v
	}
	assert.True(t, byChannel[channel.Telegram].Ready)
	assert.True(t, byChannel[channel.Telegram].HasSecret)
	assert.False(t, byChannel[channel.Telegram].UsingPlatformShared)
	assert.True(t, byChannel[channel.Messenger].UsingPlatformShared)
	assert.False(t, byChannel[channel.Viber].Ready)
	assert.Equal(t, channel.ReasonChannelDisabled, byChannel[channel.Viber].Reason)
}

func TestConfigureChannel(t *testing.T) {
	ctx := context.Background()

	t.Run("own telegram bot registers webhook", func(t *testing.T) {
		svc, stores, tenantID, tg, _ := newService(t)
		secret := channel.TelegramWebhookSecret(testSalt, "999:xyz")
		tg.On("SetWebhook", mock.Anything, mock.MatchedBy(func(c channel.Credential) bool {
			return c.Identity == "acme_bot" && c.Secret == "999:xyz"
		}), "https://hooks.example.com/channel/telegram/webhook", secret).Return(nil).Once()

		v, err := svc.ConfigureChannel(ctx, tenantID, channel.Telegram, ChannelSettings{
			Enabled: true, Identity: " acme_bot ", Secret: strPtr("999:xyz"),
		})
		require.NoError(t, err)
		assert.True(t, v.Ready)
		assert.Empty(t, v.RegistrationError)
		tg.AssertExpectations(t)

		stored, err := stores.Credentials.FindByWebhookSecretHash(ctx, channel.Telegram, channel.HashWebhookSecret(secret))
		require.NoError(t, err)
		assert.Equal(t, tenantID, stored.TenantID)
		assert.Equal(t, "acme_bot", stored.Identity)
	})

	t.Run("nil secret keeps the stored one", func(t *testing.T) {
		svc, stores, tenantID, tg, _ := newService(t)
		stores.EnableChannel(t, tenantID, channel.Telegram, "acme_bot", "123:abc")
		tg.On("SetWebhook", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

		_, err := svc.ConfigureChannel(ctx, tenantID, channel.Telegram, ChannelSettings{Enabled: true, Identity: "acme_bot"})
		require.NoError(t, err)

		stored, err := stores.Credentials.FindByTenantAndChannel(ctx, tenantID, channel.Telegram)
		require.NoError(t, err)
		assert.Equal(t, "123:abc", stored.Secret)
	})

	t.Run("registration failure is reported not fatal", func(t *testing.T) {
		svc, stores, tenantID, _, fb := newService(t)
		fb.On("SetGetStarted", mock.Anything, mock.Anything).Return(errors.New("graph 500")).Once()

		v, err := svc.ConfigureChannel(ctx, tenantID, channel.Messenger, ChannelSettings{
			Enabled: true, Identity: "777", Secret: strPtr("page-token"),
		})
		require.NoError(t, err)
		assert.Equal(t, "graph 500", v.RegistrationError)

		stored, err := stores.Credentials.FindByTenantAndChannel(ctx, tenantID, channel.Messenger)
		require.NoError(t, err)
		assert.True(t, stored.Enabled)
	})

	t.Run("shared bot is not registered", func(t *testing.T) {
		svc, _, tenantID, tg, _ := newService(t)
		v, err := svc.ConfigureChannel(ctx, tenantID, channel.Telegram, ChannelSettings{Enabled: true, UsePlatformShared: true})
		require.NoError(t, err)
		assert.True(t, v.UsingPlatformShared)
		tg.AssertNotCalled(t, "SetWebhook", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown channel", func(t *testing.T) {
		svc, _, tenantID, _, _ := newService(t)
		_, err := svc.ConfigureChannel(ctx, tenantID, channel.Channel("sms"), ChannelSettings{Enabled: true})
		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "INVALID_CHANNEL", de.Code)
	})
}

func TestUpdateTemplates(t *testing.T) {
	ctx := context.Background()
	svc, stores, tenantID, _, _ := newService(t)

	delay := 15
	got, err := svc.UpdateTemplates(ctx, tenantID, TemplateSettings{
		Templates:                map[string]string{string(tenant.AllTemplateKeys()[0]): "Hi {{.CustomerName}}"},
		ConfirmationDelayMinutes: &delay,
	})
	require.NoError(t, err)
	assert.Equal(t, 15, got.ConfirmationDelayMinutes)

	reloaded, err := stores.Tenants.FindByID(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, "Hi {{.CustomerName}}", reloaded.Template(tenant.AllTemplateKeys()[0]))

	_, err = svc.UpdateTemplates(ctx, tenantID, TemplateSettings{Templates: map[string]string{"nope": "x"}})
	var de *shared.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "INVALID_TEMPLATE_KEY", de.Code)
}
