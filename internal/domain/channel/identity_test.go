package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+213555000111", NormalizePhone("+213 555-000-111"))
	assert.Equal(t, "+213555000111", NormalizePhone("(213) 555000111"))
	assert.Equal(t, "", NormalizePhone(" - "))
}

func TestPreconnectToken(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	res := Resolution{Channel: Telegram, Enabled: true, UsingPlatformShared: true, Credential: Credential{Identity: "shared_bot"}}

	tok, err := NewPreconnectToken(7, "+213 555 000 111", Telegram, nil, res, 0, now)
	require.NoError(t, err)
	assert.Equal(t, "+213555000111", tok.Phone)
	assert.Equal(t, "shared_bot", tok.BotIdentity)
	assert.True(t, tok.Shared)
	assert.Equal(t, now.Add(24*time.Hour), tok.ExpiresAt)
	assert.NotEmpty(t, tok.Token)
	assert.LessOrEqual(t, len(tok.Token), 64)

	assert.True(t, tok.IsUsable(now.Add(23*time.Hour)))
	assert.False(t, tok.IsUsable(now.Add(24*time.Hour)))

	require.NoError(t, tok.MarkUsed(now.Add(time.Minute)))
	assert.False(t, tok.IsUsable(now.Add(2*time.Minute)))
	assert.Error(t, tok.MarkUsed(now.Add(3*time.Minute)))
}

func TestPreconnectTokenRejectsWhatsApp(t *testing.T) {
	_, err := NewPreconnectToken(1, "+1555", WhatsApp, nil, Resolution{}, time.Hour, time.Now())
	assert.Error(t, err)
}

func TestWaitingReason(t *testing.T) {
	assert.Equal(t, "WAITING_FOR_TELEGRAM_CHAT", Telegram.WaitingReason())
	assert.Equal(t, "WAITING_FOR_MESSENGER_ID", Messenger.WaitingReason())
	assert.Equal(t, "WAITING_FOR_VIBER_ID", Viber.WaitingReason())
}
