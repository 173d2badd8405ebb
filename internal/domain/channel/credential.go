package channel

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Credential is what a sender needs to talk to a provider. The secret is
// never serialized.
type Credential struct {
	Channel  Channel `json:"channel"`
	Identity string  `json:"identity"`
	Secret   string  `json:"-"`

	// Twilio fallback for WhatsApp
	Provider   string `json:"provider,omitempty"`
	AccountSID string `json:"-"`
	From       string `json:"from,omitempty"`
}

// Provider names for WhatsApp credentials
const (
	ProviderCloudAPI = "cloud_api"
	ProviderTwilio   = "twilio"
)

// String masks the secret.
func (c Credential) String() string {
	return string(c.Channel) + ":" + c.Identity + ":***"
}

// IsComplete reports whether the credential can be used to send.
func (c Credential) IsComplete() bool {
	if c.Provider == ProviderTwilio {
		return c.AccountSID != "" && c.Secret != "" && c.From != ""
	}
	return c.Identity != "" && c.Secret != ""
}

// TenantCredential is a tenant's stored configuration for one channel.
// Secret holds the decrypted value in memory only; storage keeps ciphertext.
type TenantCredential struct {
	TenantID          int64
	Channel           Channel
	Enabled           bool
	Identity          string
	Secret            string
	UsePlatformShared bool
	WebhookSecretHash string
	UpdatedAt         time.Time
}

// HasSecret reports whether a tenant-owned secret is stored
func (c *TenantCredential) HasSecret() bool {
	return c != nil && c.Secret != ""
}

// PlatformCredentials holds the platform-shared credential per channel.
// Values come from process configuration and are read at resolve time so a
// rotated secret takes effect without touching tenant rows.
type PlatformCredentials interface {
	Shared(ch Channel) (Credential, bool)
}

// StaticPlatformCredentials is a map-backed PlatformCredentials.
type StaticPlatformCredentials map[Channel]Credential

// Shared returns the shared credential for ch when it is complete.
func (s StaticPlatformCredentials) Shared(ch Channel) (Credential, bool) {
	c, ok := s[ch]
	if !ok || !c.IsComplete() {
		return Credential{}, false
	}
	c.Channel = ch
	return c, true
}

// TelegramWebhookSecret derives the X-Telegram-Bot-Api-Secret-Token value for a
// bot token. Every tenant using the same bot shares the webhook and the secret.
func TelegramWebhookSecret(salt, botToken string) string {
	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte(botToken))
	return hex.EncodeToString(mac.Sum(nil))[:48]
}

// HashWebhookSecret is the lookup key stored for a derived webhook secret.
func HashWebhookSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
