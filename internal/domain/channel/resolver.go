package channel

// Reason codes reported when a channel cannot be used.
const (
	ReasonChannelDisabled      = "CHANNEL_DISABLED"
	ReasonMissingBotToken      = "MISSING_BOT_TOKEN"
	ReasonMissingPageToken     = "MISSING_PAGE_TOKEN"
	ReasonMissingWhatsAppCreds = "MISSING_WHATSAPP_CREDENTIALS"
	ReasonMissingViberToken    = "MISSING_VIBER_TOKEN"
	ReasonSharedUnavailable    = "SHARED_CREDENTIAL_UNAVAILABLE"
	ReasonNotConfigured        = "NOT_CONFIGURED"
	ReasonUnsupportedChannel   = "UNSUPPORTED_CHANNEL"
)

// Resolution is the outcome of picking a credential for a tenant and channel.
type Resolution struct {
	Channel             Channel    `json:"channel"`
	Enabled             bool       `json:"enabled"`
	UsingPlatformShared bool       `json:"using_platform_shared"`
	Reason              string     `json:"reason,omitempty"`
	Credential          Credential `json:"-"`
}

// Identity returns the bot username, page id or sender the resolution uses.
func (r Resolution) Identity() string {
	return r.Credential.Identity
}

// Resolve picks the credential to use for a tenant on a channel.
//
// Rules apply in order: a tenant-owned identity with its own secret wins;
// a stored identity equal to the platform-shared one always takes the
// current in-process shared secret; a tenant that configured nothing falls
// back to the shared credential; anything else is disabled with a reason.
func Resolve(ch Channel, tc *TenantCredential, platform PlatformCredentials) Resolution {
	res := Resolution{Channel: ch}
	if !ch.IsValid() {
		res.Reason = ReasonUnsupportedChannel
		return res
	}
	if tc == nil || !tc.Enabled {
		res.Reason = ReasonChannelDisabled
		return res
	}

	var shared Credential
	hasShared := false
	if platform != nil {
		shared, hasShared = platform.Shared(ch)
	}

	// A tenant row naming the shared identity never supplies its own secret.
	if tc.Identity != "" && hasShared && tc.Identity == shared.Identity {
		return useShared(res, shared)
	}

	if tc.Identity != "" && tc.Secret != "" && !tc.UsePlatformShared {
		res.Enabled = true
		res.Credential = Credential{
			Channel:  ch,
			Identity: tc.Identity,
			Secret:   tc.Secret,
			Provider: ownedProvider(ch),
		}
		return res
	}

	configuredNothing := tc.Identity == "" && tc.Secret == ""
	if (configuredNothing || tc.UsePlatformShared) && hasShared {
		return useShared(res, shared)
	}

	switch {
	case tc.UsePlatformShared:
		res.Reason = ReasonSharedUnavailable
	default:
		res.Reason = missingReason(ch)
	}
	return res
}

func useShared(res Resolution, shared Credential) Resolution {
	res.Enabled = true
	res.UsingPlatformShared = true
	res.Credential = shared
	return res
}

func ownedProvider(ch Channel) string {
	if ch == WhatsApp {
		return ProviderCloudAPI
	}
	return ""
}

func missingReason(ch Channel) string {
	switch ch {
	case Telegram:
		return ReasonMissingBotToken
	case Messenger:
		return ReasonMissingPageToken
	case WhatsApp:
		return ReasonMissingWhatsAppCreds
	case Viber:
		return ReasonMissingViberToken
	}
	return ReasonNotConfigured
}
