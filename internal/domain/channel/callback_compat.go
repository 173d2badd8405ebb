package channel

import (
	"errors"
	"strings"
)

// ErrUnknownCallback is returned for callback data in no known format
var ErrUnknownCallback = errors.New("unrecognized callback data")

// legacyTokenPrefixes maps the token-carrying callback formats sent by older
// messages still sitting in customers' chats.
var legacyTokenPrefixes = map[string]Action{
	"approve:": ActionConfirm,
	"confirm:": ActionConfirm,
	"decline:": ActionDecline,
	"reject:":  ActionDecline,
}

// ParseTelegramCallback accepts the canonical confirm_order_<id>_<tenant>
// format and the legacy approve:<token> family.
func ParseTelegramCallback(data string) (CallbackPayload, error) {
	data = strings.TrimSpace(data)
	if p, ok := parseCanonicalTelegram(data); ok {
		return p, nil
	}
	for prefix, action := range legacyTokenPrefixes {
		if token, ok := strings.CutPrefix(data, prefix); ok && token != "" {
			return CallbackPayload{Action: action, Token: token}, nil
		}
	}
	return CallbackPayload{}, ErrUnknownCallback
}
