// Package channel models the chat channels orders are announced on, the
// credentials used to reach them and the subscriber identities customers
// link to their phone numbers.
package channel

import (
	"fmt"
	"strings"
)

// Channel is the closed set of supported chat channels.
type Channel string

const (
	Telegram  Channel = "telegram"
	Messenger Channel = "messenger"
	WhatsApp  Channel = "whatsapp"
	Viber     Channel = "viber"
)

// All returns every supported channel in dispatch order.
func All() []Channel {
	return []Channel{Telegram, Messenger, WhatsApp, Viber}
}

// IsValid checks if the channel is one of the supported variants
func (c Channel) IsValid() bool {
	switch c {
	case Telegram, Messenger, WhatsApp, Viber:
		return true
	}
	return false
}

// String returns the string representation
func (c Channel) String() string {
	return string(c)
}

// Parse converts a case-insensitive name into a Channel.
func Parse(s string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("unknown channel %q", s)
	}
	return c, nil
}

// RequiresLink reports whether the subscriber id must be learned through a
// linking handshake. WhatsApp addresses customers by phone number directly.
func (c Channel) RequiresLink() bool {
	return c != WhatsApp
}

// WaitingReason is the reason recorded on an outbound message while the
// recipient has not linked this channel yet.
func (c Channel) WaitingReason() string {
	if c == Telegram {
		return "WAITING_FOR_TELEGRAM_CHAT"
	}
	return "WAITING_FOR_" + strings.ToUpper(string(c)) + "_ID"
}

// SupportsButtons reports whether confirm/decline can be rendered as
// interactive buttons. Other channels get the confirmation link as text.
func (c Channel) SupportsButtons() bool {
	return c == Telegram || c == Messenger
}
