package sender

import (
	"strings"

	"github.com/orderbot/backend/internal/domain/channel"
)

// plainText flattens a confirmation prompt for channels without buttons:
// the confirmation link is appended to the body.
func plainText(c channel.Content) string {
	if c.Confirmation == nil || c.Confirmation.LinkURL == "" {
		return c.Text
	}
	if strings.Contains(c.Text, c.Confirmation.LinkURL) {
		return c.Text
	}
	label := c.Confirmation.ConfirmLabel
	if label == "" {
		label = "Confirm or decline"
	}
	return c.Text + "\n\n" + label + ": " + c.Confirmation.LinkURL
}

func labels(p *channel.ConfirmationPrompt) (confirm, decline string) {
	confirm, decline = p.ConfirmLabel, p.DeclineLabel
	if confirm == "" {
		confirm = "Confirm"
	}
	if decline == "" {
		decline = "Decline"
	}
	return confirm, decline
}
