package channel

import (
	"fmt"
	"strconv"
	"strings"
)

// Action is a customer's decision on a pending order.
type Action string

const (
	ActionConfirm Action = "confirm"
	ActionDecline Action = "decline"
)

// IsValid checks the action
func (a Action) IsValid() bool {
	return a == ActionConfirm || a == ActionDecline
}

// CallbackPayload is the decoded meaning of a button press. Either the
// order and tenant ids are set, or Token carries a confirmation link token.
type CallbackPayload struct {
	Action   Action
	OrderID  int64
	TenantID int64
	Token    string
}

// HasToken reports whether the payload authorizes itself with a link token
func (p CallbackPayload) HasToken() bool {
	return p.Token != ""
}

// TelegramCallbackData encodes the canonical callback data, e.g.
// confirm_order_123_7. Telegram caps callback data at 64 bytes.
func TelegramCallbackData(action Action, orderID, tenantID int64) string {
	return fmt.Sprintf("%s_order_%d_%d", action, orderID, tenantID)
}

// MessengerPostback encodes the postback payload, e.g. CONFIRM_ORDER_123.
func MessengerPostback(action Action, orderID int64) string {
	return fmt.Sprintf("%s_ORDER_%d", strings.ToUpper(string(action)), orderID)
}

// ParseMessengerPostback decodes CONFIRM_ORDER_<id> / DECLINE_ORDER_<id>.
func ParseMessengerPostback(payload string) (Action, int64, bool) {
	for _, a := range []Action{ActionConfirm, ActionDecline} {
		prefix := strings.ToUpper(string(a)) + "_ORDER_"
		if rest, ok := strings.CutPrefix(payload, prefix); ok {
			id, err := strconv.ParseInt(rest, 10, 64)
			if err != nil || id <= 0 {
				return "", 0, false
			}
			return a, id, true
		}
	}
	return "", 0, false
}

func parseCanonicalTelegram(data string) (CallbackPayload, bool) {
	for _, a := range []Action{ActionConfirm, ActionDecline} {
		rest, ok := strings.CutPrefix(data, string(a)+"_order_")
		if !ok {
			continue
		}
		parts := strings.Split(rest, "_")
		if len(parts) != 2 {
			return CallbackPayload{}, false
		}
		orderID, err1 := strconv.ParseInt(parts[0], 10, 64)
		tenantID, err2 := strconv.ParseInt(parts[1], 10, 64)
		if err1 != nil || err2 != nil || orderID <= 0 || tenantID <= 0 {
			return CallbackPayload{}, false
		}
		return CallbackPayload{Action: a, OrderID: orderID, TenantID: tenantID}, true
	}
	return CallbackPayload{}, false
}
