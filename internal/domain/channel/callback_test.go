package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTelegramCallback(t *testing.T) {
	tests := []struct {
		name string
		data string
		want CallbackPayload
	}{
		{"canonical confirm", "confirm_order_123_7", CallbackPayload{Action: ActionConfirm, OrderID: 123, TenantID: 7}},
		{"canonical decline", "decline_order_5_2", CallbackPayload{Action: ActionDecline, OrderID: 5, TenantID: 2}},
		{"legacy approve", "approve:abc.def", CallbackPayload{Action: ActionConfirm, Token: "abc.def"}},
		{"legacy decline", "decline:tok", CallbackPayload{Action: ActionDecline, Token: "tok"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTelegramCallback(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "confirm_order_x_7", "confirm_order_1", "approve:", "hello", "confirm_order_0_1"} {
		_, err := ParseTelegramCallback(bad)
		assert.ErrorIs(t, err, ErrUnknownCallback, bad)
	}
}

func TestTelegramCallbackDataRoundTrip(t *testing.T) {
	data := TelegramCallbackData(ActionConfirm, 9223372036854775807, 9223372036854775807)
	assert.LessOrEqual(t, len(data), 64)
	p, err := ParseTelegramCallback(data)
	require.NoError(t, err)
	assert.Equal(t, ActionConfirm, p.Action)
}

func TestMessengerPostback(t *testing.T) {
	assert.Equal(t, "CONFIRM_ORDER_123", MessengerPostback(ActionConfirm, 123))
	assert.Equal(t, "DECLINE_ORDER_9", MessengerPostback(ActionDecline, 9))

	a, id, ok := ParseMessengerPostback("DECLINE_ORDER_9")
	assert.True(t, ok)
	assert.Equal(t, ActionDecline, a)
	assert.Equal(t, int64(9), id)

	_, _, ok = ParseMessengerPostback("GET_STARTED")
	assert.False(t, ok)
	_, _, ok = ParseMessengerPostback("CONFIRM_ORDER_abc")
	assert.False(t, ok)
}
