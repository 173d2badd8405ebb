package confirmation

import (
	"context"
	"testing"
	"time"

	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/domain/order"
	"github.com/orderbot/backend/internal/domain/outbound"
	"github.com/orderbot/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSupersedeHandler(t *testing.T) {
	ctx := context.Background()
	stores := testutil.NewStores(t)
	tn := testutil.SeedTenant(t, stores.DB, "acme")
	o := testutil.SeedOrder(t, stores.DB, tn.ID)

	due := time.Now().UTC().Add(5 * time.Minute)
	prompt, err := outbound.NewMessage(tn.ID, &o.ID, channel.Telegram, o.CustomerPhone, outbound.PurposeConfirmation, "confirm?", due)
	require.NoError(t, err)
	prompt.WithConfirmation(&channel.ConfirmationPrompt{OrderID: o.ID, TenantID: tn.ID})
	require.NoError(t, stores.Outbound.Enqueue(ctx, prompt))
	receipt, err := outbound.NewMessage(tn.ID, &o.ID, channel.Telegram, o.CustomerPhone, outbound.PurposeInstantOrder, "thanks", due)
	require.NoError(t, err)
	require.NoError(t, stores.Outbound.Enqueue(ctx, receipt))

	o.Status = order.StatusConfirmed
	h := NewSupersedeHandler(stores.Outbound, zap.NewNop())
	assert.ElementsMatch(t, []string{order.EventTypeConfirmed, order.EventTypeCancelled}, h.EventTypes())
	require.NoError(t, h.Handle(ctx, order.NewStatusChangedEvent(o, order.SourceLink)))

	msgs, err := stores.Outbound.FindByOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		switch m.Purpose {
		case outbound.PurposeConfirmation:
			assert.Equal(t, outbound.StatusFailed, m.Status)
			assert.Equal(t, outbound.ReasonSuperseded, m.Reason)
		default:
			assert.Equal(t, outbound.StatusPending, m.Status)
		}
	}
}
