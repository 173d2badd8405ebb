package confirmation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/orderbot/backend/internal/domain/order"
	"github.com/orderbot/backend/internal/domain/shared"
	"github.com/orderbot/backend/internal/infrastructure/telemetry"
	"github.com/orderbot/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestDecide(t *testing.T) {
	ctx := context.Background()
	stores := testutil.NewStores(t)
	tn := testutil.SeedTenant(t, stores.DB, "acme")
	o := testutil.SeedOrder(t, stores.DB, tn.ID)
	pub := testutil.NewRecordingPublisher()
	svc := NewService(stores.Orders, pub, zap.NewNop())

	out, err := svc.Decide(ctx, tn.ID, o.ID, order.DecisionApprove, order.SourceTelegram, "chat:42")
	require.NoError(t, err)
	assert.False(t, out.AlreadyProcessed)
	assert.Equal(t, order.StatusConfirmed, out.Order.Status)
	require.NotNil(t, out.Order.ConfirmedAt)

	events := pub.OfType(order.EventTypeConfirmed)
	require.Len(t, events, 1)
	assert.Equal(t, order.SourceTelegram, events[0].(*order.StatusChangedEvent).Source)

	rec, err := stores.ConfirmRecord.FindByOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.DecisionApprove, rec.Decision)
	assert.Equal(t, "chat:42", rec.Actor)

	t.Run("repeat is an informational no-op", func(t *testing.T) {
		again, err := svc.Decide(ctx, tn.ID, o.ID, order.DecisionDecline, order.SourceLink, "link")
		require.NoError(t, err)
		assert.True(t, again.AlreadyProcessed)
		assert.Equal(t, order.StatusConfirmed, again.Order.Status)
		assert.Len(t, pub.Events(), 1)

		rec, err := stores.ConfirmRecord.FindByOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, order.DecisionApprove, rec.Decision)
	})

	t.Run("other tenant cannot see the order", func(t *testing.T) {
		other := testutil.SeedTenant(t, stores.DB, "globex")
		_, err := svc.Decide(ctx, other.ID, o.ID, order.DecisionDecline, order.SourceLink, "link")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("unknown decision", func(t *testing.T) {
		_, err := svc.Decide(ctx, tn.ID, o.ID, order.Decision("maybe"), order.SourceLink, "link")
		assert.Error(t, err)
	})
}

func TestDecide_ConcurrentCallersDecideOnce(t *testing.T) {
	ctx := context.Background()
	stores := testutil.NewStores(t)
	tn := testutil.SeedTenant(t, stores.DB, "acme")
	o := testutil.SeedOrder(t, stores.DB, tn.ID)
	pub := testutil.NewRecordingPublisher()
	svc := NewService(stores.Orders, pub, zap.NewNop())

	decisions := []order.Decision{order.DecisionApprove, order.DecisionDecline, order.DecisionApprove, order.DecisionDecline}
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for _, d := range decisions {
		wg.Add(1)
		go func(d order.Decision) {
			defer wg.Done()
			out, err := svc.Decide(ctx, tn.ID, o.ID, d, order.SourceMessenger, "psid")
			if err != nil || out.AlreadyProcessed {
				return
			}
			mu.Lock()
			applied++
			mu.Unlock()
		}(d)
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Len(t, pub.Events(), 1)
}

func TestDecide_RecordsMetrics(t *testing.T) {
	ctx := context.Background()
	reader := metric.NewManualReader()
	pm, err := telemetry.NewPipelineMetrics(metric.NewMeterProvider(metric.WithReader(reader)).Meter("test"))
	require.NoError(t, err)

	stores := testutil.NewStores(t)
	tn := testutil.SeedTenant(t, stores.DB, "acme")
	o := testutil.SeedOrder(t, stores.DB, tn.ID)
	svc := NewService(stores.Orders, nil, zap.NewNop())
	svc.SetMetrics(pm)
	svc.SetClock(testutil.FixedClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))

	_, err = svc.Decide(ctx, tn.ID, o.ID, order.DecisionDecline, order.SourceLink, "link")
	require.NoError(t, err)
	_, err = svc.Decide(ctx, tn.ID, o.ID, order.DecisionDecline, order.SourceLink, "link")
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	total := int64(0)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					if v, ok := dp.Attributes.Value(telemetry.AttrResult); ok && (v.AsString() == ResultApplied || v.AsString() == ResultAlreadyProcessed) {
						total += dp.Value
					}
				}
			}
		}
	}
	assert.Equal(t, int64(2), total)
}

func TestDecide_AlreadyDecidedOrder(t *testing.T) {
	ctx := context.Background()
	stores := testutil.NewStores(t)
	tn := testutil.SeedTenant(t, stores.DB, "acme")
	o := testutil.SeedOrder(t, stores.DB, tn.ID,
		testutil.WithStatus(order.StatusCancelled), testutil.WithPhone("+15559990000"))
	pub := testutil.NewRecordingPublisher()
	svc := NewService(stores.Orders, pub, zap.NewNop())

	out, err := svc.Decide(ctx, tn.ID, o.ID, order.DecisionApprove, order.SourceMessenger, "psid:u1")
	require.NoError(t, err)
	assert.True(t, out.AlreadyProcessed)
	assert.Equal(t, order.StatusCancelled, out.Order.Status)
	assert.Equal(t, "+15559990000", out.Order.CustomerPhone)
	assert.Empty(t, pub.Events())

	_, err = stores.ConfirmRecord.FindByOrder(ctx, o.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDecide_PublishFailureKeepsDecision(t *testing.T) {
	ctx := context.Background()
	stores := testutil.NewStores(t)
	tn := testutil.SeedTenant(t, stores.DB, "acme")
	o := testutil.SeedOrder(t, stores.DB, tn.ID)
	pub := testutil.NewRecordingPublisher()
	pub.SetError(errors.New("bus closed"))
	svc := NewService(stores.Orders, pub, zap.NewNop())

	out, err := svc.Decide(ctx, tn.ID, o.ID, order.DecisionDecline, order.SourceLink, "link")
	require.NoError(t, err)
	assert.False(t, out.AlreadyProcessed)

	stored, err := stores.Orders.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, stored.Status)
}
