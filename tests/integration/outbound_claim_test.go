package integration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/domain/order"
	"github.com/orderbot/backend/internal/domain/outbound"
	"github.com/orderbot/backend/internal/infrastructure/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Workers racing on the same queue must never claim a message twice.
func TestOutboundClaim_ConcurrentWorkers(t *testing.T) {
	tdb := NewTestDB(t)
	repo := persistence.NewGormOutboundRepository(tdb.DB)
	ctx := context.Background()

	tenantID := tdb.CreateTenant("claims")
	orderID := tdb.CreateOrder(tenantID, "+15551234567")
	now := time.Now().UTC()

	const total = 60
	for i := 0; i < total; i++ {
		msg, err := outbound.NewMessage(tenantID, &orderID, channel.Telegram,
			fmt.Sprintf("+1555000%04d", i), outbound.PurposeInstantOrder, "hello", now.Add(-time.Minute))
		require.NoError(t, err)
		require.NoError(t, repo.Enqueue(ctx, msg))
	}

	var (
		mu      sync.Mutex
		seen    = make(map[uuid.UUID]int)
		wg      sync.WaitGroup
		workers = 6
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				claimed, err := repo.ClaimDue(ctx, now, 7, time.Minute)
				if !assert.NoError(t, err) || len(claimed) == 0 {
					return
				}
				mu.Lock()
				for _, m := range claimed {
					seen[m.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "message %s claimed %d times", id, n)
	}
}

// Only one of many concurrent decisions on a pending order wins.
func TestOrderDecide_SingleWinner(t *testing.T) {
	tdb := NewTestDB(t)
	orders := persistence.NewGormOrderRepository(tdb.DB)
	records := persistence.NewGormConfirmationRecordRepository(tdb.DB)
	ctx := context.Background()

	tenantID := tdb.CreateTenant("decide")
	orderID := tdb.CreateOrder(tenantID, "+15557654321")
	o, err := orders.FindByIDForTenant(ctx, tenantID, orderID)
	require.NoError(t, err)

	var (
		wins atomic.Int32
		wg   sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, to := order.DecisionApprove, order.StatusConfirmed
			if i%2 == 1 {
				d, to = order.DecisionDecline, order.StatusCancelled
			}
			rec := order.NewConfirmationRecord(o, d, order.SourceLink, fmt.Sprintf("worker-%d", i), time.Now().UTC())
			ok, err := orders.Decide(ctx, rec, to)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())

	stored, err := orders.FindByID(ctx, orderID)
	require.NoError(t, err)
	rec, err := records.FindByOrder(ctx, orderID)
	require.NoError(t, err)
	if rec.Decision == order.DecisionApprove {
		assert.Equal(t, order.StatusConfirmed, stored.Status)
	} else {
		assert.Equal(t, order.StatusCancelled, stored.Status)
	}
}
