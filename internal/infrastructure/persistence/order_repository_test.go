package persistence

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/orderbot/backend/internal/domain/order"
	"github.com/orderbot/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormOrderRepository_Decide(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormOrderRepository(db)
	records := NewGormConfirmationRecordRepository(db)
	ctx := context.Background()

	tn := seedTenant(t, db, "shop")
	o := seedOrder(t, db, tn.ID)
	now := time.Now().UTC()

	rec := order.NewConfirmationRecord(o, order.DecisionApprove, order.SourceTelegram, "chat:1001", now)
	ok, err := repo.Decide(ctx, rec, order.StatusConfirmed)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := repo.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, stored.Status)
	require.NotNil(t, stored.ConfirmedAt)

	t.Run("repeat decision is a no-op", func(t *testing.T) {
		again := order.NewConfirmationRecord(o, order.DecisionDecline, order.SourceLink, "link", now)
		ok, err := repo.Decide(ctx, again, order.StatusCancelled)
		require.NoError(t, err)
		assert.False(t, ok)

		stored, err := repo.FindByID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusConfirmed, stored.Status)

		found, err := records.FindByOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, order.DecisionApprove, found.Decision)
		assert.Equal(t, order.SourceTelegram, found.Source)
	})

	t.Run("wrong tenant cannot decide", func(t *testing.T) {
		other := seedOrder(t, db, tn.ID)
		forged := order.NewConfirmationRecord(other, order.DecisionApprove, order.SourceLink, "", now)
		forged.TenantID = tn.ID + 100
		ok, err := repo.Decide(ctx, forged, order.StatusConfirmed)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestGormOrderRepository_ConcurrentDecide(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormOrderRepository(db)
	ctx := context.Background()

	tn := seedTenant(t, db, "shop")
	o := seedOrder(t, db, tn.ID)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, to := order.DecisionApprove, order.StatusConfirmed
			if i%2 == 1 {
				d, to = order.DecisionDecline, order.StatusCancelled
			}
			rec := order.NewConfirmationRecord(o, d, order.SourceMessenger, "psid", time.Now().UTC())
			ok, err := repo.Decide(ctx, rec, to)
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	var count int64
	db.Table("confirmation_records").Where("order_id = ?", o.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestGormOrderRepository_UpdateDetails(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormOrderRepository(db)
	ctx := context.Background()

	tn := seedTenant(t, db, "shop")
	o := seedOrder(t, db, tn.ID)

	qty := 3
	require.NoError(t, o.ApplyEdit(order.Edit{Quantity: &qty}, time.Now().UTC()))
	ok, err := repo.UpdateDetails(ctx, o)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := repo.FindByIDForTenant(ctx, tn.ID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Quantity)
	assert.True(t, decimal.RequireFromString("30").Equal(stored.Total))

	_, err = repo.FindByIDForTenant(ctx, tn.ID+1, o.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = repo.Decide(ctx, order.NewConfirmationRecord(o, order.DecisionDecline, order.SourceLink, "", time.Now().UTC()), order.StatusCancelled)
	require.NoError(t, err)
	ok, err = repo.UpdateDetails(ctx, o)
	require.NoError(t, err)
	assert.False(t, ok, "decided orders are not editable")
}

func TestGormConfirmationLinkRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormConfirmationLinkRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	first := order.NewConfirmationLink(1, 10, "tok-1", 0, now)
	require.NoError(t, repo.Replace(ctx, first))
	second := order.NewConfirmationLink(1, 10, "tok-2", 0, now)
	require.NoError(t, repo.Replace(ctx, second))

	_, err := repo.FindByToken(ctx, "tok-1")
	assert.ErrorIs(t, err, shared.ErrNotFound, "reissue replaces the link")

	byOrder, err := repo.FindByOrder(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", byOrder.Token)

	require.NoError(t, repo.RecordAccess(ctx, "tok-2", now))
	require.NoError(t, repo.RecordAccess(ctx, "tok-2", now))
	found, err := repo.FindByToken(ctx, "tok-2")
	require.NoError(t, err)
	assert.Equal(t, 2, found.AccessCount)
	assert.NotNil(t, found.LastAccessedAt)

	old := order.NewConfirmationLink(1, 11, "tok-old", time.Hour, now.Add(-40*24*time.Hour))
	require.NoError(t, repo.Replace(ctx, old))
	n, err := repo.DeleteExpired(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
