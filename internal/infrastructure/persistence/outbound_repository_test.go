package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/domain/outbound"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func enqueue(t *testing.T, repo *GormOutboundRepository, orderID int64, purpose outbound.Purpose, dueAt time.Time) *outbound.Message {
	t.Helper()
	msg, err := outbound.NewMessage(1, &orderID, channel.Telegram, "+15551234567", purpose, "hello", dueAt)
	require.NoError(t, err)
	if purpose == outbound.PurposeConfirmation {
		msg.WithConfirmation(&channel.ConfirmationPrompt{OrderID: orderID, TenantID: 1, ConfirmLabel: "Yes", DeclineLabel: "No"})
	}
	require.NoError(t, repo.Enqueue(context.Background(), msg))
	return msg
}

func TestGormOutboundRepository_ClaimDue(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormOutboundRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	late := enqueue(t, repo, 1, outbound.PurposeInstantOrder, now.Add(-time.Minute))
	early := enqueue(t, repo, 1, outbound.PurposeConfirmation, now.Add(-2*time.Minute))
	enqueue(t, repo, 1, outbound.PurposeInstantOrder, now.Add(time.Hour))

	claimed, err := repo.ClaimDue(ctx, now, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, early.ID, claimed[0].ID, "oldest due first")
	assert.Equal(t, late.ID, claimed[1].ID)
	assert.Equal(t, 1, claimed[0].Attempts)
	require.NotNil(t, claimed[0].LockedUntil)
	require.NotNil(t, claimed[0].Confirmation)
	assert.Equal(t, int64(1), claimed[0].Confirmation.OrderID)

	t.Run("leased rows are invisible", func(t *testing.T) {
		again, err := repo.ClaimDue(ctx, now, 10, time.Minute)
		require.NoError(t, err)
		assert.Empty(t, again)
	})

	var reclaimed []*outbound.Message
	t.Run("expired lease is reclaimable", func(t *testing.T) {
		var err error
		reclaimed, err = repo.ClaimDue(ctx, now.Add(2*time.Minute), 10, time.Minute)
		require.NoError(t, err)
		require.Len(t, reclaimed, 2)
		assert.Equal(t, 2, reclaimed[0].Attempts)
	})

	t.Run("stale claim cannot renew or save", func(t *testing.T) {
		stale := claimed[1]
		err := repo.Renew(ctx, stale, now.Add(3*time.Minute))
		assert.ErrorIs(t, err, outbound.ErrLeaseLost)

		stale.MarkSent("tg-stale", now.Add(3*time.Minute))
		err = repo.Save(ctx, stale)
		assert.ErrorIs(t, err, outbound.ErrLeaseLost)

		msgs, err := repo.FindByOrder(ctx, 1)
		require.NoError(t, err)
		for _, m := range msgs {
			if m.ID == stale.ID {
				assert.Equal(t, outbound.StatusPending, m.Status, "row still belongs to the second claimer")
				assert.Empty(t, m.ProviderMessageID)
			}
		}
	})

	t.Run("renew moves the current claim", func(t *testing.T) {
		m := reclaimed[1]
		until := now.Add(5 * time.Minute)
		require.NoError(t, repo.Renew(ctx, m, until))
		require.NotNil(t, m.Claim)
		assert.True(t, until.Equal(*m.Claim))

		again, err := repo.ClaimDue(ctx, now.Add(4*time.Minute), 10, time.Minute)
		require.NoError(t, err)
		for _, c := range again {
			assert.NotEqual(t, m.ID, c.ID, "renewed message is still leased")
		}
	})

	t.Run("save clears the lease", func(t *testing.T) {
		msg := reclaimed[0]
		msg.MarkSent("tg-1", now)
		require.NoError(t, repo.Save(ctx, msg))
		assert.Nil(t, msg.Claim)

		msgs, err := repo.FindByOrder(ctx, 1)
		require.NoError(t, err)
		for _, m := range msgs {
			if m.ID == msg.ID {
				assert.Equal(t, outbound.StatusSent, m.Status)
				assert.Equal(t, "tg-1", m.ProviderMessageID)
				assert.Nil(t, m.LockedUntil)
			}
		}
	})

	t.Run("limit is honoured", func(t *testing.T) {
		claimed, err := repo.ClaimDue(ctx, now.Add(2*time.Hour), 1, time.Minute)
		require.NoError(t, err)
		assert.Len(t, claimed, 1)
	})
}

func TestGormOutboundRepository_ConcurrentClaim(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormOutboundRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 30; i++ {
		enqueue(t, repo, int64(i+1), outbound.PurposeInstantOrder, now.Add(-time.Duration(i)*time.Second))
	}

	var mu sync.Mutex
	seen := map[uuid.UUID]int{}
	var wg sync.WaitGroup
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				claimed, err := repo.ClaimDue(ctx, now, 4, time.Minute)
				if err != nil || len(claimed) == 0 {
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

	assert.Len(t, seen, 30)
	for id, n := range seen {
		assert.Equal(t, 1, n, "message %s claimed more than once", id)
	}
}

func TestGormOutboundRepository_ReleaseBacklog(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormOutboundRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	waiting := enqueue(t, repo, 1, outbound.PurposeInstantOrder, now)
	waiting.Reschedule(channel.Telegram.WaitingReason(), now.Add(5*time.Minute), now)
	require.NoError(t, repo.Save(ctx, waiting))

	delayed := enqueue(t, repo, 1, outbound.PurposeConfirmation, now.Add(5*time.Minute))

	n, err := repo.ReleaseBacklog(ctx, 1, "+1 555 123 4567", channel.Telegram, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	claimed, err := repo.ClaimDue(ctx, now, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, waiting.ID, claimed[0].ID)
	assert.Empty(t, claimed[0].Reason)

	msgs, err := repo.FindByOrder(ctx, 1)
	require.NoError(t, err)
	for _, m := range msgs {
		if m.ID == delayed.ID {
			assert.True(t, m.DueAt.Equal(now.Add(5*time.Minute)), "confirmation delay is kept")
		}
	}
}

func TestGormOutboundRepository_SupersedeConfirmations(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormOutboundRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	enqueue(t, repo, 7, outbound.PurposeInstantOrder, now)
	enqueue(t, repo, 7, outbound.PurposeConfirmation, now.Add(5*time.Minute))
	enqueue(t, repo, 8, outbound.PurposeConfirmation, now.Add(5*time.Minute))

	n, err := repo.SupersedeConfirmations(ctx, 7, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	msgs, err := repo.FindByOrder(ctx, 7)
	require.NoError(t, err)
	for _, m := range msgs {
		if m.Purpose == outbound.PurposeConfirmation {
			assert.Equal(t, outbound.StatusFailed, m.Status)
			assert.Equal(t, outbound.ReasonSuperseded, m.Reason)
		} else {
			assert.Equal(t, outbound.StatusPending, m.Status)
		}
	}
}

func TestGormOutboundRepository_DeleteSentBefore(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormOutboundRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	old := enqueue(t, repo, 1, outbound.PurposeInstantOrder, now)
	old.MarkSent("x", now.Add(-40*24*time.Hour))
	require.NoError(t, repo.Save(ctx, old))
	enqueue(t, repo, 1, outbound.PurposeInstantOrder, now)

	n, err := repo.DeleteSentBefore(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGormOutboundRepository_ClaimDueSQL(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB, DriverName: "postgres"}), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	repo := NewGormOutboundRepository(gormDB)

	now := time.Now().UTC()
	id := uuid.New()
	rows := sqlmock.NewRows([]string{
		"id", "created_at", "updated_at", "tenant_id", "order_id", "channel", "recipient_phone",
		"purpose", "body", "confirmation", "due_at", "status", "reason", "attempts",
		"transient_failures", "locked_until", "provider_message_id", "sent_at",
	}).AddRow(
		id.String(), now, now, int64(1), int64(9), "viber", "+15550000000",
		"instant_order", "hi", nil, now, "pending", "", 1,
		0, now.Add(time.Minute), "", nil,
	)

	mock.ExpectQuery(`UPDATE "outbound_messages" SET .*"attempts"=attempts \+ 1.* WHERE .*status = .* AND due_at <= .*locked_until IS NULL OR locked_until <= .*id IN \(SELECT "?id"? FROM "outbound_messages" WHERE .*ORDER BY due_at, created_at LIMIT .*FOR UPDATE SKIP LOCKED\).*RETURNING \*`).
		WillReturnRows(rows)

	claimed, err := repo.ClaimDue(context.Background(), now, 50, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, id, claimed[0].ID)
	assert.Equal(t, channel.Viber, claimed[0].Channel)
	require.NotNil(t, claimed[0].Claim)
	assert.NoError(t, mock.ExpectationsWereMet())

	t.Run("save is guarded by the claim", func(t *testing.T) {
		mock.ExpectExec(`UPDATE "outbound_messages" SET .* WHERE id = .* AND locked_until = `).
			WillReturnResult(sqlmock.NewResult(0, 0))

		m := claimed[0]
		m.MarkSent("vb-1", now)
		err := repo.Save(context.Background(), m)
		assert.ErrorIs(t, err, outbound.ErrLeaseLost)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
