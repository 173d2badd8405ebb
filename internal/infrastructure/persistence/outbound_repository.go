package persistence

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/domain/outbound"
	"github.com/orderbot/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOutboundRepository implements outbound.Repository using GORM
type GormOutboundRepository struct {
	db *gorm.DB
}

// NewGormOutboundRepository creates a new GormOutboundRepository
func NewGormOutboundRepository(db *gorm.DB) *GormOutboundRepository {
	return &GormOutboundRepository{db: db}
}

// Enqueue stores a new pending message
func (r *GormOutboundRepository) Enqueue(ctx context.Context, m *outbound.Message) error {
	return r.db.WithContext(ctx).Create(models.OutboundMessageModelFromDomain(m)).Error
}

// ClaimDue leases up to limit due messages in one statement:
//
//	UPDATE outbound_messages SET locked_until = now+lease, attempts = attempts+1
//	WHERE status = 'pending' AND due_at <= now
//	  AND (locked_until IS NULL OR locked_until <= now)
//	  AND id IN (SELECT id ... ORDER BY due_at, created_at LIMIT k [FOR UPDATE SKIP LOCKED])
//	RETURNING *
//
// The outer predicate repeats the inner one so a row leased by a concurrent
// claimer between the subquery and the update is skipped.
func (r *GormOutboundRepository) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*outbound.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	now = now.UTC()
	db := r.db.WithContext(ctx)

	due := db.Model(&models.OutboundMessageModel{}).
		Select("id").
		Where("status = ? AND due_at <= ?", outbound.StatusPending, now).
		Where("(locked_until IS NULL OR locked_until <= ?)", now).
		Order("due_at, created_at").
		Limit(limit)
	if isPostgres(r.db) {
		due = due.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}

	var claimed []models.OutboundMessageModel
	result := db.Model(&claimed).
		Clauses(clause.Returning{}).
		Where("status = ? AND due_at <= ?", outbound.StatusPending, now).
		Where("(locked_until IS NULL OR locked_until <= ?)", now).
		Where("id IN (?)", due).
		Updates(map[string]any{
			"locked_until": leaseUntil(now, lease),
			"attempts":     gorm.Expr("attempts + 1"),
			"updated_at":   now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("claim due messages: %w", result.Error)
	}

	out := make([]*outbound.Message, 0, len(claimed))
	for i := range claimed {
		m := claimed[i].ToDomain()
		m.Claim = m.LockedUntil
		out = append(out, m)
	}
	sortByDue(out)
	return out, nil
}

// Renew extends the lease on a claimed message right before it is worked on,
// so a long batch never leaves later messages on the lease taken at claim
// time.
func (r *GormOutboundRepository) Renew(ctx context.Context, m *outbound.Message, until time.Time) error {
	if m.Claim == nil {
		return outbound.ErrLeaseLost
	}
	until = leaseUntil(until, 0)
	result := r.db.WithContext(ctx).
		Model(&models.OutboundMessageModel{}).
		Where("id = ? AND status = ? AND locked_until = ?", m.ID, outbound.StatusPending, m.Claim.UTC()).
		Update("locked_until", until)
	if result.Error != nil {
		return fmt.Errorf("renew lease on %s: %w", m.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return outbound.ErrLeaseLost
	}
	m.Claim = &until
	m.LockedUntil = &until
	return nil
}

// Save writes the dispatcher's outcome and clears the lease. A claimed
// message is only written while the row still carries its claim.
func (r *GormOutboundRepository) Save(ctx context.Context, m *outbound.Message) error {
	q := r.db.WithContext(ctx).
		Model(&models.OutboundMessageModel{}).
		Where("id = ?", m.ID)
	if m.Claim != nil {
		q = q.Where("locked_until = ?", m.Claim.UTC())
	}
	result := q.Updates(map[string]any{
		"status":              m.Status,
		"reason":              truncate(m.Reason, 500),
		"due_at":              m.DueAt.UTC(),
		"transient_failures":  m.TransientFailures,
		"locked_until":        nil,
		"provider_message_id": m.ProviderMessageID,
		"sent_at":             m.SentAt,
		"updated_at":          m.UpdatedAt.UTC(),
	})
	if result.Error != nil {
		return fmt.Errorf("save message %s: %w", m.ID, result.Error)
	}
	if m.Claim != nil && result.RowsAffected == 0 {
		return outbound.ErrLeaseLost
	}
	m.Claim = nil
	return nil
}

// ReleaseBacklog makes the recipient's messages that were parked waiting for
// a subscriber id due now and clears the waiting reason. Messages that were
// never attempted keep their due time, so a confirmation prompt still
// honours the tenant's delay. Messages leased by a running tick are left alone.
func (r *GormOutboundRepository) ReleaseBacklog(ctx context.Context, tenantID int64, phone string, ch channel.Channel, now time.Time) (int64, error) {
	now = now.UTC()
	result := r.db.WithContext(ctx).
		Model(&models.OutboundMessageModel{}).
		Where("tenant_id = ? AND recipient_phone = ? AND channel = ? AND status = ?",
			tenantID, channel.NormalizePhone(phone), ch, outbound.StatusPending).
		Where("(locked_until IS NULL OR locked_until <= ?)", now).
		Where("reason = ?", ch.WaitingReason()).
		Updates(map[string]any{
			"due_at":     now,
			"reason":     "",
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

// SupersedeConfirmations fails pending confirmation prompts for an order
func (r *GormOutboundRepository) SupersedeConfirmations(ctx context.Context, orderID int64, now time.Time) (int64, error) {
	now = now.UTC()
	result := r.db.WithContext(ctx).
		Model(&models.OutboundMessageModel{}).
		Where("order_id = ? AND purpose = ? AND status = ?", orderID, outbound.PurposeConfirmation, outbound.StatusPending).
		Updates(map[string]any{
			"status":       outbound.StatusFailed,
			"reason":       outbound.ReasonSuperseded,
			"locked_until": nil,
			"updated_at":   now,
		})
	return result.RowsAffected, result.Error
}

// FindByOrder lists an order's messages in creation order
func (r *GormOutboundRepository) FindByOrder(ctx context.Context, orderID int64) ([]*outbound.Message, error) {
	var rows []models.OutboundMessageModel
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at, id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*outbound.Message, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

// DeleteSentBefore purges delivered messages older than the cutoff
func (r *GormOutboundRepository) DeleteSentBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND sent_at < ?", outbound.StatusSent, before.UTC()).
		Delete(&models.OutboundMessageModel{})
	return result.RowsAffected, result.Error
}

// leaseUntil is truncated to what postgres stores, so the value handed back
// as a claim compares equal to the column.
func leaseUntil(now time.Time, lease time.Duration) time.Time {
	return now.Add(lease).UTC().Truncate(time.Microsecond)
}

// RETURNING gives no ordering guarantee.
func sortByDue(msgs []*outbound.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].DueAt.Equal(msgs[j].DueAt) {
			return msgs[i].DueAt.Before(msgs[j].DueAt)
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
