package outbound

import (
	"context"
	"time"

	"github.com/orderbot/backend/internal/domain/channel"
)

// Repository is the outbound queue.
type Repository interface {
	Enqueue(ctx context.Context, m *Message) error

	// ClaimDue atomically leases up to limit pending messages whose due time
	// has passed, oldest first. A leased message is invisible to other
	// claimers until lease elapses or the message is saved.
	ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*Message, error)

	// Renew moves the caller's lease on m to until. It returns ErrLeaseLost
	// when the row no longer carries m.Claim.
	Renew(ctx context.Context, m *Message, until time.Time) error

	// Save persists the dispatcher's outcome for a claimed message. When
	// m.Claim is set the write only lands while the lease is still ours;
	// otherwise it returns ErrLeaseLost.
	Save(ctx context.Context, m *Message) error

	// ReleaseBacklog makes the recipient's pending messages due at now.
	ReleaseBacklog(ctx context.Context, tenantID int64, phone string, ch channel.Channel, now time.Time) (int64, error)

	// SupersedeConfirmations fails pending confirmation prompts for an order
	// that has already been decided.
	SupersedeConfirmations(ctx context.Context, orderID int64, now time.Time) (int64, error)

	FindByOrder(ctx context.Context, orderID int64) ([]*Message, error)
	DeleteSentBefore(ctx context.Context, before time.Time) (int64, error)
}
