package order

import (
	"context"
	"time"
)

// Repository reads orders and applies guarded status changes.
type Repository interface {
	FindByID(ctx context.Context, id int64) (*Order, error)
	FindByIDForTenant(ctx context.Context, tenantID, id int64) (*Order, error)

	// Decide moves the order from pending to the record's target status and
	// stores the record, in one transaction. The update is conditional on the
	// current status being pending; false means another caller won.
	Decide(ctx context.Context, rec *ConfirmationRecord, to Status) (bool, error)

	// UpdateDetails saves customer edits, only while the order is pending.
	UpdateDetails(ctx context.Context, o *Order) (bool, error)
}

// ConfirmationLinkRepository persists confirmation links.
type ConfirmationLinkRepository interface {
	// Replace stores l, removing any previous link for the same order.
	Replace(ctx context.Context, l *ConfirmationLink) error
	FindByToken(ctx context.Context, token string) (*ConfirmationLink, error)
	FindByOrder(ctx context.Context, orderID int64) (*ConfirmationLink, error)
	RecordAccess(ctx context.Context, token string, at time.Time) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// ConfirmationRecordRepository reads decision records.
type ConfirmationRecordRepository interface {
	FindByOrder(ctx context.Context, orderID int64) (*ConfirmationRecord, error)
}
