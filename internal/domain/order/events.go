package order

import (
	"strconv"

	"github.com/orderbot/backend/internal/domain/shared"
)

// Event types
const (
	EventTypeConfirmed = "order.confirmed"
	EventTypeCancelled = "order.cancelled"
	EventTypeUpdated   = "order.updated"
)

// StatusChangedEvent is published after a decision moves an order out of
// pending, and after a pre-confirmation edit.
type StatusChangedEvent struct {
	shared.BaseDomainEvent
	Order  Order  `json:"order"`
	Source Source `json:"source"`
}

// NewStatusChangedEvent builds the event matching the order's new state
func NewStatusChangedEvent(o *Order, source Source) *StatusChangedEvent {
	eventType := EventTypeUpdated
	switch o.Status {
	case StatusConfirmed:
		eventType = EventTypeConfirmed
	case StatusCancelled:
		eventType = EventTypeCancelled
	}
	return &StatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, strconv.FormatInt(o.ID, 10), o.TenantID),
		Order:           *o,
		Source:          source,
	}
}
