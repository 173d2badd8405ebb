package channel

import "github.com/orderbot/backend/internal/domain/shared"

// EventTypeIdentityLinked is published after a subscriber id is bound to a phone
const EventTypeIdentityLinked = "identity.linked"

// IdentityLinkedEvent tells the outbound queue a recipient became reachable.
type IdentityLinkedEvent struct {
	shared.BaseDomainEvent
	Phone        string  `json:"phone"`
	Channel      Channel `json:"channel"`
	SubscriberID string  `json:"subscriber_id"`
	OrderID      *int64  `json:"order_id,omitempty"`
	Strategy     string  `json:"strategy"`
}

// NewIdentityLinkedEvent builds the event for a stored link
func NewIdentityLinkedEvent(link *IdentityLink, orderID *int64, strategy string) *IdentityLinkedEvent {
	return &IdentityLinkedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeIdentityLinked, link.ID.String(), link.TenantID),
		Phone:           link.Phone,
		Channel:         link.Channel,
		SubscriberID:    link.SubscriberID,
		OrderID:         orderID,
		Strategy:        strategy,
	}
}
