// Package order models the slice of an order the confirmation pipeline
// reads and mutates: customer details for templating and the status
// transitions out of pending.
package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/orderbot/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Status represents the status of an order
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
)

// IsValid checks if the status is a valid Status
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusShipped, StatusDelivered:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// CanTransitionTo checks if the status can transition to the target status.
// Fulfillment states past confirmed are owned by the order store.
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusPending:
		return target == StatusConfirmed || target == StatusCancelled
	case StatusConfirmed:
		return target == StatusShipped || target == StatusCancelled
	case StatusShipped:
		return target == StatusDelivered
	}
	return false
}

// Decision is the customer's answer to a confirmation prompt.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDecline Decision = "decline"
)

// TargetStatus maps a decision to the status it moves a pending order to
func (d Decision) TargetStatus() (Status, error) {
	switch d {
	case DecisionApprove:
		return StatusConfirmed, nil
	case DecisionDecline:
		return StatusCancelled, nil
	}
	return "", shared.NewDomainError("INVALID_DECISION", fmt.Sprintf("Unknown decision %q", d))
}

// Order is a tenant's order as seen by the pipeline.
type Order struct {
	ID            int64
	TenantID      int64
	ProductRef    string
	ProductName   string
	CustomerName  string
	CustomerPhone string
	Address       string
	Quantity      int
	UnitPrice     decimal.Decimal
	Total         decimal.Decimal
	Status        Status
	ConfirmedAt   *time.Time
	CancelledAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsPending reports whether the customer may still confirm, decline or edit
func (o *Order) IsPending() bool {
	return o.Status == StatusPending
}

// Edit carries customer-editable fields. Nil fields are left unchanged.
type Edit struct {
	CustomerName  *string
	CustomerPhone *string
	Address       *string
	Quantity      *int
}

// IsEmpty reports whether the edit changes nothing
func (e Edit) IsEmpty() bool {
	return e.CustomerName == nil && e.CustomerPhone == nil && e.Address == nil && e.Quantity == nil
}

// ApplyEdit updates customer fields while the order is pending. A quantity
// change recomputes the total from the unit price.
func (o *Order) ApplyEdit(e Edit, now time.Time) error {
	if !o.IsPending() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot edit order in %s status", o.Status))
	}
	if e.IsEmpty() {
		return shared.NewDomainError("EMPTY_EDIT", "No fields to update")
	}
	if e.CustomerName != nil {
		name := strings.TrimSpace(*e.CustomerName)
		if name == "" {
			return shared.NewDomainError("INVALID_NAME", "Customer name cannot be empty")
		}
		o.CustomerName = name
	}
	if e.CustomerPhone != nil {
		o.CustomerPhone = *e.CustomerPhone
	}
	if e.Address != nil {
		o.Address = strings.TrimSpace(*e.Address)
	}
	if e.Quantity != nil {
		if *e.Quantity <= 0 {
			return shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
		}
		o.Quantity = *e.Quantity
		o.Total = o.UnitPrice.Mul(decimal.NewFromInt(int64(o.Quantity)))
	}
	o.UpdatedAt = now
	return nil
}

// Decide applies a decision in memory. Persistence uses a conditional update
// so concurrent callers cannot both succeed; this mirrors that rule.
func (o *Order) Decide(d Decision, now time.Time) error {
	target, err := d.TargetStatus()
	if err != nil {
		return err
	}
	if !o.IsPending() {
		return shared.ErrAlreadyProcessed
	}
	o.Status = target
	switch target {
	case StatusConfirmed:
		o.ConfirmedAt = &now
	case StatusCancelled:
		o.CancelledAt = &now
	}
	o.UpdatedAt = now
	return nil
}
