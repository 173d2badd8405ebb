// Package outbound models the persistent queue of messages waiting to be
// delivered to customers over chat channels.
package outbound

import (
	"errors"
	"fmt"
	"time"

	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/domain/shared"
)

// Status represents the delivery status of an outbound message
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Reason codes recorded on messages
const (
	ReasonSuperseded     = "SUPERSEDED"
	ReasonRetryExhausted = "RETRY_EXHAUSTED"
	ReasonTransientError = "TRANSIENT_ERROR"
)

// ErrLeaseLost means another worker reclaimed the message, or it was settled
// elsewhere, after this worker claimed it.
var ErrLeaseLost = errors.New("outbound: lease lost")

// Purpose tells what a message is for. Confirmation prompts become obsolete
// once the order leaves pending.
type Purpose string

const (
	PurposeInstantOrder Purpose = "instant_order"
	PurposeConfirmation Purpose = "confirmation"
	PurposeGreeting     Purpose = "greeting"
	PurposePayment      Purpose = "payment"
	PurposeShipping     Purpose = "shipping"
)

// Message is a rendered message scheduled for delivery.
type Message struct {
	shared.BaseEntity
	TenantID          int64
	OrderID           *int64
	Channel           channel.Channel
	RecipientPhone    string
	Purpose           Purpose
	Body              string
	Confirmation      *channel.ConfirmationPrompt
	DueAt             time.Time
	Status            Status
	Reason            string
	Attempts          int
	TransientFailures int
	LockedUntil       *time.Time
	ProviderMessageID string
	SentAt            *time.Time

	// Claim is the lease expiry this worker wrote when it claimed or renewed
	// the message. Renew and Save only succeed while the row still carries
	// it. Outcome methods clear LockedUntil but leave Claim alone.
	Claim *time.Time
}

// NewMessage creates a pending message due at dueAt
func NewMessage(tenantID int64, orderID *int64, ch channel.Channel, phone string, purpose Purpose, body string, dueAt time.Time) (*Message, error) {
	if !ch.IsValid() {
		return nil, shared.NewDomainError("INVALID_CHANNEL", fmt.Sprintf("Unknown channel %q", ch))
	}
	phone = channel.NormalizePhone(phone)
	if phone == "" {
		return nil, shared.NewDomainError("INVALID_PHONE", "Recipient phone is required")
	}
	return &Message{
		BaseEntity:     shared.NewBaseEntity(),
		TenantID:       tenantID,
		OrderID:        orderID,
		Channel:        ch,
		RecipientPhone: phone,
		Purpose:        purpose,
		Body:           body,
		DueAt:          dueAt.UTC(),
		Status:         StatusPending,
	}, nil
}

// WithConfirmation attaches a confirm/decline prompt
func (m *Message) WithConfirmation(p *channel.ConfirmationPrompt) *Message {
	m.Confirmation = p
	return m
}

// Kind is the sender-level rendering of this message
func (m *Message) Kind() channel.MessageKind {
	if m.Confirmation != nil {
		return channel.KindConfirmation
	}
	return channel.KindText
}

// Content builds the sender payload
func (m *Message) Content() channel.Content {
	return channel.Content{Kind: m.Kind(), Text: m.Body, Confirmation: m.Confirmation}
}

// IsPending reports whether the message still awaits delivery
func (m *Message) IsPending() bool {
	return m.Status == StatusPending
}

// MarkSent records a successful delivery
func (m *Message) MarkSent(providerID string, now time.Time) {
	m.Status = StatusSent
	m.ProviderMessageID = providerID
	m.Reason = ""
	m.SentAt = &now
	m.LockedUntil = nil
	m.UpdatedAt = now
}

// Reschedule keeps the message pending and moves its due time.
func (m *Message) Reschedule(reason string, dueAt, now time.Time) {
	m.Status = StatusPending
	m.Reason = reason
	m.DueAt = dueAt
	m.LockedUntil = nil
	m.UpdatedAt = now
}

// RecordTransientFailure reschedules after a retryable error and reports
// whether the retry budget is now exhausted. maxAttempts <= 0 means no cap.
func (m *Message) RecordTransientFailure(reason string, dueAt, now time.Time, maxAttempts int) bool {
	m.TransientFailures++
	if maxAttempts > 0 && m.TransientFailures >= maxAttempts {
		m.MarkFailed(ReasonRetryExhausted+": "+reason, now)
		return true
	}
	m.Reschedule(reason, dueAt, now)
	return false
}

// MarkFailed records a terminal failure
func (m *Message) MarkFailed(reason string, now time.Time) {
	m.Status = StatusFailed
	m.Reason = reason
	m.LockedUntil = nil
	m.UpdatedAt = now
}
