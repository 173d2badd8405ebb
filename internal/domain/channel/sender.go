package channel

import (
	"context"
	"errors"
	"fmt"
)

// MessageKind distinguishes plain notices from buttoned confirmation prompts.
type MessageKind string

const (
	KindText         MessageKind = "text"
	KindConfirmation MessageKind = "confirmation"
)

// Content is the rendered payload handed to a sender.
type Content struct {
	Kind         MessageKind
	Text         string
	Confirmation *ConfirmationPrompt
}

// ConfirmationPrompt carries what a sender needs to render confirm/decline.
type ConfirmationPrompt struct {
	OrderID      int64  `json:"order_id"`
	TenantID     int64  `json:"tenant_id"`
	ConfirmLabel string `json:"confirm_label"`
	DeclineLabel string `json:"decline_label"`
	LinkURL      string `json:"link_url,omitempty"`
}

// SendResult is returned on a successful provider call
type SendResult struct {
	MessageID string
}

// Sender delivers content to one channel's provider API.
type Sender interface {
	Channel() Channel
	Send(ctx context.Context, cred Credential, recipientID string, content Content) (*SendResult, error)
}

// SendError is a classified provider failure.
type SendError struct {
	Channel    Channel
	StatusCode int
	Message    string
	Retryable  bool
	Err        error
}

func (e *SendError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s send failed (status %d): %s", e.Channel, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s send failed: %s", e.Channel, e.Message)
}

func (e *SendError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is worth retrying later. Unclassified
// errors are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *SendError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return true
}
