package event

import (
	"context"

	"github.com/orderbot/backend/internal/domain/shared"
)

// HandlerFunc adapts a function to shared.EventHandler.
type HandlerFunc struct {
	name  string
	types []string
	fn    func(ctx context.Context, event shared.DomainEvent) error
}

// NewHandlerFunc wraps fn as a handler for eventTypes
func NewHandlerFunc(name string, fn func(ctx context.Context, event shared.DomainEvent) error, eventTypes ...string) *HandlerFunc {
	return &HandlerFunc{name: name, types: eventTypes, fn: fn}
}

// Handle calls the wrapped function
func (h *HandlerFunc) Handle(ctx context.Context, event shared.DomainEvent) error {
	return h.fn(ctx, event)
}

// EventTypes returns the subscribed types
func (h *HandlerFunc) EventTypes() []string {
	return h.types
}

// Name is used in logs
func (h *HandlerFunc) Name() string {
	return h.name
}

var _ shared.EventHandler = (*HandlerFunc)(nil)
