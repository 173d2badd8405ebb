// Package event provides the in-process event bus that fans order and
// linking events out to the dashboard, the outbound queue and metrics.
package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/orderbot/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ErrBusStopped is returned by Publish after Stop
var ErrBusStopped = errors.New("event bus stopped")

// Observer is notified of every handler outcome. Telemetry plugs in here.
type Observer interface {
	HandlerDone(ctx context.Context, eventType string, err error)
}

// InMemoryEventBus dispatches events to registered handlers in process.
//
// In the default synchronous mode Publish returns after every handler ran.
// In async mode each event is handled on its own goroutine with a context
// detached from the caller's cancellation, and Stop waits for them.
type InMemoryEventBus struct {
	registry *HandlerRegistry
	logger   *zap.Logger
	observer Observer
	async    bool
	stopped  atomic.Bool
	wg       sync.WaitGroup
}

// Option configures the bus
type Option func(*InMemoryEventBus)

// WithAsync makes Publish return before handlers run
func WithAsync() Option {
	return func(b *InMemoryEventBus) { b.async = true }
}

// WithObserver installs a handler outcome observer
func WithObserver(o Observer) Option {
	return func(b *InMemoryEventBus) { b.observer = o }
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger, opts ...Option) *InMemoryEventBus {
	b := &InMemoryEventBus{
		registry: NewHandlerRegistry(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers events to their handlers. Handler failures are logged
// and never returned; the publisher's own work has already committed.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if b.stopped.Load() {
		return ErrBusStopped
	}
	for _, ev := range events {
		if ev == nil {
			continue
		}
		if !b.async {
			b.deliver(ctx, ev)
			continue
		}
		b.wg.Add(1)
		go func(ev shared.DomainEvent) {
			defer b.wg.Done()
			b.deliver(context.WithoutCancel(ctx), ev)
		}(ev)
	}
	return nil
}

func (b *InMemoryEventBus) deliver(ctx context.Context, ev shared.DomainEvent) {
	for _, handler := range b.registry.HandlersFor(ev.EventType()) {
		err := b.safeHandle(ctx, handler, ev)
		if b.observer != nil {
			b.observer.HandlerDone(ctx, ev.EventType(), err)
		}
		if err != nil {
			b.logger.Error("event handler failed",
				zap.String("event_type", ev.EventType()),
				zap.String("event_id", ev.EventID().String()),
				zap.Int64("tenant_id", ev.TenantID()),
				zap.String("aggregate_id", ev.AggregateID()),
				zap.Error(err),
			)
		}
	}
}

// Subscribe registers a handler. Without explicit types the handler's own
// EventTypes are used.
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("event handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes a handler
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
}

// Start marks the bus as accepting events
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	b.stopped.Store(false)
	b.logger.Info("event bus started", zap.Bool("async", b.async))
	return nil
}

// Stop rejects new events and waits for in-flight async handlers or ctx.
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.stopped.Store(true)
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.logger.Info("event bus stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event bus stop: %w", ctx.Err())
	}
}

func (b *InMemoryEventBus) safeHandle(ctx context.Context, handler shared.EventHandler, ev shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.Handle(ctx, ev)
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
