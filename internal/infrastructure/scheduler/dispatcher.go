// Package scheduler runs the background loops: the outbound dispatcher and
// the periodic housekeeping purge.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/orderbot/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// BatchProcessor claims and delivers one batch of due messages and reports
// how many it claimed.
type BatchProcessor interface {
	ProcessDue(ctx context.Context) (int, error)
}

// Locker guards a dispatcher pass across instances. TryLock returns
// ErrLockBusy when another holder has it.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(context.Context), err error)
}

// TickObserver receives per-pass timings
type TickObserver interface {
	TickCompleted(ctx context.Context, claimed int, d time.Duration)
}

// DispatcherConfig holds dispatcher loop settings
type DispatcherConfig struct {
	Interval  time.Duration
	// a pass keeps claiming while a full batch comes back
	BatchSize int
}

// DispatcherConfigFrom maps the application config, clamping the interval
// to the configured floor.
func DispatcherConfigFrom(cfg config.DispatcherConfig) DispatcherConfig {
	interval := cfg.Interval
	if interval < config.MinDispatchInterval {
		interval = config.MinDispatchInterval
	}
	return DispatcherConfig{Interval: interval, BatchSize: cfg.BatchSize}
}

// OutboundDispatcher periodically drives a BatchProcessor. It runs one pass
// immediately on start, then on every interval and whenever DispatchNow is
// called. Passes never overlap within a process.
type OutboundDispatcher struct {
	config    DispatcherConfig
	processor BatchProcessor
	locker    Locker
	observer  TickObserver
	logger    *zap.Logger

	kick      chan struct{}
	passMu    sync.Mutex
	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// DispatcherOption customises an OutboundDispatcher
type DispatcherOption func(*OutboundDispatcher)

// WithLocker takes a lock around every pass
func WithLocker(l Locker) DispatcherOption {
	return func(d *OutboundDispatcher) { d.locker = l }
}

// WithTickObserver reports pass timings
func WithTickObserver(o TickObserver) DispatcherOption {
	return func(d *OutboundDispatcher) { d.observer = o }
}

// NewOutboundDispatcher creates a stopped dispatcher
func NewOutboundDispatcher(cfg DispatcherConfig, processor BatchProcessor, logger *zap.Logger, opts ...DispatcherOption) (*OutboundDispatcher, error) {
	if processor == nil {
		return nil, fmt.Errorf("%w: processor is required", ErrInvalidConfig)
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	d := &OutboundDispatcher{
		config:    cfg,
		processor: processor,
		logger:    logger,
		kick:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start launches the loop. A second Start while running is a no-op.
func (d *OutboundDispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.isRunning {
		return nil
	}
	d.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(1)
	go d.loop(ctx)

	d.logger.Info("Outbound dispatcher started",
		zap.Duration("interval", d.config.Interval),
		zap.Int("batch_size", d.config.BatchSize),
		zap.Bool("distributed_lock", d.locker != nil),
	)
	return nil
}

// Stop cancels the loop and waits for the in-flight pass, bounded by ctx
func (d *OutboundDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.isRunning {
		d.mu.Unlock()
		return nil
	}
	d.isRunning = false
	cancel := d.cancel
	d.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Outbound dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.logger.Warn("Outbound dispatcher stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the loop is active
func (d *OutboundDispatcher) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isRunning
}

// DispatchNow requests an extra pass without waiting for the next tick.
// Requests made while one is already pending collapse into it.
func (d *OutboundDispatcher) DispatchNow() error {
	if !d.IsRunning() {
		return ErrNotRunning
	}
	select {
	case d.kick <- struct{}{}:
	default:
	}
	return nil
}

func (d *OutboundDispatcher) loop(ctx context.Context) {
	defer d.wg.Done()

	d.RunOnce(ctx)

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.RunOnce(ctx)
		case <-d.kick:
			d.RunOnce(ctx)
		}
	}
}

// RunOnce performs one pass synchronously. It keeps claiming while full
// batches come back so a backlog drains within one tick.
func (d *OutboundDispatcher) RunOnce(ctx context.Context) {
	d.passMu.Lock()
	defer d.passMu.Unlock()

	if d.locker != nil {
		unlock, err := d.locker.TryLock(ctx)
		if err != nil {
			if errors.Is(err, ErrLockBusy) {
				d.logger.Debug("Dispatcher pass skipped, lock held by another instance")
			} else {
				d.logger.Warn("Dispatcher lock failed", zap.Error(err))
			}
			return
		}
		defer unlock(context.WithoutCancel(ctx))
	}

	start := time.Now()
	total := 0
	for ctx.Err() == nil {
		n, err := d.processor.ProcessDue(ctx)
		total += n
		if err != nil {
			d.logger.Error("Dispatcher pass failed", zap.Error(err), zap.Int("claimed", total))
			break
		}
		if d.config.BatchSize <= 0 || n < d.config.BatchSize {
			break
		}
	}

	elapsed := time.Since(start)
	if d.observer != nil {
		d.observer.TickCompleted(ctx, total, elapsed)
	}
	if total > 0 {
		d.logger.Debug("Dispatcher pass complete", zap.Int("claimed", total), zap.Duration("elapsed", elapsed))
	}
}
