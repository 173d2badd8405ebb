package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// PurgeFunc deletes rows older than before and returns how many went
type PurgeFunc func(ctx context.Context, before time.Time) (int64, error)

// PurgeTask is one retention rule
type PurgeTask struct {
	Name      string
	Retention time.Duration
	Purge     PurgeFunc
}

// Housekeeper runs retention purges on a cron schedule (six fields, seconds
// first, evaluated in UTC).
type Housekeeper struct {
	schedule string
	tasks    []PurgeTask
	now      func() time.Time
	timeout  time.Duration
	logger   *zap.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewHousekeeper validates schedule and tasks
func NewHousekeeper(schedule string, tasks []PurgeTask, logger *zap.Logger) (*Housekeeper, error) {
	if _, err := cron.NewParser(cronFields).Parse(schedule); err != nil {
		return nil, fmt.Errorf("%w: schedule %q: %v", ErrInvalidConfig, schedule, err)
	}
	for _, t := range tasks {
		if t.Purge == nil || t.Retention <= 0 {
			return nil, fmt.Errorf("%w: task %q needs a purge func and positive retention", ErrInvalidConfig, t.Name)
		}
	}
	return &Housekeeper{
		schedule: schedule,
		tasks:    tasks,
		now:      func() time.Time { return time.Now().UTC() },
		timeout:  5 * time.Minute,
		logger:   logger,
	}, nil
}

const cronFields = cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor

// Start schedules the purge. Overlapping runs are skipped.
func (h *Housekeeper) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cron != nil {
		return nil
	}

	logger := &cronLogger{logger: h.logger.Named("cron")}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(h.schedule, func() { h.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule housekeeping: %w", err)
	}
	c.Start()
	h.cron = c

	h.logger.Info("Housekeeping scheduled", zap.String("schedule", h.schedule), zap.Int("tasks", len(h.tasks)))
	return nil
}

// Stop halts scheduling and waits for a running purge, bounded by ctx
func (h *Housekeeper) Stop(ctx context.Context) error {
	h.mu.Lock()
	c := h.cron
	h.cron = nil
	h.mu.Unlock()
	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce executes every task. A failing task does not stop the others.
func (h *Housekeeper) RunOnce(ctx context.Context) map[string]int64 {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	now := h.now()
	deleted := make(map[string]int64, len(h.tasks))
	for _, t := range h.tasks {
		n, err := t.Purge(ctx, now.Add(-t.Retention))
		if err != nil {
			h.logger.Error("Housekeeping task failed", zap.String("task", t.Name), zap.Error(err))
			continue
		}
		deleted[t.Name] = n
		if n > 0 {
			h.logger.Info("Housekeeping purged rows", zap.String("task", t.Name), zap.Int64("deleted", n))
		}
	}
	return deleted
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
