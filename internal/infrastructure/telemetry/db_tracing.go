package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultSlowQueryThreshold flags claim and decide statements that stall
const DefaultSlowQueryThreshold = 200 * time.Millisecond

type queryStartKey struct{}

// RegisterDBTracing installs the otelgorm plugin plus a callback pair that
// tags slow statements on the active span. Query variables are never
// exported: rows carry customer phone numbers.
func RegisterDBTracing(db *gorm.DB, dbName string, slow time.Duration, logger *zap.Logger) error {
	if slow <= 0 {
		slow = DefaultSlowQueryThreshold
	}
	if err := db.Use(otelgorm.NewPlugin(
		otelgorm.WithDBName(dbName),
		otelgorm.WithoutQueryVariables(),
	)); err != nil {
		return err
	}
	if err := registerQueryTiming(db, slow); err != nil {
		return err
	}
	logger.Info("Database tracing enabled",
		zap.String("db_name", dbName),
		zap.Duration("slow_query_threshold", slow),
	)
	return nil
}

func registerQueryTiming(db *gorm.DB, slow time.Duration) error {
	before := func(tx *gorm.DB) {
		if tx.Statement.Context != nil {
			tx.Statement.Context = context.WithValue(tx.Statement.Context, queryStartKey{}, time.Now())
		}
	}
	after := func(tx *gorm.DB) { markSlowQuery(tx, slow) }

	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("orderbot:timing_before_create", before),
		cb.Create().After("gorm:create").Register("orderbot:timing_after_create", after),
		cb.Query().Before("gorm:query").Register("orderbot:timing_before_query", before),
		cb.Query().After("gorm:query").Register("orderbot:timing_after_query", after),
		cb.Update().Before("gorm:update").Register("orderbot:timing_before_update", before),
		cb.Update().After("gorm:update").Register("orderbot:timing_after_update", after),
		cb.Delete().Before("gorm:delete").Register("orderbot:timing_before_delete", before),
		cb.Delete().After("gorm:delete").Register("orderbot:timing_after_delete", after),
		cb.Raw().Before("gorm:raw").Register("orderbot:timing_before_raw", before),
		cb.Raw().After("gorm:raw").Register("orderbot:timing_after_raw", after),
		cb.Row().Before("gorm:row").Register("orderbot:timing_before_row", before),
		cb.Row().After("gorm:row").Register("orderbot:timing_after_row", after),
	)
}

func markSlowQuery(tx *gorm.DB, slow time.Duration) {
	ctx := tx.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	if tx.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", tx.Statement.Table))
	}
	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(start); elapsed > slow {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
	}
}
