// Package telemetry wires OpenTelemetry tracing, metrics and log export,
// database tracing and optional Pyroscope profiling.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/orderbot/backend/internal/infrastructure/config"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"
)

// shutdownTimeout bounds each provider flush on exit
const shutdownTimeout = 10 * time.Second

// serviceVersion is stamped on every exported signal
var serviceVersion = "dev"

func newResource(serviceName string) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// Providers bundles every signal provider so main can start and stop them
// as one unit.
type Providers struct {
	Tracer   *TracerProvider
	Meter    *MeterProvider
	Logs     *LoggerProvider
	Profiler *Profiler
}

// Setup builds the providers from configuration. Disabled signals get no-op
// providers, so callers never branch on cfg.Enabled.
func Setup(ctx context.Context, cfg config.TelemetryConfig, logger *zap.Logger) (*Providers, error) {
	base := Config{
		Enabled:           cfg.Enabled,
		CollectorEndpoint: cfg.CollectorEndpoint,
		SamplingRatio:     cfg.SamplingRatio,
		ServiceName:       cfg.ServiceName,
		Insecure:          cfg.Insecure,
	}

	tp, err := NewTracerProvider(ctx, base, logger)
	if err != nil {
		return nil, err
	}

	metricsCfg := base
	metricsCfg.Enabled = cfg.Enabled && cfg.MetricsEnabled
	mp, err := NewMeterProvider(ctx, metricsCfg, logger)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	logsCfg := base
	logsCfg.Enabled = cfg.Enabled && cfg.LogsEnabled
	lp, err := NewLoggerProvider(ctx, logsCfg, logger)
	if err != nil {
		_ = mp.Shutdown(ctx)
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	prof, err := NewProfiler(ProfilerConfig{
		Enabled:         cfg.ProfilingEnabled,
		ServerAddress:   cfg.PyroscopeAddress,
		ApplicationName: cfg.ServiceName,
	}, logger)
	if err != nil {
		logger.Warn("Continuous profiling unavailable", zap.Error(err))
		prof, _ = NewProfiler(ProfilerConfig{}, logger)
	} else if prof.IsEnabled() {
		if err := tp.EnableSpanProfiles(); err != nil {
			logger.Warn("Span profiles unavailable", zap.Error(err))
		}
	}

	return &Providers{Tracer: tp, Meter: mp, Logs: lp, Profiler: prof}, nil
}

// Shutdown flushes and stops everything, in reverse start order
func (p *Providers) Shutdown(ctx context.Context) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	keep(p.Profiler.Stop())
	keep(p.Logs.Shutdown(ctx))
	keep(p.Meter.Shutdown(ctx))
	keep(p.Tracer.Shutdown(ctx))
	return firstErr
}
