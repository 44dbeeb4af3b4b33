// Package telemetry holds the OpenTelemetry instruments shared by the
// synchronization layer. Instruments are created lazily from the global
// meter provider, so nothing is exported unless the embedding application
// installs one.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "langsync"

var (
	sessionSpawns     metric.Int64Counter
	sessionTeardowns  metric.Int64Counter
	acquireLatency    metric.Float64Histogram
	staleDiscards     metric.Int64Counter
	cacheLookups      metric.Int64Counter
	decorationChanges metric.Int64Counter
	flushes           metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.Meter(instrumentationName)
		var err error

		if sessionSpawns, err = meter.Int64Counter(
			"langsync_session_spawns_total",
			metric.WithDescription("Worker sessions spawned"),
		); err != nil {
			metricsErr = err
			return
		}

		if sessionTeardowns, err = meter.Int64Counter(
			"langsync_session_teardowns_total",
			metric.WithDescription("Worker sessions torn down, by reason"),
		); err != nil {
			metricsErr = err
			return
		}

		if acquireLatency, err = meter.Float64Histogram(
			"langsync_session_acquire_duration_seconds",
			metric.WithDescription("Time to acquire a ready engine handle"),
			metric.WithUnit("s"),
		); err != nil {
			metricsErr = err
			return
		}

		if staleDiscards, err = meter.Int64Counter(
			"langsync_stale_results_total",
			metric.WithDescription("Engine results discarded because the document changed"),
		); err != nil {
			metricsErr = err
			return
		}

		if cacheLookups, err = meter.Int64Counter(
			"langsync_completion_cache_lookups_total",
			metric.WithDescription("Completion cache lookups, by outcome"),
		); err != nil {
			metricsErr = err
			return
		}

		if decorationChanges, err = meter.Int64Counter(
			"langsync_decorations_total",
			metric.WithDescription("Decorations added and removed by reconciliation"),
		); err != nil {
			metricsErr = err
			return
		}

		if flushes, err = meter.Int64Counter(
			"langsync_interval_flushes_total",
			metric.WithDescription("Debounced recomputation requests issued"),
		); err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// Tracer returns the package tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartSpan starts a span for an engine operation.
func StartSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "engine."+operation,
		trace.WithAttributes(append(attrs, attribute.String("langsync.operation", operation))...),
	)
}

// RecordSpawn records a session spawn attempt.
func RecordSpawn(ctx context.Context, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	sessionSpawns.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordTeardown records a session teardown.
func RecordTeardown(ctx context.Context, reason string, captured bool) {
	if err := initMetrics(); err != nil {
		return
	}
	sessionTeardowns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
		attribute.Bool("state_captured", captured),
	))
}

// RecordAcquire records how long an acquire took.
func RecordAcquire(ctx context.Context, d time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	acquireLatency.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordStaleDiscard records a result dropped by the staleness check.
func RecordStaleDiscard(ctx context.Context, closed bool) {
	if err := initMetrics(); err != nil {
		return
	}
	staleDiscards.Add(ctx, 1, metric.WithAttributes(attribute.Bool("document_closed", closed)))
}

// RecordCacheLookup records a completion cache hit or miss.
func RecordCacheLookup(ctx context.Context, hit bool) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", hit)))
}

// RecordDecorations records the size of one atomic replacement.
func RecordDecorations(ctx context.Context, category string, removed, added int) {
	if err := initMetrics(); err != nil {
		return
	}
	decorationChanges.Add(ctx, int64(removed), metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("op", "remove"),
	))
	decorationChanges.Add(ctx, int64(added), metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("op", "add"),
	))
}

// RecordFlush records a debounced recomputation request.
func RecordFlush(ctx context.Context, purpose string, full bool) {
	if err := initMetrics(); err != nil {
		return
	}
	flushes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("purpose", purpose),
		attribute.Bool("full", full),
	))
}
