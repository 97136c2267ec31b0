package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Instrument names recorded by replays.
const (
	TickCountName    = "replay.ticks"
	OrderCountName   = "replay.orders"
	ErrorCountName   = "replay.errors"
	TickDurationName = "replay.tick.duration"
)

// ReplayInstruments records per-tick replay telemetry for one variant.
type ReplayInstruments struct {
	environment string
	variant     string
	ticks       metric.Int64Counter
	orders      metric.Int64Counter
	errors      metric.Int64Counter
	duration    metric.Float64Histogram
}

// NewReplayInstruments creates the replay instruments on the meter.
func NewReplayInstruments(meter metric.Meter, environment, variant string) (*ReplayInstruments, error) {
	ticks, err := meter.Int64Counter(TickCountName,
		metric.WithDescription("Snapshots replayed through a session"),
		metric.WithUnit("{tick}"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", TickCountName, err)
	}
	orders, err := meter.Int64Counter(OrderCountName,
		metric.WithDescription("Orders emitted during replay"),
		metric.WithUnit("{order}"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", OrderCountName, err)
	}
	errs, err := meter.Int64Counter(ErrorCountName,
		metric.WithDescription("Ticks that returned an error"),
		metric.WithUnit("{error}"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", ErrorCountName, err)
	}
	duration, err := meter.Float64Histogram(TickDurationName,
		metric.WithDescription("Session tick latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", TickDurationName, err)
	}
	return &ReplayInstruments{
		environment: environment,
		variant:     variant,
		ticks:       ticks,
		orders:      orders,
		errors:      errs,
		duration:    duration,
	}, nil
}

// RecordTick records one replayed tick and its latency.
func (r *ReplayInstruments) RecordTick(ctx context.Context, d time.Duration) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(VariantAttributes(r.environment, r.variant)...)
	r.ticks.Add(ctx, 1, attrs)
	r.duration.Record(ctx, float64(d)/float64(time.Millisecond), attrs)
}

// RecordOrders records count orders for a symbol and side.
func (r *ReplayInstruments) RecordOrders(ctx context.Context, symbol, side string, count int) {
	if r == nil || count <= 0 {
		return
	}
	r.orders.Add(ctx, int64(count), metric.WithAttributes(OrderAttributes(r.environment, r.variant, symbol, side)...))
}

// RecordError records a failed tick classified by error type.
func (r *ReplayInstruments) RecordError(ctx context.Context, errorType string) {
	if r == nil {
		return
	}
	if errorType == "" {
		errorType = "unknown"
	}
	r.errors.Add(ctx, 1, metric.WithAttributes(ErrorAttributes(r.environment, r.variant, errorType)...))
}
