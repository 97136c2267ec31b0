package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/coachpo/prosperity/internal/schema"
)

// Metrics captures per-strategy evaluation, error, and order telemetry.
type Metrics struct {
	ticks       prometheus.Counter
	evaluations *prometheus.CounterVec
	skipped     *prometheus.CounterVec
	failures    *prometheus.CounterVec
	orders      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMetrics constructs metrics instruments registered against the supplied registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{ //nolint:exhaustruct
			Namespace: "prosperity",
			Subsystem: "engine",
			Name:      "ticks_total",
			Help:      "Total number of ticks evaluated across sessions.",
		}),
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{ //nolint:exhaustruct
				Namespace: "prosperity",
				Subsystem: "engine",
				Name:      "evaluations_total",
				Help:      "Total number of strategy evaluations.",
			},
			[]string{"strategy"},
		),
		skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{ //nolint:exhaustruct
				Namespace: "prosperity",
				Subsystem: "engine",
				Name:      "skipped_total",
				Help:      "Total number of evaluations skipped because a required product was absent.",
			},
			[]string{"strategy"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{ //nolint:exhaustruct
				Namespace: "prosperity",
				Subsystem: "engine",
				Name:      "errors_total",
				Help:      "Total number of evaluation errors by code.",
			},
			[]string{"strategy", "code"},
		),
		orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{ //nolint:exhaustruct
				Namespace: "prosperity",
				Subsystem: "engine",
				Name:      "orders_total",
				Help:      "Total number of orders emitted after risk filtering.",
			},
			[]string{"product", "side"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{ //nolint:exhaustruct
				Namespace: "prosperity",
				Subsystem: "engine",
				Name:      "evaluation_seconds",
				Help:      "Histogram of strategy evaluation durations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"strategy"},
		),
	}
	reg.MustRegister(m.ticks, m.evaluations, m.skipped, m.failures, m.orders, m.duration)
	return m
}

// ObserveTick increments the tick counter.
func (m *Metrics) ObserveTick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}

// ObserveEvaluation records one strategy evaluation and its duration.
func (m *Metrics) ObserveEvaluation(strategy string, d time.Duration) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(strategy).Inc()
	if d >= 0 {
		m.duration.WithLabelValues(strategy).Observe(d.Seconds())
	}
}

// ObserveSkipped increments the skipped counter for the strategy.
func (m *Metrics) ObserveSkipped(strategy string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(strategy).Inc()
}

// ObserveError increments the error counter for the strategy and code.
func (m *Metrics) ObserveError(strategy, code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.failures.WithLabelValues(strategy, code).Inc()
}

// ObserveOrders counts the orders of one tick by product and side.
func (m *Metrics) ObserveOrders(orders schema.Orders) {
	if m == nil {
		return
	}
	for symbol, list := range orders {
		for _, order := range list {
			m.orders.WithLabelValues(string(symbol), string(order.Side())).Inc()
		}
	}
}

// TicksCounter exposes the tick counter for testing and diagnostics.
func (m *Metrics) TicksCounter() prometheus.Counter {
	return m.ticks
}

// EvaluationsCounter exposes the evaluation counter for testing and diagnostics.
func (m *Metrics) EvaluationsCounter(strategy string) prometheus.Counter {
	return m.evaluations.WithLabelValues(strategy)
}

// SkippedCounter exposes the skipped counter for testing and diagnostics.
func (m *Metrics) SkippedCounter(strategy string) prometheus.Counter {
	return m.skipped.WithLabelValues(strategy)
}

// ErrorCounter exposes the error counter for testing and diagnostics.
func (m *Metrics) ErrorCounter(strategy, code string) prometheus.Counter {
	return m.failures.WithLabelValues(strategy, code)
}

// OrdersCounter exposes the order counter for testing and diagnostics.
func (m *Metrics) OrdersCounter(product schema.Symbol, side schema.TradeSide) prometheus.Counter {
	return m.orders.WithLabelValues(string(product), string(side))
}
