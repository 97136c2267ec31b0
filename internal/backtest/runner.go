package backtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/coachpo/prosperity/errs"
	"github.com/coachpo/prosperity/internal/engine"
	"github.com/coachpo/prosperity/internal/observability"
	"github.com/coachpo/prosperity/internal/schema"
	"github.com/coachpo/prosperity/internal/telemetry"
)

// TickObserver receives every replayed tick. Observers run on the replay goroutine.
type TickObserver func(state schema.TradingState, orders schema.Orders, err error)

type runnerConfig struct {
	instruments *telemetry.ReplayInstruments
	observer    TickObserver
	logger      observability.Logger
	maxTicks    int
}

// RunnerOption configures a Runner.
type RunnerOption func(*runnerConfig)

// WithInstruments records replay telemetry.
func WithInstruments(instruments *telemetry.ReplayInstruments) RunnerOption {
	return func(cfg *runnerConfig) {
		cfg.instruments = instruments
	}
}

// WithObserver registers a per-tick callback.
func WithObserver(observer TickObserver) RunnerOption {
	return func(cfg *runnerConfig) {
		cfg.observer = observer
	}
}

// WithRunnerLogger overrides the logger.
func WithRunnerLogger(logger observability.Logger) RunnerOption {
	return func(cfg *runnerConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithMaxTicks stops the replay after n ticks. Zero replays everything.
func WithMaxTicks(n int) RunnerOption {
	return func(cfg *runnerConfig) {
		cfg.maxTicks = n
	}
}

// Runner replays snapshots through one session.
type Runner struct {
	feeder    DataFeeder
	session   *engine.Session
	cfg       runnerConfig
	analytics *Analytics
}

// NewRunner creates a runner.
func NewRunner(feeder DataFeeder, session *engine.Session, opts ...RunnerOption) *Runner {
	cfg := runnerConfig{logger: observability.Log()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Runner{feeder: feeder, session: session, cfg: cfg, analytics: newAnalytics()}
}

// Run replays until the feeder is exhausted or ctx is cancelled. Strategy errors are counted in
// the analytics and never stop the replay; feeder errors do.
func (r *Runner) Run(ctx context.Context) (Analytics, error) {
	for {
		if err := ctx.Err(); err != nil {
			return r.analytics.clone(), fmt.Errorf("replay interrupted: %w", err)
		}
		if r.cfg.maxTicks > 0 && r.analytics.Ticks >= r.cfg.maxTicks {
			return r.analytics.clone(), nil
		}

		state, err := r.feeder.Next()
		if errors.Is(err, io.EOF) {
			r.cfg.logger.Info("replay finished",
				observability.Field{Key: "session", Value: r.session.ID()},
				observability.Field{Key: "ticks", Value: r.analytics.Ticks},
				observability.Field{Key: "orders", Value: r.analytics.TotalOrders})
			return r.analytics.clone(), nil
		}
		if err != nil {
			return r.analytics.clone(), fmt.Errorf("replay tick %d: %w", r.analytics.Ticks+1, err)
		}

		started := time.Now()
		orders, tickErr := r.session.Tick(ctx, state)
		if tickErr != nil && ctx.Err() != nil {
			return r.analytics.clone(), fmt.Errorf("replay interrupted: %w", tickErr)
		}
		r.cfg.instruments.RecordTick(ctx, time.Since(started))
		r.analytics.recordTick(orders, tickErr)
		r.record(ctx, orders, tickErr)
		if r.cfg.observer != nil {
			r.cfg.observer(state, orders, tickErr)
		}
	}
}

// Analytics returns a snapshot of the statistics gathered so far.
func (r *Runner) Analytics() Analytics {
	return r.analytics.clone()
}

func (r *Runner) record(ctx context.Context, orders schema.Orders, err error) {
	if r.cfg.instruments == nil {
		return
	}
	for symbol, list := range orders {
		var buys, sells int
		for _, order := range list {
			if order.Side() == schema.TradeSideBuy {
				buys++
			} else {
				sells++
			}
		}
		r.cfg.instruments.RecordOrders(ctx, string(symbol), string(schema.TradeSideBuy), buys)
		r.cfg.instruments.RecordOrders(ctx, string(symbol), string(schema.TradeSideSell), sells)
	}
	if err != nil {
		r.cfg.instruments.RecordError(ctx, string(errs.CodeOf(err)))
	}
}
