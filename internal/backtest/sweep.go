package backtest

import (
	"context"
	"fmt"
	"io"

	"github.com/sourcegraph/conc/pool"

	"github.com/coachpo/prosperity/config"
	"github.com/coachpo/prosperity/errs"
	"github.com/coachpo/prosperity/internal/engine"
	"github.com/coachpo/prosperity/internal/telemetry"
)

// Variant is a named Settings override evaluated side by side with others.
type Variant struct {
	Name     string
	Settings config.Settings
}

// Result is the outcome of replaying one variant.
type Result struct {
	Variant   string
	SessionID string
	Analytics Analytics
	Err       error
}

// FeederFactory opens a fresh feeder for each variant. A returned io.Closer is closed after the replay.
type FeederFactory func() (DataFeeder, error)

// SweepOptions configures Sweep.
type SweepOptions struct {
	// MaxConcurrency bounds the number of variants replayed at once. Values below 1 mean one.
	MaxConcurrency int
	// MaxTicks caps each replay. Zero replays everything.
	MaxTicks int
	// Instruments, when set, builds the replay telemetry of one variant.
	Instruments func(variant string) (*telemetry.ReplayInstruments, error)
}

// Sweep replays every variant in its own session on a bounded worker pool. Results keep the order
// of variants. A failing variant is reported in its Result and does not stop the others.
func Sweep(ctx context.Context, variants []Variant, open FeederFactory, opts SweepOptions) ([]Result, error) {
	if open == nil {
		return nil, errs.New("backtest", errs.CodeInvalid, errs.WithMessage("feeder factory required"))
	}
	workers := opts.MaxConcurrency
	if workers < 1 {
		workers = 1
	}

	results := make([]Result, len(variants))
	p := pool.New().WithContext(ctx).WithMaxGoroutines(workers)
	for i, variant := range variants {
		i, variant := i, variant
		p.Go(func(ctx context.Context) error {
			results[i] = runVariant(ctx, variant, open, opts)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

func runVariant(ctx context.Context, variant Variant, open FeederFactory, opts SweepOptions) Result {
	result := Result{Variant: variant.Name}

	bindings, err := variant.Settings.Strategies()
	if err != nil {
		result.Err = fmt.Errorf("variant %s: %w", variant.Name, err)
		return result
	}
	eng, err := engine.New(bindings, engine.WithRiskLimits(variant.Settings.RiskLimits()))
	if err != nil {
		result.Err = fmt.Errorf("variant %s: %w", variant.Name, err)
		return result
	}
	session := eng.NewSession()
	result.SessionID = session.ID()

	feeder, err := open()
	if err != nil {
		result.Err = fmt.Errorf("variant %s: %w", variant.Name, err)
		return result
	}
	if closer, ok := feeder.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	runnerOpts := []RunnerOption{WithMaxTicks(opts.MaxTicks)}
	if opts.Instruments != nil {
		instruments, err := opts.Instruments(variant.Name)
		if err != nil {
			result.Err = fmt.Errorf("variant %s: %w", variant.Name, err)
			return result
		}
		runnerOpts = append(runnerOpts, WithInstruments(instruments))
	}

	result.Analytics, err = NewRunner(feeder, session, runnerOpts...).Run(ctx)
	if err != nil {
		result.Err = fmt.Errorf("variant %s: %w", variant.Name, err)
	}
	return result
}
