package main

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coachpo/prosperity/config"
	"github.com/coachpo/prosperity/internal/backtest"
	"github.com/coachpo/prosperity/internal/observability"
	"github.com/coachpo/prosperity/internal/telemetry"
)

type sweepOptions struct {
	input        inputOptions
	tradeFactors []string
	windows      []string
	limits       bool
	concurrency  int
	skipBaseline bool
}

func sweepCmd(root *rootOptions) *cobra.Command {
	var opts sweepOptions

	cmd := &cobra.Command{
		Use:   "sweep <pattern>...",
		Short: "Replay the same recordings under several setting variants side by side",
		Long: `sweep builds one variant per --trade-factor and per --ma-windows value, plus the baseline
settings, and replays every variant in its own session on a bounded worker pool.

Example:
  prosperity sweep --format csv --trade-factor 1/30,1/15 --ma-windows 200:50,100:20 'data/prices_*.csv'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := root.settings(cmd)
			if err != nil {
				return err
			}
			variants, err := opts.variants(cfg)
			if err != nil {
				return err
			}
			open, _, err := opts.input.factory(args)
			if err != nil {
				return err
			}

			provider, err := initTelemetry(ctx, cfg)
			if err != nil {
				return err
			}
			defer shutdownTelemetry(provider)
			meter := provider.Meter(meterName)

			observability.Log().Info("sweep started",
				observability.Field{Key: "variants", Value: len(variants)},
				observability.Field{Key: "concurrency", Value: opts.concurrency})
			results, err := backtest.Sweep(ctx, variants, open, backtest.SweepOptions{
				MaxConcurrency: opts.concurrency,
				MaxTicks:       opts.input.maxTicks,
				Instruments: func(variant string) (*telemetry.ReplayInstruments, error) {
					return telemetry.NewReplayInstruments(meter, string(cfg.Environment), variant)
				},
			})

			out := cmd.OutOrStdout()
			failed := 0
			for _, result := range results {
				if result.Err != nil {
					failed++
					fmt.Fprintf(out, "variant %s: %v\n", result.Variant, result.Err)
					continue
				}
				printAnalytics(out, result.Variant, result.Analytics)
			}
			if err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d variants failed", failed, len(results))
			}
			return nil
		},
	}

	opts.input.bind(cmd)
	cmd.Flags().StringSliceVar(&opts.tradeFactors, "trade-factor", nil, "Relative-value trade factors to try (e.g. 1/30,0.05)")
	cmd.Flags().StringSliceVar(&opts.windows, "ma-windows", nil, "Moving-average long:short window pairs to try")
	cmd.Flags().BoolVar(&opts.limits, "with-limits", false, "Also run the baseline with position limits enforced")
	cmd.Flags().BoolVar(&opts.skipBaseline, "skip-baseline", false, "Do not replay the unmodified settings")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", runtime.GOMAXPROCS(0), "Variants replayed at once")
	return cmd
}

// variants expands the flags into named settings. Invalid settings are kept so Sweep reports them.
func (o *sweepOptions) variants(base config.Settings) ([]backtest.Variant, error) {
	var out []backtest.Variant
	if !o.skipBaseline {
		out = append(out, backtest.Variant{Name: "baseline", Settings: base})
	}
	if o.limits {
		out = append(out, backtest.Variant{Name: "limits", Settings: config.Apply(base, config.WithPositionLimits(true))})
	}
	for _, factor := range o.tradeFactors {
		factor = strings.TrimSpace(factor)
		if factor == "" {
			continue
		}
		out = append(out, backtest.Variant{
			Name:     "trade_factor=" + factor,
			Settings: config.Apply(base, config.WithTradeFactor(factor)),
		})
	}
	for _, pair := range o.windows {
		long, short, err := parseWindows(pair)
		if err != nil {
			return nil, err
		}
		out = append(out, backtest.Variant{
			Name:     fmt.Sprintf("ma_windows=%d:%d", long, short),
			Settings: config.Apply(base, config.WithMovingAverageWindows(long, short)),
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no variants selected")
	}
	return out, nil
}

func parseWindows(pair string) (int, int, error) {
	longText, shortText, ok := strings.Cut(strings.TrimSpace(pair), ":")
	if !ok {
		return 0, 0, fmt.Errorf("ma-windows %q: want long:short", pair)
	}
	long, err := strconv.Atoi(longText)
	if err != nil {
		return 0, 0, fmt.Errorf("ma-windows %q: %w", pair, err)
	}
	short, err := strconv.Atoi(shortText)
	if err != nil {
		return 0, 0, fmt.Errorf("ma-windows %q: %w", pair, err)
	}
	return long, short, nil
}
