package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/coachpo/prosperity/config"
	"github.com/coachpo/prosperity/errs"
	"github.com/coachpo/prosperity/internal/backtest"
	"github.com/coachpo/prosperity/internal/engine"
	"github.com/coachpo/prosperity/internal/observability"
	"github.com/coachpo/prosperity/internal/schema"
	"github.com/coachpo/prosperity/internal/telemetry"
)

const meterName = "github.com/coachpo/prosperity/replay"

// inputOptions selects the recorded files to replay.
type inputOptions struct {
	format   string
	maxTicks int
}

func (o *inputOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.format, "format", "f", string(backtest.FormatJSONL), "Input format: jsonl or csv")
	cmd.Flags().IntVar(&o.maxTicks, "max-ticks", 0, "Stop after this many ticks (0 replays everything)")
}

// factory resolves the patterns once and returns a factory opening a fresh chained feeder.
func (o *inputOptions) factory(patterns []string) (backtest.FeederFactory, []string, error) {
	format, err := backtest.ParseFormat(o.format)
	if err != nil {
		return nil, nil, err
	}
	paths, err := expandPatterns(patterns)
	if err != nil {
		return nil, nil, err
	}
	open := func() (backtest.DataFeeder, error) {
		return openChain(paths, format)
	}
	return open, paths, nil
}

// expandPatterns expands doublestar patterns into a sorted, de-duplicated file list.
func expandPatterns(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expand %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", pattern)
		}
		for _, match := range matches {
			if _, ok := seen[match]; ok {
				continue
			}
			seen[match] = struct{}{}
			out = append(out, match)
		}
	}
	sort.Strings(out)
	return out, nil
}

// tradesFor finds the trades export recorded next to a prices export: prices_X.csv pairs with
// the first trades_X*.csv in the same directory.
func tradesFor(pricesPath string) (string, error) {
	dir, name := filepath.Split(pricesPath)
	if !strings.HasPrefix(name, "prices") {
		return "", nil
	}
	stem := strings.TrimSuffix(strings.TrimPrefix(name, "prices"), filepath.Ext(name))
	pattern := filepath.Join(dir, doublestar.EscapeMeta("trades"+stem)+"*.csv")
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return "", fmt.Errorf("find trades for %s: %w", pricesPath, err)
	}
	if len(matches) == 0 {
		return "", nil
	}
	sort.Strings(matches)
	return matches[0], nil
}

type closingFeeder struct {
	backtest.DataFeeder
	closers []io.Closer
}

func (f *closingFeeder) Close() error {
	var first error
	for _, c := range f.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func openChain(paths []string, format backtest.Format) (*closingFeeder, error) {
	out := &closingFeeder{}
	feeders := make([]backtest.DataFeeder, 0, len(paths))
	for _, path := range paths {
		var (
			feeder *backtest.FileFeeder
			err    error
		)
		if format == backtest.FormatCSV {
			var trades string
			if trades, err = tradesFor(path); err == nil {
				feeder, err = backtest.OpenCSV(path, trades)
			}
		} else {
			feeder, err = backtest.OpenFile(path, format)
		}
		if err != nil {
			_ = out.Close()
			return nil, err
		}
		out.closers = append(out.closers, feeder)
		feeders = append(feeders, feeder)
	}
	out.DataFeeder = backtest.Chain(feeders...)
	return out, nil
}

func replayCmd(root *rootOptions) *cobra.Command {
	var (
		input     inputOptions
		tracePath string
	)

	cmd := &cobra.Command{
		Use:   "replay <pattern>...",
		Short: "Replay recorded snapshots through one session and summarise the orders",
		Long: `replay feeds every file matching the patterns, in lexical order, through a single session.

JSONL inputs hold one TradingState or trace record per line. CSV inputs are the exchange's
prices exports; a trades export named trades<suffix>*.csv next to prices<suffix>.csv is
attached automatically.

Example:
  prosperity replay --format csv 'data/round4/prices_*.csv'
  prosperity replay logs/**/*.jsonl --trace replay.log`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := root.settings(cmd)
			if err != nil {
				return err
			}
			open, paths, err := input.factory(args)
			if err != nil {
				return err
			}

			provider, err := initTelemetry(ctx, cfg)
			if err != nil {
				return err
			}
			defer shutdownTelemetry(provider)
			instruments, err := telemetry.NewReplayInstruments(provider.Meter(meterName), string(cfg.Environment), "default")
			if err != nil {
				return err
			}

			eng, err := newEngine(cfg)
			if err != nil {
				return err
			}
			traceOut, closeTrace, err := openTraceWriter(tracePath, io.Discard, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = closeTrace() }()

			feeder, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = feeder.(io.Closer).Close() }()

			observability.Log().Info("replay started", observability.Field{Key: "files", Value: len(paths)})
			session := eng.NewSession(engine.WithTraceWriter(traceOut))
			stats, err := backtest.NewRunner(feeder, session,
				backtest.WithInstruments(instruments),
				backtest.WithMaxTicks(input.maxTicks)).Run(ctx)
			printAnalytics(cmd.OutOrStdout(), "default", stats)
			return err
		},
	}

	input.bind(cmd)
	cmd.Flags().StringVar(&tracePath, "trace", "", "Write trace records to this file (- for stderr)")
	return cmd
}

func initTelemetry(ctx context.Context, cfg config.Settings) (*telemetry.Provider, error) {
	telemetryCfg := telemetry.DefaultConfig()
	if cfg.Telemetry.Enabled {
		telemetryCfg.Enabled = true
	}
	if cfg.Telemetry.OTLPEndpoint != "" {
		telemetryCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	if cfg.Telemetry.ServiceName != "" {
		telemetryCfg.ServiceName = cfg.Telemetry.ServiceName
	}
	telemetryCfg.Environment = string(cfg.Environment)

	provider, err := telemetry.NewProvider(ctx, telemetryCfg)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry provider: %w", err)
	}
	if telemetryCfg.Enabled {
		observability.Log().Info("telemetry initialized",
			observability.Field{Key: "endpoint", Value: telemetryCfg.OTLPEndpoint},
			observability.Field{Key: "service", Value: telemetryCfg.ServiceName})
	}
	return provider, nil
}

func shutdownTelemetry(provider *telemetry.Provider) {
	if err := provider.Shutdown(context.Background()); err != nil {
		observability.Log().Error("telemetry shutdown", observability.Field{Key: "error", Value: err.Error()})
	}
}

func printAnalytics(w io.Writer, variant string, stats backtest.Analytics) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "variant %s: %d ticks, %d with errors, %d orders\n", variant, stats.Ticks, stats.ErrorTicks, stats.TotalOrders)

	codes := make([]string, 0, len(stats.Errors))
	for code := range stats.Errors {
		codes = append(codes, string(code))
	}
	sort.Strings(codes)
	for _, code := range codes {
		fmt.Fprintf(tw, "  error\t%s\t%d\n", code, stats.Errors[errs.Code(code)])
	}

	symbols := make([]schema.Symbol, 0, len(stats.Products))
	for symbol := range stats.Products {
		symbols = append(symbols, symbol)
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })
	if len(symbols) > 0 {
		fmt.Fprintln(tw, "  product\torders\tbought\tsold\tnet\tavg buy\tavg sell")
	}
	for _, symbol := range symbols {
		p := stats.Products[symbol]
		fmt.Fprintf(tw, "  %s\t%d\t%d\t%d\t%d\t%s\t%s\n", symbol, p.Orders, p.BuyQuantity, p.SellQuantity, p.NetQuantity(),
			p.AveragePrice(schema.TradeSideBuy).StringFixed(2), p.AveragePrice(schema.TradeSideSell).StringFixed(2))
	}
	_ = tw.Flush()
}
