// Command prosperity runs the strategy engine against the exchange's snapshot stream or recorded data.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coachpo/prosperity/config"
	"github.com/coachpo/prosperity/internal/engine"
	"github.com/coachpo/prosperity/internal/observability"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "prosperity",
		Short: "Per-tick trading strategies for the Prosperity exchange",
		Long: `prosperity evaluates a fixed set of trading strategies against order book snapshots.

Snapshots are read one JSON document per line, either from the exchange (trade) or from
recorded files (replay, sweep). Settings come from defaults, PROSPERITY_* environment
variables and an optional YAML file, in that order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML settings file (defaults to PROSPERITY_CONFIG)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(tradeCmd(opts))
	root.AddCommand(replayCmd(opts))
	root.AddCommand(sweepCmd(opts))
	root.AddCommand(configCmd(opts))
	return root
}

// settings resolves the effective configuration and installs the process logger on the
// command's error stream.
func (o *rootOptions) settings(cmd *cobra.Command) (config.Settings, error) {
	ctx := cmd.Context()
	cfg, err := config.Load(ctx, config.FromEnv(), o.configPath)
	if err != nil {
		return config.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	if o.logLevel != "" {
		cfg = config.Apply(cfg, config.WithLogLevel(o.logLevel))
	}
	if err := cfg.Validate(ctx); err != nil {
		return config.Settings{}, err
	}
	observability.SetLogger(observability.NewZerologLogger(cmd.ErrOrStderr(), cfg.Log.Level))
	return cfg, nil
}

func newEngine(cfg config.Settings, opts ...engine.Option) (*engine.Engine, error) {
	bindings, err := cfg.Strategies()
	if err != nil {
		return nil, err
	}
	opts = append([]engine.Option{engine.WithRiskLimits(cfg.RiskLimits())}, opts...)
	eng, err := engine.New(bindings, opts...)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	return eng, nil
}

// openTraceWriter returns fallback when path is empty, stderr for "-", otherwise a newly
// created file.
func openTraceWriter(path string, fallback, stderr io.Writer) (io.Writer, func() error, error) {
	switch path {
	case "":
		return fallback, func() error { return nil }, nil
	case "-":
		return stderr, func() error { return nil }, nil
	}
	// #nosec G304 -- trace path is operator provided via CLI flags.
	file, err := os.Create(filepath.Clean(path))
	if err != nil {
		return nil, nil, fmt.Errorf("create trace file: %w", err)
	}
	return file, file.Close, nil
}

func configCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective settings as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.settings(cmd)
			if err != nil {
				return err
			}
			return config.Encode(cmd.OutOrStdout(), cfg)
		},
	}
}
