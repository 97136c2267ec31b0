package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/coachpo/prosperity/internal/engine"
	"github.com/coachpo/prosperity/internal/observability"
	"github.com/coachpo/prosperity/internal/schema"
)

const (
	defaultTracePath         = "prosperity-trace.jsonl"
	maxStateBytes            = 16 << 20
	metricsReadHeaderTimeout = 5 * time.Second
	metricsShutdownTimeout   = 5 * time.Second
)

func tradeCmd(root *rootOptions) *cobra.Command {
	var (
		tracePath   string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Answer one TradingState per stdin line with one orders line on stdout",
		Long: `trade runs a single session for the lifetime of the process. Each non-blank stdin line is a
TradingState JSON document; the matching stdout line maps every traded product to its orders.
Per-tick trace records go to the --trace file and structured logs go to stderr, so a captured
trace file holds nothing but records. Use --trace - to send records to stderr as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := root.settings(cmd)
			if err != nil {
				return err
			}

			registry := prometheus.NewRegistry()
			registry.MustRegister(collectors.NewGoCollector())
			metrics := engine.NewMetrics(registry)
			if metricsAddr != "" {
				stop := serveMetrics(metricsAddr, registry)
				defer stop()
			}

			eng, err := newEngine(cfg, engine.WithMetrics(metrics))
			if err != nil {
				return err
			}
			traceOut, closeTrace, err := openTraceWriter(tracePath, io.Discard, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = closeTrace() }()

			session := eng.NewSession(engine.WithTraceWriter(traceOut))
			observability.Log().Info("session started",
				observability.Field{Key: "session", Value: session.ID()},
				observability.Field{Key: "strategies", Value: len(eng.Strategies())})
			return serve(ctx, session, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&tracePath, "trace", defaultTracePath, "Trace record file (- for stderr, empty to discard)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

// serve evaluates every snapshot read from in and writes the orders to out, one line each.
func serve(ctx context.Context, session *engine.Session, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64<<10), maxStateBytes)
	writer := bufio.NewWriter(out)

	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		state, err := schema.DecodeTradingState(data)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}

		// Strategy errors are logged by the session; the partial orders still go out.
		orders, err := session.Tick(ctx, state)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}

		encoded, err := schema.EncodeOrders(orders)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if _, err := writer.Write(append(encoded, '\n')); err != nil {
			return fmt.Errorf("write orders: %w", err)
		}
		if err := writer.Flush(); err != nil {
			return fmt.Errorf("write orders: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read snapshots: %w", err)
	}
	return nil
}

// serveMetrics exposes the registry over HTTP until the returned stop function is called.
func serveMetrics(addr string, registry *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	var wg conc.WaitGroup
	wg.Go(func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			observability.Log().Error("metrics server", observability.Field{Key: "error", Value: err.Error()})
		}
	})
	observability.Log().Info("metrics listening", observability.Field{Key: "addr", Value: addr})

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			observability.Log().Error("metrics shutdown", observability.Field{Key: "error", Value: err.Error()})
		}
		wg.Wait()
	}
}
