package engine

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/prosperity/config"
	"github.com/coachpo/prosperity/errs"
	"github.com/coachpo/prosperity/internal/observability"
	"github.com/coachpo/prosperity/internal/risk"
	"github.com/coachpo/prosperity/internal/schema"
	"github.com/coachpo/prosperity/internal/strategies"
)

func defaultEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	bindings, err := config.Default().Strategies()
	require.NoError(t, err)
	e, err := New(bindings, opts...)
	require.NoError(t, err)
	return e
}

func depth(bids, asks map[int]int) schema.OrderDepth {
	return schema.NewOrderDepth(bids, asks)
}

func fullState() schema.TradingState {
	return schema.TradingState{
		Timestamp: 100,
		OrderDepths: map[schema.Symbol]schema.OrderDepth{
			schema.Pearls:           depth(map[int]int{10001: 2, 9995: 20}, map[int]int{9998: -5, 9999: -3, 10005: -20}),
			schema.Bananas:          depth(map[int]int{4948: 3}, map[int]int{4952: -4}),
			schema.PinaColadas:      depth(map[int]int{15749: 10}, map[int]int{15751: -10}),
			schema.Coconuts:         depth(map[int]int{7999: 30}, map[int]int{8001: -30}),
			schema.DivingGear:       depth(map[int]int{99000: 5}, map[int]int{99002: -5}),
			schema.DolphinSightings: depth(map[int]int{3099: 1}, map[int]int{3101: -1}),
			schema.Berries:          depth(map[int]int{3900: 7}, map[int]int{3902: -12}),
			schema.Baguette:         depth(map[int]int{12599: 1}, map[int]int{12601: -1}),
			schema.Dip:              depth(map[int]int{7349: 1}, map[int]int{7351: -1}),
			schema.Ukulele:          depth(map[int]int{20999: 1}, map[int]int{21001: -1}),
			schema.PicnicBasket:     depth(map[int]int{73999: 4}, map[int]int{74001: -4}),
		},
		Position: map[schema.Symbol]int{schema.Pearls: 4},
	}
}

func TestSessionTickRunsEveryStrategy(t *testing.T) {
	session := defaultEngine(t).NewSession()

	orders, err := session.Tick(context.Background(), fullState())
	require.NoError(t, err)

	require.Equal(t, []schema.Order{
		schema.NewOrder(schema.Pearls, 9998, 5),
		schema.NewOrder(schema.Pearls, 9999, 3),
		schema.NewOrder(schema.Pearls, 10001, -2),
	}, orders[schema.Pearls])
	require.Empty(t, orders[schema.Bananas])
	require.Equal(t, []schema.Order{schema.NewOrder(schema.PinaColadas, 15749, -10)}, orders[schema.PinaColadas])
	require.Equal(t, []schema.Order{schema.NewOrder(schema.Coconuts, 8001, 20)}, orders[schema.Coconuts])
	require.Equal(t, []schema.Order{schema.NewOrder(schema.DivingGear, 99002, 1)}, orders[schema.DivingGear])
	require.Equal(t, []schema.Order{schema.NewOrder(schema.Berries, 3902, 12)}, orders[schema.Berries])
	require.Equal(t, []schema.Order{schema.NewOrder(schema.PicnicBasket, 74001, 2)}, orders[schema.PicnicBasket])

	keys := make([]schema.Symbol, 0, len(orders))
	for symbol := range orders {
		keys = append(keys, symbol)
	}
	require.Equal(t, []schema.Symbol{
		schema.Bananas, schema.Berries, schema.Coconuts, schema.DivingGear,
		schema.Pearls, schema.PicnicBasket, schema.PinaColadas,
	}, schema.SortSymbols(keys))
	require.Equal(t, int64(1), session.Ticks())
}

func TestSessionSkipsStrategiesWithMissingProducts(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	session := defaultEngine(t, WithMetrics(metrics)).NewSession()

	state := schema.TradingState{
		OrderDepths: map[schema.Symbol]schema.OrderDepth{
			schema.Pearls: depth(nil, map[int]int{9998: -5}),
		},
	}
	orders, err := session.Tick(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, schema.Orders{schema.Pearls: {schema.NewOrder(schema.Pearls, 9998, 5)}}, orders)

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.TicksCounter()))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.EvaluationsCounter("fair_value:PEARLS")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.SkippedCounter("relative_value:picnic")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.OrdersCounter(schema.Pearls, schema.TradeSideBuy)))
}

func TestSessionAggregatesStrategyErrors(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	logs := &entryLogger{}
	session := defaultEngine(t, WithMetrics(metrics), WithLogger(logs)).NewSession()

	state := fullState()
	state.OrderDepths[schema.Coconuts] = depth(nil, map[int]int{8001: -30})
	state.OrderDepths[schema.Berries] = depth(map[int]int{3900: 7}, nil)

	orders, err := session.Tick(context.Background(), state)
	require.Error(t, err)
	require.True(t, errs.HasCode(err, errs.CodeMissingBookSide))
	require.Contains(t, err.Error(), "relative_value:pina_coconut")
	require.Contains(t, err.Error(), "time_phased:BERRIES")

	require.Contains(t, orders, schema.Coconuts)
	require.Empty(t, orders[schema.Coconuts])
	require.Empty(t, orders[schema.PinaColadas])
	require.Empty(t, orders[schema.Berries])
	require.Len(t, orders[schema.Pearls], 3)
	require.Len(t, orders[schema.DivingGear], 1)

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ErrorCounter("time_phased:BERRIES", string(errs.CodeMissingBookSide))))

	require.Equal(t, []string{"error operation failed"}, logs.entries)
	require.Equal(t, []string{"COCONUTS:missing_book_side", "BERRIES:missing_book_side"}, logs.failures)
}

type entryLogger struct {
	entries  []string
	failures []string
}

func (l *entryLogger) Debug(msg string, _ ...observability.Field) {
	l.entries = append(l.entries, "debug "+msg)
}
func (l *entryLogger) Info(msg string, _ ...observability.Field) {
	l.entries = append(l.entries, "info "+msg)
}
func (l *entryLogger) Error(msg string, fields ...observability.Field) {
	l.entries = append(l.entries, "error "+msg)
	for _, f := range fields {
		if f.Key == "failures" {
			l.failures = f.Value.([]string)
		}
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	e := defaultEngine(t)
	first := e.NewSession()
	second := e.NewSession()
	require.NotEqual(t, first.ID(), second.ID())

	for i := 0; i < 3; i++ {
		_, err := first.Tick(context.Background(), fullState())
		require.NoError(t, err)
	}
	_, err := second.Tick(context.Background(), fullState())
	require.NoError(t, err)

	st, ok := first.State("time_phased:BERRIES")
	require.True(t, ok)
	require.Equal(t, 3, st.(*strategies.TimePhasedState).Tick)

	st, ok = second.State("time_phased:BERRIES")
	require.True(t, ok)
	require.Equal(t, 1, st.(*strategies.TimePhasedState).Tick)

	ma, ok := first.State("moving_average:BANANAS")
	require.True(t, ok)
	require.Len(t, ma.(*strategies.MovingAverageState).History, 4)

	_, ok = first.State("unknown")
	require.False(t, ok)
}

func TestSessionTickIsSerialised(t *testing.T) {
	session := defaultEngine(t).NewSession()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = session.Tick(context.Background(), fullState())
		}()
	}
	wg.Wait()

	st, _ := session.State("time_phased:BERRIES")
	require.Equal(t, 8, st.(*strategies.TimePhasedState).Tick)
	require.Equal(t, int64(8), session.Ticks())
}

func TestSessionWritesTraceRecord(t *testing.T) {
	var buf bytes.Buffer
	session := defaultEngine(t).NewSession(WithTraceWriter(&buf))

	_, err := session.Tick(context.Background(), fullState())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var record struct {
		Logs   string          `json:"logs"`
		Orders schema.Orders   `json:"orders"`
		State  json.RawMessage `json:"state"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	require.True(t, strings.HasPrefix(record.Logs, "position {\"PEARLS\":4}\n"))
	require.Contains(t, record.Logs, "BUY 5x PEARLS at 9998\n")
	require.Contains(t, record.Logs, "SELL 10x PINA_COLADAS at 15749\n")
	require.Contains(t, record.Logs, "\norders {")
	require.Len(t, record.Orders[schema.Pearls], 3)
	require.Contains(t, string(record.State), `"timestamp":100`)
	require.Empty(t, session.Trace().Logs())
}

func TestSessionRespectsContext(t *testing.T) {
	session := defaultEngine(t).NewSession()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	orders, err := session.Tick(ctx, fullState())
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, orders)
	require.Zero(t, session.Ticks())
}

func TestSessionEnforcesPositionLimitsWhenEnabled(t *testing.T) {
	cfg := config.Default()
	e := defaultEngine(t, WithRiskLimits(risk.Limits{
		EnforcePositionLimits: true,
		MaxPosition:           cfg.MaxPositions(),
	}))

	state := fullState()
	state.Position = map[schema.Symbol]int{schema.Pearls: 18, schema.PinaColadas: -295}
	orders, err := e.NewSession().Tick(context.Background(), state)
	require.True(t, errs.HasCode(err, errs.CodePositionLimit))
	require.Equal(t, []schema.Order{
		schema.NewOrder(schema.Pearls, 9998, 2),
		schema.NewOrder(schema.Pearls, 10001, -2),
	}, orders[schema.Pearls])
	require.Equal(t, []schema.Order{schema.NewOrder(schema.PinaColadas, 15749, -5)}, orders[schema.PinaColadas])
}

func TestNewRejectsInvalidBindings(t *testing.T) {
	_, err := New([]strategies.Strategy{nil})
	require.True(t, errs.HasCode(err, errs.CodeInvalid))

	fv := &strategies.FairValue{Product: schema.Pearls, Price: 10000}
	_, err = New([]strategies.Strategy{fv, fv})
	require.True(t, errs.HasCode(err, errs.CodeInvalid))

	_, err = New([]strategies.Strategy{&strategies.RelativeValue{Group: "empty", Aggregation: strategies.AggregateMean}})
	require.True(t, errs.HasCode(err, errs.CodeInvalid))

	e, err := New(nil)
	require.NoError(t, err)
	orders, err := e.NewSession().Tick(context.Background(), fullState())
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestSessionEmptyBooksEmitNoOrders(t *testing.T) {
	state := fullState()
	for symbol := range state.OrderDepths {
		state.OrderDepths[symbol] = depth(nil, nil)
	}
	session := defaultEngine(t).NewSession()

	for i := 0; i < 3; i++ {
		orders, err := session.Tick(context.Background(), state)
		require.True(t, errs.HasCode(err, errs.CodeMissingBookSide))
		require.Len(t, orders, 7)
		require.Zero(t, orders.Count())
	}
}
