package backtest

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/coachpo/prosperity/config"
	"github.com/coachpo/prosperity/errs"
	"github.com/coachpo/prosperity/internal/engine"
	"github.com/coachpo/prosperity/internal/schema"
	"github.com/coachpo/prosperity/internal/strategies"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const pricesCSV = `day;timestamp;product;bid_price_1;bid_volume_1;bid_price_2;bid_volume_2;ask_price_1;ask_volume_1;ask_price_2;ask_volume_2;mid_price;profit_and_loss
-1;0;PEARLS;10001;2;9995;20;9998;5;10005;20;9999.5;0.0
-1;0;BANANAS;4948;3;;;4952;4;;;4950.0;0.0
-1;100;PEARLS;9996;1;;;10004;1;;;10000.0;0.0
-1;100;BANANAS;4949.0;3;;;;;;;4949.0;0.0
`

const tradesCSV = `timestamp;buyer;seller;symbol;currency;price;quantity
100;;;BANANAS;SEASHELLS;4950.0;2
100;;;BANANAS;SEASHELLS;4953;1
`

func TestCSVFeederGroupsRowsByTimestamp(t *testing.T) {
	feeder, err := NewCSVFeeder(strings.NewReader(pricesCSV), strings.NewReader(tradesCSV))
	require.NoError(t, err)

	first, err := feeder.Next()
	require.NoError(t, err)
	require.Equal(t, int64(0), first.Timestamp)
	require.Equal(t, []schema.Symbol{schema.Bananas, schema.Pearls}, first.Products())
	pearls, _ := first.Depth(schema.Pearls)
	require.Equal(t, map[int]int{10001: 2, 9995: 20}, pearls.BuyOrders)
	require.Equal(t, map[int]int{9998: -5, 10005: -20}, pearls.SellOrders)
	require.Equal(t, "SEASHELLS", first.Listings[schema.Pearls].Denomination)
	require.Empty(t, first.Trades(schema.Bananas))

	second, err := feeder.Next()
	require.NoError(t, err)
	require.Equal(t, int64(100), second.Timestamp)
	bananas, _ := second.Depth(schema.Bananas)
	require.Equal(t, map[int]int{4949: 3}, bananas.BuyOrders)
	require.Empty(t, bananas.SellOrders)
	require.Len(t, second.Trades(schema.Bananas), 2)
	require.Equal(t, 4950, second.Trades(schema.Bananas)[0].Price)

	_, err = feeder.Next()
	require.ErrorIs(t, err, io.EOF)
	_, err = feeder.Next()
	require.ErrorIs(t, err, io.EOF)
}

const twoDayPricesCSV = `day;timestamp;product;bid_price_1;bid_volume_1;ask_price_1;ask_volume_1
-1;0;BANANAS;4948;3;4952;4
0;0;BANANAS;4950;1;4954;2
`

func TestCSVFeederMatchesTradesByDay(t *testing.T) {
	undated := "timestamp;buyer;seller;symbol;currency;price;quantity\n0;;;BANANAS;SEASHELLS;4950;2\n"
	feeder, err := NewCSVFeeder(strings.NewReader(twoDayPricesCSV), strings.NewReader(undated))
	require.NoError(t, err)
	first, err := feeder.Next()
	require.NoError(t, err)
	second, err := feeder.Next()
	require.NoError(t, err)
	require.Len(t, first.Trades(schema.Bananas), 1)
	require.Empty(t, second.Trades(schema.Bananas))

	dated := "day;timestamp;buyer;seller;symbol;currency;price;quantity\n0;0;;;BANANAS;SEASHELLS;4951;5\n"
	feeder, err = NewCSVFeeder(strings.NewReader(twoDayPricesCSV), strings.NewReader(dated))
	require.NoError(t, err)
	first, err = feeder.Next()
	require.NoError(t, err)
	second, err = feeder.Next()
	require.NoError(t, err)
	require.Empty(t, first.Trades(schema.Bananas))
	require.Equal(t, []schema.Trade{{Symbol: schema.Bananas, Price: 4951, Quantity: 5, Timestamp: 0}}, second.Trades(schema.Bananas))
}

func TestCSVFeederRejectsBadInput(t *testing.T) {
	_, err := NewCSVFeeder(strings.NewReader("day;price\n"), nil)
	require.Error(t, err)

	feeder, err := NewCSVFeeder(strings.NewReader("day;timestamp;product;bid_price_1;bid_volume_1\n-1;0;PEARLS;abc;1\n"), nil)
	require.NoError(t, err)
	_, err = feeder.Next()
	require.Error(t, err)

	feeder, err = NewCSVFeeder(strings.NewReader("day;timestamp;product\n-1;soon;PEARLS\n"), nil)
	require.NoError(t, err)
	_, err = feeder.Next()
	require.Error(t, err)
}

const snapshotsJSONL = `{"timestamp":0,"order_depths":{"PEARLS":{"buy_orders":{"10001":2},"sell_orders":{"9998":-5}}}}

{"logs":"","orders":{},"state":{"timestamp":100,"order_depths":{"PEARLS":{"buy_orders":{"9999":1},"sell_orders":{"10002":-1}}}}}
`

func TestJSONLFeederReadsSnapshotsAndTraceRecords(t *testing.T) {
	feeder := NewJSONLFeeder(strings.NewReader(snapshotsJSONL))

	first, err := feeder.Next()
	require.NoError(t, err)
	require.Equal(t, int64(0), first.Timestamp)

	second, err := feeder.Next()
	require.NoError(t, err)
	require.Equal(t, int64(100), second.Timestamp)
	depth, ok := second.Depth(schema.Pearls)
	require.True(t, ok)
	require.Equal(t, -1, depth.SellOrders[10002])

	_, err = feeder.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestJSONLFeederSkipsInterleavedLogLines(t *testing.T) {
	captured := strings.Join([]string{
		`{"level":"info","session":"4b1c","strategies":7,"time":"2026-10-18T09:00:00Z","message":"session started"}`,
		`{"logs":"","orders":{},"state":{"timestamp":0,"order_depths":{"PEARLS":{"buy_orders":{"10001":2},"sell_orders":{}}}}}`,
		`{"level":"error","operation":"tick 100","failures":["BERRIES:missing_book_side"],"message":"tick errors"}`,
		`{"logs":"","orders":{},"state":{"timestamp":100,"order_depths":{"PEARLS":{"buy_orders":{},"sell_orders":{"9998":-5}}}}}`,
	}, "\n")
	feeder := NewJSONLFeeder(strings.NewReader(captured))

	var timestamps []int64
	for {
		state, err := feeder.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		timestamps = append(timestamps, state.Timestamp)
	}
	require.Equal(t, []int64{0, 100}, timestamps)
	require.Equal(t, 2, feeder.Skipped())
}

func TestRunnerIgnoresLogLinesInTicks(t *testing.T) {
	captured := `{"level":"info","message":"session started"}
{"timestamp":0,"order_depths":{"PEARLS":{"buy_orders":{"10001":2},"sell_orders":{}}}}
{"level":"info","message":"replay finished"}
`
	stats, err := NewRunner(NewJSONLFeeder(strings.NewReader(captured)), pearlsOnly(t).NewSession(), WithMaxTicks(1)).
		Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Ticks)
	require.Equal(t, 2, stats.Products[schema.Pearls].SellQuantity)
}

func TestJSONLFeederReportsLine(t *testing.T) {
	feeder := NewJSONLFeeder(strings.NewReader("{\"timestamp\":0,\"order_depths\":{}}\n{oops\n"))
	_, err := feeder.Next()
	require.NoError(t, err)
	_, err = feeder.Next()
	require.ErrorContains(t, err, "line 2")
}

func TestOpenFileAndChain(t *testing.T) {
	dir := t.TempDir()
	jsonl := filepath.Join(dir, "day.jsonl")
	prices := filepath.Join(dir, "prices.csv")
	trades := filepath.Join(dir, "trades.csv")
	require.NoError(t, os.WriteFile(jsonl, []byte(snapshotsJSONL), 0o600))
	require.NoError(t, os.WriteFile(prices, []byte(pricesCSV), 0o600))
	require.NoError(t, os.WriteFile(trades, []byte(tradesCSV), 0o600))

	a, err := OpenFile(jsonl, FormatJSONL)
	require.NoError(t, err)
	defer a.Close()
	b, err := OpenFile(prices, FormatCSV)
	require.NoError(t, err)
	defer b.Close()

	feeder := Chain(a, b)
	count := 0
	for {
		_, err := feeder.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		count++
	}
	require.Equal(t, 4, count)

	pair, err := OpenCSV(prices, trades)
	require.NoError(t, err)
	_, err = pair.Next()
	require.NoError(t, err)
	withTrades, err := pair.Next()
	require.NoError(t, err)
	require.Len(t, withTrades.Trades(schema.Bananas), 2)
	require.NoError(t, pair.Close())

	format, err := ParseFormat(" CSV ")
	require.NoError(t, err)
	require.Equal(t, FormatCSV, format)
	_, err = ParseFormat("xml")
	require.Error(t, err)

	_, err = OpenFile(jsonl, "xml")
	require.Error(t, err)
	_, err = OpenFile(filepath.Join(dir, "missing.jsonl"), FormatJSONL)
	require.Error(t, err)
}

func pearlsOnly(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New([]strategies.Strategy{
		&strategies.FairValue{Product: schema.Pearls, Price: 10000},
		&strategies.TimePhased{Product: schema.Berries, TotalTime: 3},
	})
	require.NoError(t, err)
	return e
}

func TestRunnerCollectsAnalytics(t *testing.T) {
	feeder := NewSliceFeeder([]schema.TradingState{
		{Timestamp: 0, OrderDepths: map[schema.Symbol]schema.OrderDepth{
			schema.Pearls: schema.NewOrderDepth(map[int]int{10001: 2}, map[int]int{9998: -5, 9999: -3}),
		}},
		{Timestamp: 100, OrderDepths: map[schema.Symbol]schema.OrderDepth{
			schema.Pearls:  schema.NewOrderDepth(map[int]int{10002: 4}, nil),
			schema.Berries: schema.NewOrderDepth(map[int]int{3900: 1}, nil),
		}},
	})

	var observed int
	runner := NewRunner(feeder, pearlsOnly(t).NewSession(), WithObserver(func(_ schema.TradingState, _ schema.Orders, _ error) {
		observed++
	}))
	stats, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, stats.Ticks)
	require.Equal(t, 2, observed)
	require.Equal(t, 1, stats.ErrorTicks)
	require.Equal(t, 1, stats.Errors[errs.CodeMissingBookSide])
	require.Equal(t, 4, stats.TotalOrders)

	pearls := stats.Products[schema.Pearls]
	require.Equal(t, 8, pearls.BuyQuantity)
	require.Equal(t, 6, pearls.SellQuantity)
	require.Equal(t, 2, pearls.NetQuantity())
	require.True(t, pearls.BuyNotional.Equal(decimal.NewFromInt(5*9998+3*9999)))
	require.True(t, pearls.AveragePrice(schema.TradeSideSell).Equal(decimal.RequireFromString("10001.6666666666666667")),
		pearls.AveragePrice(schema.TradeSideSell).String())
	require.Equal(t, stats.Ticks, runner.Analytics().Ticks)
}

func TestRunnerStopsOnCancelAndMaxTicks(t *testing.T) {
	states := make([]schema.TradingState, 5)
	for i := range states {
		states[i] = schema.TradingState{Timestamp: int64(i * 100)}
	}

	stats, err := NewRunner(NewSliceFeeder(states), pearlsOnly(t).NewSession(), WithMaxTicks(3)).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, stats.Ticks)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewRunner(NewSliceFeeder(states), pearlsOnly(t).NewSession()).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunnerStopsOnFeederError(t *testing.T) {
	boom := errors.New("disk gone")
	feeder := FeederFunc(func() (schema.TradingState, error) { return schema.TradingState{}, boom })
	_, err := NewRunner(feeder, pearlsOnly(t).NewSession()).Run(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestSweepIsolatesVariants(t *testing.T) {
	states := []schema.TradingState{
		{Timestamp: 0, OrderDepths: map[schema.Symbol]schema.OrderDepth{
			schema.Berries: schema.NewOrderDepth(map[int]int{3900: 7}, map[int]int{3902: -12}),
		}},
		{Timestamp: 100, OrderDepths: map[schema.Symbol]schema.OrderDepth{
			schema.Berries: schema.NewOrderDepth(map[int]int{3900: 7}, map[int]int{3902: -12}),
		}},
	}
	open := func() (DataFeeder, error) { return NewSliceFeeder(states), nil }

	short := withSettings(func(s *config.Settings) { s.TimePhased[0].TotalTime = 3 })
	broken := withSettings(func(s *config.Settings) { s.FairValue[0].Price = 0 })

	results, err := Sweep(context.Background(), []Variant{
		{Name: "baseline", Settings: config.Default()},
		{Name: "short", Settings: short},
		{Name: "broken", Settings: broken},
	}, open, SweepOptions{MaxConcurrency: 2})
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.Equal(t, "baseline", results[0].Variant)
	require.NoError(t, results[0].Err)
	require.Equal(t, 24, results[0].Analytics.Products[schema.Berries].BuyQuantity)

	// With three ticks the boundary is 2: buy on the first tick, nothing on the second.
	require.NoError(t, results[1].Err)
	require.Equal(t, 12, results[1].Analytics.Products[schema.Berries].BuyQuantity)
	require.Zero(t, results[1].Analytics.Products[schema.Berries].SellQuantity)
	require.NotEqual(t, results[0].SessionID, results[1].SessionID)

	require.True(t, errs.HasCode(results[2].Err, errs.CodeInvalid))
}

func TestSweepRequiresFactory(t *testing.T) {
	_, err := Sweep(context.Background(), nil, nil, SweepOptions{})
	require.True(t, errs.HasCode(err, errs.CodeInvalid))
}

func withSettings(opt config.Option) config.Settings {
	return config.Apply(config.Default(), opt)
}
