package strategies

import (
	"github.com/shopspring/decimal"

	"github.com/coachpo/prosperity/errs"
	"github.com/coachpo/prosperity/internal/market"
	"github.com/coachpo/prosperity/internal/schema"
)

// MovingAverage compares a long and a short simple moving average of traded prices and leans
// one unit against the long trend each tick.
type MovingAverage struct {
	Product     schema.Symbol
	LongWindow  int
	ShortWindow int
	UnitSize    int
	Seed        decimal.Decimal
}

// MovingAverageState holds the reference price history. History only grows.
type MovingAverageState struct {
	History  []decimal.Decimal
	LongSMA  decimal.Decimal
	ShortSMA decimal.Decimal
}

// Name implements Strategy.
func (s *MovingAverage) Name() string { return "moving_average:" + string(s.Product) }

// Requires implements Strategy.
func (s *MovingAverage) Requires() []schema.Symbol { return []schema.Symbol{s.Product} }

// Tradable implements Strategy.
func (s *MovingAverage) Tradable() []schema.Symbol { return []schema.Symbol{s.Product} }

// NewState implements Strategy.
func (s *MovingAverage) NewState() State {
	return &MovingAverageState{History: []decimal.Decimal{s.Seed}}
}

// Evaluate implements Strategy.
func (s *MovingAverage) Evaluate(in Input, st State) (schema.Orders, error) {
	state, ok := st.(*MovingAverageState)
	if !ok || state == nil {
		return nil, stateMismatch(s.Name(), st)
	}
	out := newOrders(s.Product)

	price, err := market.VolumeWeightedTradePrice(in.State.Trades(s.Product))
	switch {
	case err == nil:
		in.Trace.Printf("%s market price: %s", s.Product, price.StringFixed(2))
	case errs.HasCode(err, errs.CodeDegenerateTradeWindow):
		price = s.Seed
		if n := len(state.History); n > 0 {
			price = state.History[n-1]
		}
	default:
		return out, errs.Tag(err, string(s.Product))
	}
	state.History = append(state.History, price)

	if len(state.History) <= s.LongWindow {
		return out, nil
	}
	state.LongSMA = sma(state.History, s.LongWindow)
	state.ShortSMA = sma(state.History, s.ShortWindow)

	if state.LongSMA.GreaterThan(state.ShortSMA) {
		return out, sellBestBid(in, out, s.Product, s.UnitSize)
	}
	return out, buyBestAsk(in, out, s.Product, s.UnitSize)
}

// sma averages the last window entries of history.
func sma(history []decimal.Decimal, window int) decimal.Decimal {
	if window <= 0 || len(history) == 0 {
		return decimal.Zero
	}
	if window > len(history) {
		window = len(history)
	}
	return decimal.Sum(decimal.Zero, history[len(history)-window:]...).Div(decimal.NewFromInt(int64(window)))
}
