package strategies

import (
	"github.com/coachpo/prosperity/internal/schema"
)

// TimePhased accumulates during the first two thirds of the session and unwinds afterwards.
type TimePhased struct {
	Product   schema.Symbol
	TotalTime int
}

// TimePhasedState counts invocations since the session started.
type TimePhasedState struct {
	Tick int
}

// Boundary is the tick at which the strategy switches from buying to selling.
func (s *TimePhased) Boundary() int { return 2 * s.TotalTime / 3 }

// Name implements Strategy.
func (s *TimePhased) Name() string { return "time_phased:" + string(s.Product) }

// Requires implements Strategy.
func (s *TimePhased) Requires() []schema.Symbol { return []schema.Symbol{s.Product} }

// Tradable implements Strategy.
func (s *TimePhased) Tradable() []schema.Symbol { return []schema.Symbol{s.Product} }

// NewState implements Strategy.
func (s *TimePhased) NewState() State { return &TimePhasedState{} }

// Evaluate implements Strategy.
func (s *TimePhased) Evaluate(in Input, st State) (schema.Orders, error) {
	state, ok := st.(*TimePhasedState)
	if !ok || state == nil {
		return nil, stateMismatch(s.Name(), st)
	}
	out := newOrders(s.Product)

	state.Tick++
	boundary := s.Boundary()
	switch {
	case state.Tick < boundary:
		return out, buyBestAsk(in, out, s.Product, 0)
	case state.Tick > boundary:
		return out, sellBestBid(in, out, s.Product, 0)
	default:
		return out, nil
	}
}
