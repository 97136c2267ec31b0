package strategies

import (
	"github.com/coachpo/prosperity/internal/market"
	"github.com/coachpo/prosperity/internal/schema"
)

// FairValue takes every ask below a fixed fair price and hits every bid above it.
type FairValue struct {
	Product schema.Symbol
	Price   int
}

// Name implements Strategy.
func (s *FairValue) Name() string { return "fair_value:" + string(s.Product) }

// Requires implements Strategy.
func (s *FairValue) Requires() []schema.Symbol { return []schema.Symbol{s.Product} }

// Tradable implements Strategy.
func (s *FairValue) Tradable() []schema.Symbol { return []schema.Symbol{s.Product} }

// NewState implements Strategy.
func (s *FairValue) NewState() State { return nil }

// Evaluate implements Strategy.
func (s *FairValue) Evaluate(in Input, _ State) (schema.Orders, error) {
	out := newOrders(s.Product)
	depth, _ := in.State.Depth(s.Product)

	for _, ask := range market.AsksAscending(depth.SellOrders) {
		if ask >= s.Price {
			break
		}
		place(in, out, schema.NewOrder(s.Product, ask, market.Size(depth.SellOrders[ask])))
	}
	for _, bid := range market.BidsDescending(depth.BuyOrders) {
		if bid <= s.Price {
			break
		}
		place(in, out, schema.NewOrder(s.Product, bid, -market.Size(depth.BuyOrders[bid])))
	}
	return out, nil
}
