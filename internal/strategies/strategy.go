// Package strategies implements the per-product decision rules evaluated once per tick.
package strategies

import (
	"fmt"

	"github.com/coachpo/prosperity/errs"
	"github.com/coachpo/prosperity/internal/market"
	"github.com/coachpo/prosperity/internal/observability"
	"github.com/coachpo/prosperity/internal/schema"
)

const component = "strategies"

// Input carries everything a strategy may read during one tick.
type Input struct {
	State schema.TradingState
	Trace *observability.Trace
}

// State is the opaque per-session state a strategy mutates across ticks. Stateless strategies use nil.
type State any

// Strategy turns one snapshot into orders.
//
// Requires lists every product that must be present in the snapshot for the strategy to run.
// Tradable lists the products the strategy may emit orders for; each one appears in the result of
// an evaluation, with an empty slice when nothing is traded.
type Strategy interface {
	Name() string
	Requires() []schema.Symbol
	Tradable() []schema.Symbol
	NewState() State
	Evaluate(in Input, state State) (schema.Orders, error)
}

// Covered reports whether every required product has an order depth in the snapshot.
func Covered(s Strategy, state schema.TradingState) bool {
	for _, symbol := range s.Requires() {
		if _, ok := state.Depth(symbol); !ok {
			return false
		}
	}
	return true
}

func newOrders(symbols ...schema.Symbol) schema.Orders {
	out := make(schema.Orders, len(symbols))
	for _, symbol := range symbols {
		out.Add(symbol)
	}
	return out
}

func place(in Input, out schema.Orders, order schema.Order) {
	if order.Quantity == 0 {
		return
	}
	in.Trace.Print(order.String())
	out.Add(order.Symbol, order)
}

// buyBestAsk buys quantity at the lowest ask. A quantity of 0 buys the full level.
func buyBestAsk(in Input, out schema.Orders, symbol schema.Symbol, quantity int) error {
	depth, _ := in.State.Depth(symbol)
	ask, err := market.BestAsk(depth.SellOrders)
	if err != nil {
		return errs.Tag(err, string(symbol))
	}
	if quantity == 0 {
		quantity = market.Size(depth.SellOrders[ask])
	}
	place(in, out, schema.NewOrder(symbol, ask, quantity))
	return nil
}

// sellBestBid sells quantity at the highest bid. A quantity of 0 sells into the full level.
func sellBestBid(in Input, out schema.Orders, symbol schema.Symbol, quantity int) error {
	depth, _ := in.State.Depth(symbol)
	bid, err := market.BestBid(depth.BuyOrders)
	if err != nil {
		return errs.Tag(err, string(symbol))
	}
	if quantity == 0 {
		quantity = market.Size(depth.BuyOrders[bid])
	}
	place(in, out, schema.NewOrder(symbol, bid, -quantity))
	return nil
}

func stateMismatch(name string, got State) error {
	return errs.New(component, errs.CodeInvalid,
		errs.WithMessage(fmt.Sprintf("unexpected state %T", got)),
		errs.WithField("strategy", name))
}
