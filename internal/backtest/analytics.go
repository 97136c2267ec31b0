// Package backtest replays recorded snapshots through engine sessions and summarises the orders.
package backtest

import (
	"github.com/shopspring/decimal"

	"github.com/coachpo/prosperity/errs"
	"github.com/coachpo/prosperity/internal/schema"
)

// ProductStats summarises the orders emitted for one product. Orders are requests only, so
// notional is what the session asked to trade, not what filled.
type ProductStats struct {
	Orders       int
	BuyQuantity  int
	SellQuantity int
	BuyNotional  decimal.Decimal
	SellNotional decimal.Decimal
}

// NetQuantity is the signed quantity requested across all orders.
func (p ProductStats) NetQuantity() int {
	return p.BuyQuantity - p.SellQuantity
}

// AveragePrice returns the quantity weighted price of one side, or zero when nothing was requested.
func (p ProductStats) AveragePrice(side schema.TradeSide) decimal.Decimal {
	qty, notional := p.BuyQuantity, p.BuyNotional
	if side == schema.TradeSideSell {
		qty, notional = p.SellQuantity, p.SellNotional
	}
	if qty == 0 {
		return decimal.Zero
	}
	return notional.Div(decimal.NewFromInt(int64(qty)))
}

// Analytics captures cumulative statistics for a replay.
type Analytics struct {
	Ticks       int
	ErrorTicks  int
	TotalOrders int
	Errors      map[errs.Code]int
	Products    map[schema.Symbol]ProductStats
}

func newAnalytics() *Analytics {
	return &Analytics{
		Errors:   make(map[errs.Code]int),
		Products: make(map[schema.Symbol]ProductStats),
	}
}

func (a *Analytics) clone() Analytics {
	snapshot := *a
	snapshot.Errors = make(map[errs.Code]int, len(a.Errors))
	for k, v := range a.Errors {
		snapshot.Errors[k] = v
	}
	snapshot.Products = make(map[schema.Symbol]ProductStats, len(a.Products))
	for k, v := range a.Products {
		snapshot.Products[k] = v
	}
	return snapshot
}

func (a *Analytics) recordTick(orders schema.Orders, err error) {
	a.Ticks++
	if err != nil {
		a.ErrorTicks++
		for _, code := range codesOf(err) {
			a.Errors[code]++
		}
	}
	for symbol, list := range orders {
		stats, ok := a.Products[symbol]
		if !ok {
			stats = ProductStats{BuyNotional: decimal.Zero, SellNotional: decimal.Zero}
		}
		for _, order := range list {
			notional := decimal.NewFromInt(int64(order.Price)).Mul(decimal.NewFromInt(int64(order.Size())))
			switch order.Side() {
			case schema.TradeSideBuy:
				stats.BuyQuantity += order.Size()
				stats.BuyNotional = stats.BuyNotional.Add(notional)
			case schema.TradeSideSell:
				stats.SellQuantity += order.Size()
				stats.SellNotional = stats.SellNotional.Add(notional)
			}
			stats.Orders++
			a.TotalOrders++
		}
		a.Products[symbol] = stats
	}
}

// codesOf collects the code of every *errs.E in err's tree, or "unknown" when there is none.
func codesOf(err error) []errs.Code {
	flat := errs.Flatten(err)
	if len(flat) == 0 {
		return []errs.Code{"unknown"}
	}
	out := make([]errs.Code, 0, len(flat))
	for _, e := range flat {
		out = append(out, e.Code)
	}
	return out
}
