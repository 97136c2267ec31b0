// Package market provides pure accessors over a single product's order book and trades.
package market

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/coachpo/prosperity/errs"
	"github.com/coachpo/prosperity/internal/schema"
)

const component = "market"

var two = decimal.NewFromInt(2)

// BestBid returns the highest bid price.
func BestBid(bids map[int]int) (int, error) {
	if len(bids) == 0 {
		return 0, errs.New(component, errs.CodeMissingBookSide, errs.WithMessage("bid side empty"), errs.WithField("side", "bid"))
	}
	first := true
	best := 0
	for price := range bids {
		if first || price > best {
			best = price
			first = false
		}
	}
	return best, nil
}

// BestAsk returns the lowest ask price.
func BestAsk(asks map[int]int) (int, error) {
	if len(asks) == 0 {
		return 0, errs.New(component, errs.CodeMissingBookSide, errs.WithMessage("ask side empty"), errs.WithField("side", "ask"))
	}
	first := true
	best := 0
	for price := range asks {
		if first || price < best {
			best = price
			first = false
		}
	}
	return best, nil
}

// MidPrice returns the average of the best bid and best ask.
func MidPrice(bids, asks map[int]int) (decimal.Decimal, error) {
	bid, err := BestBid(bids)
	if err != nil {
		return decimal.Zero, err
	}
	ask, err := BestAsk(asks)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(int64(bid) + int64(ask)).Div(two), nil
}

// DepthMidPrice is MidPrice over both sides of an order depth, tagging errors with the product.
func DepthMidPrice(symbol schema.Symbol, depth schema.OrderDepth) (decimal.Decimal, error) {
	mid, err := MidPrice(depth.BuyOrders, depth.SellOrders)
	if err != nil {
		return decimal.Zero, errs.Tag(err, string(symbol))
	}
	return mid, nil
}

// VolumeWeightedTradePrice returns Σ(price·quantity) / Σ(quantity) over the trades.
func VolumeWeightedTradePrice(trades []schema.Trade) (decimal.Decimal, error) {
	if len(trades) == 0 {
		return decimal.Zero, errs.New(component, errs.CodeDegenerateTradeWindow, errs.WithMessage("no trades"))
	}
	var notional, quantity int64
	for _, trade := range trades {
		notional += int64(trade.Price) * int64(trade.Quantity)
		quantity += int64(trade.Quantity)
	}
	if quantity == 0 {
		return decimal.Zero, errs.New(component, errs.CodeDegenerateTradeWindow, errs.WithMessage("total traded quantity is zero"))
	}
	return decimal.NewFromInt(notional).Div(decimal.NewFromInt(quantity)), nil
}

// Size returns the absolute size of a level quantity, accepting either sign convention.
func Size(quantity int) int {
	if quantity < 0 {
		return -quantity
	}
	return quantity
}

// AsksAscending returns ask prices cheapest first.
func AsksAscending(asks map[int]int) []int {
	prices := make([]int, 0, len(asks))
	for price := range asks {
		prices = append(prices, price)
	}
	sort.Ints(prices)
	return prices
}

// BidsDescending returns bid prices richest first.
func BidsDescending(bids map[int]int) []int {
	prices := make([]int, 0, len(bids))
	for price := range bids {
		prices = append(prices, price)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(prices)))
	return prices
}
