package schema

import (
	"fmt"
	"strconv"
)

// TradeSide captures the direction of an order.
type TradeSide string

const (
	// TradeSideBuy marks a positive quantity order.
	TradeSideBuy TradeSide = "BUY"
	// TradeSideSell marks a negative quantity order.
	TradeSideSell TradeSide = "SELL"
)

// Order is a request to trade Quantity units of Symbol at Price. Positive quantity buys.
type Order struct {
	Price    int    `json:"price"`
	Quantity int    `json:"quantity"`
	Symbol   Symbol `json:"symbol"`
}

// NewOrder constructs an order.
func NewOrder(symbol Symbol, price, quantity int) Order {
	return Order{Price: price, Quantity: quantity, Symbol: symbol}
}

// Side returns the direction implied by the sign of the quantity.
func (o Order) Side() TradeSide {
	if o.Quantity < 0 {
		return TradeSideSell
	}
	return TradeSideBuy
}

// Size returns the absolute quantity.
func (o Order) Size() int {
	if o.Quantity < 0 {
		return -o.Quantity
	}
	return o.Quantity
}

// String renders the order as a trace line, e.g. "BUY 5x PEARLS at 9998".
func (o Order) String() string {
	return fmt.Sprintf("%s %sx %s at %s", o.Side(), strconv.Itoa(o.Size()), o.Symbol, strconv.Itoa(o.Price))
}

// Orders maps each product to the orders emitted for it in one tick.
type Orders map[Symbol][]Order

// Add appends orders for the product, creating the entry even when no orders are given.
func (o Orders) Add(symbol Symbol, orders ...Order) {
	if o[symbol] == nil {
		o[symbol] = make([]Order, 0, len(orders))
	}
	o[symbol] = append(o[symbol], orders...)
}

// Count returns the total number of orders across all products.
func (o Orders) Count() int {
	total := 0
	for _, list := range o {
		total += len(list)
	}
	return total
}
