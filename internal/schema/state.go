package schema

// Struct fields below are declared in JSON key order so encoded records come out with sorted keys.

// Listing describes a product listed on the exchange.
type Listing struct {
	Denomination string `json:"denomination"`
	Product      string `json:"product"`
	Symbol       Symbol `json:"symbol"`
}

// OrderDepth holds the outstanding price levels of one product.
// Bid quantities are positive; ask quantities are negative by convention.
type OrderDepth struct {
	BuyOrders  map[int]int `json:"buy_orders"`
	SellOrders map[int]int `json:"sell_orders"`
}

// NewOrderDepth builds an order depth from bid and ask level maps.
func NewOrderDepth(bids, asks map[int]int) OrderDepth {
	if bids == nil {
		bids = make(map[int]int)
	}
	if asks == nil {
		asks = make(map[int]int)
	}
	return OrderDepth{BuyOrders: bids, SellOrders: asks}
}

// Empty reports whether neither side of the book has levels.
func (d OrderDepth) Empty() bool {
	return len(d.BuyOrders) == 0 && len(d.SellOrders) == 0
}

// Trade is a single execution observed since the previous tick.
type Trade struct {
	Buyer     string `json:"buyer"`
	Price     int    `json:"price"`
	Quantity  int    `json:"quantity"`
	Seller    string `json:"seller"`
	Symbol    Symbol `json:"symbol"`
	Timestamp int64  `json:"timestamp"`
}

// TradingState is the snapshot the host delivers every tick.
type TradingState struct {
	Listings     map[Symbol]Listing    `json:"listings"`
	MarketTrades map[Symbol][]Trade    `json:"market_trades"`
	Observations map[string]int        `json:"observations"`
	OrderDepths  map[Symbol]OrderDepth `json:"order_depths"`
	OwnTrades    map[Symbol][]Trade    `json:"own_trades"`
	Position     map[Symbol]int        `json:"position"`
	Timestamp    int64                 `json:"timestamp"`
}

// Depth returns the order depth for the product and whether it is present in the snapshot.
func (s TradingState) Depth(symbol Symbol) (OrderDepth, bool) {
	depth, ok := s.OrderDepths[symbol]
	return depth, ok
}

// Trades returns the market trades for the product, or nil if none were observed.
func (s TradingState) Trades(symbol Symbol) []Trade {
	return s.MarketTrades[symbol]
}

// PositionOf returns the current signed holding for the product.
func (s TradingState) PositionOf(symbol Symbol) int {
	return s.Position[symbol]
}

// Products returns the symbols present in the snapshot's order depths, sorted.
func (s TradingState) Products() []Symbol {
	out := make([]Symbol, 0, len(s.OrderDepths))
	for symbol := range s.OrderDepths {
		out = append(out, symbol)
	}
	return SortSymbols(out)
}
