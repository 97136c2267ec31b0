package schema

// Clone returns a deep copy of the order depth.
func (d OrderDepth) Clone() OrderDepth {
	return OrderDepth{BuyOrders: cloneLevels(d.BuyOrders), SellOrders: cloneLevels(d.SellOrders)}
}

// Clone returns a deep copy of the snapshot so callers can retain it across ticks.
func (s TradingState) Clone() TradingState {
	clone := TradingState{
		Listings:     nil,
		MarketTrades: cloneTrades(s.MarketTrades),
		Observations: nil,
		OrderDepths:  nil,
		OwnTrades:    cloneTrades(s.OwnTrades),
		Position:     nil,
		Timestamp:    s.Timestamp,
	}
	if s.Listings != nil {
		clone.Listings = make(map[Symbol]Listing, len(s.Listings))
		for k, v := range s.Listings {
			clone.Listings[k] = v
		}
	}
	if s.Observations != nil {
		clone.Observations = make(map[string]int, len(s.Observations))
		for k, v := range s.Observations {
			clone.Observations[k] = v
		}
	}
	if s.OrderDepths != nil {
		clone.OrderDepths = make(map[Symbol]OrderDepth, len(s.OrderDepths))
		for k, v := range s.OrderDepths {
			clone.OrderDepths[k] = v.Clone()
		}
	}
	if s.Position != nil {
		clone.Position = make(map[Symbol]int, len(s.Position))
		for k, v := range s.Position {
			clone.Position[k] = v
		}
	}
	return clone
}

// Clone returns a deep copy of the order map.
func (o Orders) Clone() Orders {
	if o == nil {
		return nil
	}
	out := make(Orders, len(o))
	for symbol, list := range o {
		out[symbol] = append(make([]Order, 0, len(list)), list...)
	}
	return out
}

func cloneLevels(src map[int]int) map[int]int {
	if src == nil {
		return nil
	}
	out := make(map[int]int, len(src))
	for price, qty := range src {
		out[price] = qty
	}
	return out
}

func cloneTrades(src map[Symbol][]Trade) map[Symbol][]Trade {
	if src == nil {
		return nil
	}
	out := make(map[Symbol][]Trade, len(src))
	for symbol, trades := range src {
		out[symbol] = append([]Trade(nil), trades...)
	}
	return out
}
