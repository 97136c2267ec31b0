package schema

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// DecodeTradingState parses a host snapshot.
func DecodeTradingState(data []byte) (TradingState, error) {
	var state TradingState
	if err := json.Unmarshal(data, &state); err != nil {
		return TradingState{}, fmt.Errorf("decode trading state: %w", err)
	}
	if state.OrderDepths == nil {
		state.OrderDepths = make(map[Symbol]OrderDepth)
	}
	for symbol, depth := range state.OrderDepths {
		state.OrderDepths[symbol] = NewOrderDepth(depth.BuyOrders, depth.SellOrders)
	}
	return state, nil
}

// EncodeOrders renders an order map as compact JSON with sorted keys.
func EncodeOrders(orders Orders) ([]byte, error) {
	if orders == nil {
		orders = Orders{}
	}
	data, err := json.Marshal(orders)
	if err != nil {
		return nil, fmt.Errorf("encode orders: %w", err)
	}
	return data, nil
}
