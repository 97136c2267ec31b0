package market

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/prosperity/errs"
	"github.com/coachpo/prosperity/internal/schema"
)

func TestBestBidAndAsk(t *testing.T) {
	bids := map[int]int{9995: 20, 10001: 2, 9990: 1}
	asks := map[int]int{10005: -20, 9998: -5, 9999: -3}

	bid, err := BestBid(bids)
	require.NoError(t, err)
	require.Equal(t, 10001, bid)

	ask, err := BestAsk(asks)
	require.NoError(t, err)
	require.Equal(t, 9998, ask)
}

func TestBestPriceHandlesNegativeKeys(t *testing.T) {
	bid, err := BestBid(map[int]int{-5: 1, -2: 1})
	require.NoError(t, err)
	require.Equal(t, -2, bid)

	ask, err := BestAsk(map[int]int{-5: -1, -2: -1})
	require.NoError(t, err)
	require.Equal(t, -5, ask)
}

func TestEmptySidesAreMissingBookSide(t *testing.T) {
	_, err := BestBid(nil)
	require.True(t, errs.HasCode(err, errs.CodeMissingBookSide))

	_, err = BestAsk(map[int]int{})
	require.True(t, errs.HasCode(err, errs.CodeMissingBookSide))

	_, err = MidPrice(map[int]int{100: 1}, nil)
	require.True(t, errs.HasCode(err, errs.CodeMissingBookSide))
}

func TestMidPrice(t *testing.T) {
	mid, err := MidPrice(map[int]int{15749: 10}, map[int]int{15752: -10})
	require.NoError(t, err)
	require.True(t, mid.Equal(decimal.RequireFromString("15750.5")), mid.String())
}

func TestDepthMidPriceTagsProduct(t *testing.T) {
	_, err := DepthMidPrice(schema.Coconuts, schema.NewOrderDepth(map[int]int{8000: 5}, nil))
	var e *errs.E
	require.ErrorAs(t, err, &e)
	require.Equal(t, "COCONUTS", e.Product)
	require.Equal(t, errs.CodeMissingBookSide, e.Code)
}

func TestVolumeWeightedTradePrice(t *testing.T) {
	trades := []schema.Trade{
		{Symbol: schema.Bananas, Price: 4950, Quantity: 2},
		{Symbol: schema.Bananas, Price: 4953, Quantity: 1},
	}
	price, err := VolumeWeightedTradePrice(trades)
	require.NoError(t, err)
	require.True(t, price.Equal(decimal.NewFromInt(4951)), price.String())

	// Order of trades does not matter.
	reversed := []schema.Trade{trades[1], trades[0]}
	again, err := VolumeWeightedTradePrice(reversed)
	require.NoError(t, err)
	require.True(t, price.Equal(again))
}

func TestVolumeWeightedTradePriceDegenerate(t *testing.T) {
	_, err := VolumeWeightedTradePrice(nil)
	require.True(t, errs.HasCode(err, errs.CodeDegenerateTradeWindow))

	_, err = VolumeWeightedTradePrice([]schema.Trade{{Price: 10, Quantity: 2}, {Price: 11, Quantity: -2}})
	require.True(t, errs.HasCode(err, errs.CodeDegenerateTradeWindow))
}

func TestSortedLevels(t *testing.T) {
	require.Equal(t, []int{9998, 9999, 10005}, AsksAscending(map[int]int{10005: -1, 9998: -1, 9999: -1}))
	require.Equal(t, []int{10001, 9995}, BidsDescending(map[int]int{9995: 1, 10001: 1}))
	require.Empty(t, AsksAscending(nil))
	require.Equal(t, 5, Size(-5))
	require.Equal(t, 5, Size(5))
}
