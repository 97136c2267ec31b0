package numeric

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	decimal, ok := Parse(" 123.45 ")
	require.True(t, ok)
	require.Zero(t, decimal.Cmp(big.NewRat(12345, 100)))

	negative, ok := Parse("-0.5")
	require.True(t, ok)
	require.Zero(t, negative.Cmp(big.NewRat(-1, 2)))

	fraction, ok := Parse("1/30")
	require.True(t, ok)
	require.Zero(t, fraction.Cmp(big.NewRat(1, 30)))

	_, ok = Parse("  ")
	require.False(t, ok)
	_, ok = Parse("abc")
	require.False(t, ok)
}

func TestRoundModes(t *testing.T) {
	cases := []struct {
		value *big.Rat
		mode  Rounding
		want  int64
	}{
		{big.NewRat(5, 3), RoundFloor, 1},
		{big.NewRat(5, 3), RoundCeil, 2},
		{big.NewRat(5, 3), RoundHalfUp, 2},
		{big.NewRat(7, 3), RoundHalfUp, 2},
		{big.NewRat(5, 2), RoundHalfUp, 3},
		{big.NewRat(-5, 2), RoundHalfUp, -3},
		{big.NewRat(-12, 5), RoundHalfUp, -2},
		{big.NewRat(-5, 3), RoundFloor, -2},
		{big.NewRat(10, 1), RoundCeil, 10},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Round(tc.value, tc.mode), "%s %s", tc.value.RatString(), tc.mode)
	}
	require.Zero(t, Round(nil, RoundFloor))
}

func TestScaleIsExactForFractions(t *testing.T) {
	factor, ok := Parse("1/30")
	require.True(t, ok)

	require.Equal(t, int64(10), Scale(300, factor, RoundFloor))
	require.Equal(t, int64(20), Scale(600, factor, RoundFloor))
	require.Equal(t, int64(1), Scale(50, factor, RoundFloor))
	require.Equal(t, int64(2), Scale(50, factor, RoundHalfUp))
	require.Equal(t, int64(3), Scale(70, factor, RoundCeil))
	require.Zero(t, Scale(70, nil, RoundCeil))
}

func TestParseRounding(t *testing.T) {
	mode, err := ParseRounding("")
	require.NoError(t, err)
	require.Equal(t, RoundFloor, mode)

	mode, err = ParseRounding(" Nearest ")
	require.NoError(t, err)
	require.Equal(t, RoundHalfUp, mode)

	_, err = ParseRounding("banker")
	require.Error(t, err)
}
