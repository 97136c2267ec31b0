// Package numeric provides exact rational helpers used to size orders.
package numeric

import (
	"fmt"
	"math/big"
	"strings"
)

// Rounding selects how a fractional order size becomes a whole number of units.
type Rounding string

const (
	// RoundFloor truncates toward negative infinity.
	RoundFloor Rounding = "floor"
	// RoundCeil rounds toward positive infinity.
	RoundCeil Rounding = "ceil"
	// RoundHalfUp rounds to the nearest integer, halves away from zero.
	RoundHalfUp Rounding = "round"
)

// ParseRounding normalises a rounding mode name. Empty selects RoundFloor.
func ParseRounding(s string) (Rounding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(RoundFloor):
		return RoundFloor, nil
	case string(RoundCeil):
		return RoundCeil, nil
	case string(RoundHalfUp), "half_up", "nearest":
		return RoundHalfUp, nil
	default:
		return "", fmt.Errorf("unknown rounding mode %q", s)
	}
}

// Parse converts a decimal ("0.25") or fraction ("1/30") string into a rational number.
// On failure, it returns (nil, false).
func Parse(s string) (*big.Rat, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	r := new(big.Rat)
	if _, ok := r.SetString(s); !ok {
		return nil, false
	}
	return r, true
}

// Round converts r to an int64 using the rounding mode.
func Round(r *big.Rat, mode Rounding) int64 {
	if r == nil {
		return 0
	}
	num, den := r.Num(), r.Denom()
	q, m := new(big.Int).DivMod(num, den, new(big.Int))
	// DivMod is Euclidean: m >= 0 and q is the floor for a positive denominator.
	switch mode {
	case RoundCeil:
		if m.Sign() != 0 {
			q.Add(q, big.NewInt(1))
		}
	case RoundHalfUp:
		twice := new(big.Int).Lsh(m, 1)
		cmp := twice.Cmp(den)
		if cmp > 0 || (cmp == 0 && r.Sign() > 0) {
			q.Add(q, big.NewInt(1))
		}
	}
	return q.Int64()
}

// Scale multiplies an integer quantity by the factor and rounds the product.
func Scale(quantity int64, factor *big.Rat, mode Rounding) int64 {
	if factor == nil {
		return 0
	}
	product := new(big.Rat).Mul(new(big.Rat).SetInt64(quantity), factor)
	return Round(product, mode)
}
