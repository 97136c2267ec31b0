package strategies

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/coachpo/prosperity/errs"
	"github.com/coachpo/prosperity/internal/market"
	"github.com/coachpo/prosperity/internal/numeric"
	"github.com/coachpo/prosperity/internal/schema"
)

// Aggregation folds basket leg prices into one comparable value.
type Aggregation string

const (
	// AggregateIdentity requires exactly one basket leg and uses its price as is.
	AggregateIdentity Aggregation = "identity"
	// AggregateMean averages the priced basket legs.
	AggregateMean Aggregation = "mean"
)

// ParseAggregation normalises an aggregation name.
func ParseAggregation(s string) (Aggregation, error) {
	switch Aggregation(strings.ToLower(strings.TrimSpace(s))) {
	case AggregateIdentity, "":
		return AggregateIdentity, nil
	case AggregateMean:
		return AggregateMean, nil
	default:
		return "", fmt.Errorf("unknown aggregation %q", s)
	}
}

// Leg is one instrument of a relative-value group.
type Leg struct {
	Product schema.Symbol
	// Trade is false for signal-only legs.
	Trade bool
}

// Sizing describes how a product's order size is derived.
type Sizing struct {
	MaxPosition    int64
	ReferencePrice decimal.Decimal
	Rounding       numeric.Rounding
}

// RelativeValue trades a target instrument against a basket of correlated instruments,
// each normalised by its reference price.
type RelativeValue struct {
	Group       string
	Target      Leg
	Basket      []Leg
	Aggregation Aggregation
	TradeFactor *big.Rat
	Sizing      map[schema.Symbol]Sizing
}

// Validate checks the group is well formed.
func (s *RelativeValue) Validate() error {
	invalid := func(msg string) error {
		return errs.New(component, errs.CodeInvalid, errs.WithMessage(msg), errs.WithField("group", s.Group))
	}
	if len(s.Basket) == 0 {
		return invalid("basket requires at least one leg")
	}
	if s.Aggregation == AggregateIdentity && len(s.Basket) != 1 {
		return invalid("identity aggregation requires exactly one basket leg")
	}
	if s.Aggregation != AggregateIdentity && s.Aggregation != AggregateMean {
		return invalid("unknown aggregation " + string(s.Aggregation))
	}
	if s.TradeFactor == nil || s.TradeFactor.Sign() < 0 {
		return invalid("trade factor must be non-negative")
	}
	for _, leg := range s.legs() {
		sizing, ok := s.Sizing[leg.Product]
		if !ok {
			return invalid("missing sizing for " + string(leg.Product))
		}
		if !sizing.ReferencePrice.IsPositive() {
			return invalid("reference price must be positive for " + string(leg.Product))
		}
	}
	return nil
}

// Name implements Strategy.
func (s *RelativeValue) Name() string { return "relative_value:" + s.Group }

// Requires implements Strategy.
func (s *RelativeValue) Requires() []schema.Symbol {
	legs := s.legs()
	out := make([]schema.Symbol, 0, len(legs))
	for _, leg := range legs {
		out = append(out, leg.Product)
	}
	return out
}

// Tradable implements Strategy.
func (s *RelativeValue) Tradable() []schema.Symbol {
	var out []schema.Symbol
	for _, leg := range s.legs() {
		if leg.Trade {
			out = append(out, leg.Product)
		}
	}
	return out
}

// NewState implements Strategy.
func (s *RelativeValue) NewState() State { return nil }

// Size returns the order size for the product: TradeFactor × MaxPosition, rounded per product.
func (s *RelativeValue) Size(product schema.Symbol) int {
	sizing := s.Sizing[product]
	return int(numeric.Scale(sizing.MaxPosition, s.TradeFactor, sizing.Rounding))
}

// Evaluate implements Strategy.
func (s *RelativeValue) Evaluate(in Input, _ State) (schema.Orders, error) {
	out := newOrders(s.Tradable()...)

	target, err := s.standardized(in.State, s.Target.Product)
	if err != nil {
		return out, err
	}

	var (
		sum    = decimal.Zero
		priced = make([]Leg, 0, len(s.Basket))
		skips  []error
	)
	for _, leg := range s.Basket {
		price, err := s.standardized(in.State, leg.Product)
		if err != nil {
			if s.Aggregation == AggregateIdentity {
				return out, err
			}
			skips = append(skips, err)
			continue
		}
		sum = sum.Add(price)
		priced = append(priced, leg)
	}
	if len(priced) == 0 {
		return out, errors.Join(skips...)
	}

	// target > sum/n, evaluated as n·target > sum to avoid dividing the basket sum.
	scaledTarget := target.Mul(decimal.NewFromInt(int64(len(priced))))
	aggregate := sum.Div(decimal.NewFromInt(int64(len(priced))))
	rich := scaledTarget.GreaterThan(sum)
	verdict := string(s.Target.Product) + " cheaper"
	if rich {
		verdict = "basket cheaper"
	}
	in.Trace.Printf("%s: %s %s, basket %s, %s", s.Group, s.Target.Product, target.StringFixed(4), aggregate.StringFixed(4), verdict)

	var failures []error
	failures = append(failures, skips...)
	if s.Target.Trade {
		failures = append(failures, s.trade(in, out, s.Target.Product, !rich))
	}
	for _, leg := range priced {
		if leg.Trade {
			failures = append(failures, s.trade(in, out, leg.Product, rich))
		}
	}
	return out, errors.Join(failures...)
}

func (s *RelativeValue) trade(in Input, out schema.Orders, product schema.Symbol, buy bool) error {
	size := s.Size(product)
	if size <= 0 {
		return nil
	}
	if buy {
		return buyBestAsk(in, out, product, size)
	}
	return sellBestBid(in, out, product, size)
}

func (s *RelativeValue) standardized(state schema.TradingState, product schema.Symbol) (decimal.Decimal, error) {
	depth, _ := state.Depth(product)
	mid, err := market.DepthMidPrice(product, depth)
	if err != nil {
		return decimal.Zero, err
	}
	return mid.Div(s.Sizing[product].ReferencePrice), nil
}

func (s *RelativeValue) legs() []Leg {
	return append([]Leg{s.Target}, s.Basket...)
}
