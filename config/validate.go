package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/coachpo/prosperity/errs"
	"github.com/coachpo/prosperity/internal/numeric"
	"github.com/coachpo/prosperity/internal/risk"
	"github.com/coachpo/prosperity/internal/schema"
	"github.com/coachpo/prosperity/internal/strategies"
)

// Validate performs semantic validation on the configuration.
func (s Settings) Validate(ctx context.Context) error {
	_ = ctx
	for symbol, product := range s.Products {
		if err := symbol.Validate(); err != nil {
			return invalid("products", err.Error())
		}
		if product.MaxPosition < 0 {
			return invalid("products."+string(symbol), "maxPosition must be >=0")
		}
		if product.ReferencePrice.IsNegative() {
			return invalid("products."+string(symbol), "referencePrice must be >=0")
		}
		if _, err := numeric.ParseRounding(string(product.Rounding)); err != nil {
			return invalid("products."+string(symbol), err.Error())
		}
	}
	for i, fv := range s.FairValue {
		if err := fv.Product.Validate(); err != nil {
			return invalid(fmt.Sprintf("fairValue[%d]", i), err.Error())
		}
		if fv.Price <= 0 {
			return invalid(fmt.Sprintf("fairValue[%d]", i), "price must be >0")
		}
	}
	for i, ma := range s.MovingAverage {
		field := fmt.Sprintf("movingAverage[%d]", i)
		if err := ma.Product.Validate(); err != nil {
			return invalid(field, err.Error())
		}
		if ma.ShortWindow <= 0 || ma.LongWindow <= 0 {
			return invalid(field, "windows must be >0")
		}
		if ma.UnitSize <= 0 {
			return invalid(field, "unitSize must be >0")
		}
	}
	for i, tp := range s.TimePhased {
		field := fmt.Sprintf("timePhased[%d]", i)
		if err := tp.Product.Validate(); err != nil {
			return invalid(field, err.Error())
		}
		if tp.TotalTime <= 0 {
			return invalid(field, "totalTime must be >0")
		}
	}
	names := make(map[string]struct{}, len(s.RelativeValue))
	for i, group := range s.RelativeValue {
		field := fmt.Sprintf("relativeValue[%d]", i)
		name := strings.TrimSpace(group.Name)
		if name == "" {
			return invalid(field, "name required")
		}
		if _, dup := names[name]; dup {
			return invalid(field, "duplicate group "+name)
		}
		names[name] = struct{}{}
		strategy, err := s.relativeValue(group)
		if err != nil {
			return invalid(field, err.Error())
		}
		if err := strategy.Validate(); err != nil {
			return err
		}
	}
	if s.Risk.OrderThrottle < 0 {
		return invalid("risk", "orderThrottle must be >=0")
	}
	return nil
}

// Strategies builds the strategy bindings described by the settings, in evaluation order.
func (s Settings) Strategies() ([]strategies.Strategy, error) {
	if err := s.Validate(context.Background()); err != nil {
		return nil, err
	}
	out := make([]strategies.Strategy, 0, len(s.FairValue)+len(s.MovingAverage)+len(s.RelativeValue)+len(s.TimePhased))
	for _, fv := range s.FairValue {
		out = append(out, &strategies.FairValue{Product: fv.Product, Price: fv.Price})
	}
	for _, ma := range s.MovingAverage {
		out = append(out, &strategies.MovingAverage{
			Product:     ma.Product,
			LongWindow:  ma.LongWindow,
			ShortWindow: ma.ShortWindow,
			UnitSize:    ma.UnitSize,
			Seed:        ma.Seed,
		})
	}
	for _, group := range s.RelativeValue {
		strategy, err := s.relativeValue(group)
		if err != nil {
			return nil, err
		}
		out = append(out, strategy)
	}
	for _, tp := range s.TimePhased {
		out = append(out, &strategies.TimePhased{Product: tp.Product, TotalTime: tp.TotalTime})
	}
	return out, nil
}

// MaxPositions returns the max position of every configured product.
func (s Settings) MaxPositions() map[schema.Symbol]int {
	out := make(map[schema.Symbol]int, len(s.Products))
	for symbol, product := range s.Products {
		out[symbol] = product.MaxPosition
	}
	return out
}

// RiskLimits returns the risk filter settings of a session.
func (s Settings) RiskLimits() risk.Limits {
	return risk.Limits{
		EnforcePositionLimits: s.Risk.EnforcePositionLimits,
		MaxPosition:           s.MaxPositions(),
		OrderThrottle:         s.Risk.OrderThrottle,
		OrderBurst:            s.Risk.OrderBurst,
	}
}

func (s Settings) relativeValue(group RelativeValueSettings) (*strategies.RelativeValue, error) {
	aggregation, err := strategies.ParseAggregation(group.Aggregation)
	if err != nil {
		return nil, err
	}
	factor, ok := numeric.Parse(group.TradeFactor)
	if !ok {
		return nil, fmt.Errorf("tradeFactor %q is not a number", group.TradeFactor)
	}
	strategy := &strategies.RelativeValue{
		Group:       strings.TrimSpace(group.Name),
		Target:      strategies.Leg{Product: group.Target.Product, Trade: group.Target.Trade},
		Aggregation: aggregation,
		TradeFactor: factor,
		Sizing:      make(map[schema.Symbol]strategies.Sizing, len(group.Basket)+1),
	}
	for _, leg := range group.Basket {
		strategy.Basket = append(strategy.Basket, strategies.Leg{Product: leg.Product, Trade: leg.Trade})
	}
	for _, leg := range append([]LegSettings{group.Target}, group.Basket...) {
		product, ok := s.Products[leg.Product]
		if !ok {
			return nil, fmt.Errorf("product %s is not configured", leg.Product)
		}
		rounding, err := numeric.ParseRounding(string(product.Rounding))
		if err != nil {
			return nil, err
		}
		strategy.Sizing[leg.Product] = strategies.Sizing{
			MaxPosition:    int64(product.MaxPosition),
			ReferencePrice: product.ReferencePrice,
			Rounding:       rounding,
		}
	}
	return strategy, nil
}

func invalid(field, message string) error {
	return errs.New("config", errs.CodeInvalid, errs.WithMessage(message), errs.WithField("field", field))
}
