// Package risk applies optional position and rate limits to the orders of one tick.
package risk

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/coachpo/prosperity/errs"
	"github.com/coachpo/prosperity/internal/schema"
)

const component = "risk"

// Limits defines the risk parameters applied to a session.
type Limits struct {
	// EnforcePositionLimits clamps orders so the resulting position stays within MaxPosition.
	// The host simulator enforces limits itself, so this is off by default.
	EnforcePositionLimits bool `yaml:"enforcePositionLimits"`

	// MaxPosition is the maximum absolute holding per product. Products without an entry are unlimited.
	MaxPosition map[schema.Symbol]int `yaml:"-"`

	// OrderThrottle is the maximum rate of orders per second of simulated time per product.
	// Zero disables throttling.
	OrderThrottle float64 `yaml:"orderThrottle"`

	// OrderBurst is the limiter bucket size. Values below 1 are treated as 1.
	OrderBurst int `yaml:"orderBurst"`
}

// Manager enforces risk limits for one session. Throttle buckets are keyed by product.
type Manager struct {
	limits   Limits
	mu       sync.Mutex
	limiters map[schema.Symbol]*rate.Limiter
}

// NewManager creates a new risk manager with the given limits.
func NewManager(limits Limits) *Manager {
	if limits.OrderBurst < 1 {
		limits.OrderBurst = 1
	}
	return &Manager{
		limits:   limits,
		limiters: make(map[schema.Symbol]*rate.Limiter),
	}
}

// Limits returns the configured limits.
func (m *Manager) Limits() Limits {
	return m.limits
}

// Filter applies the limits to orders in place order. timestamp is the tick time in
// milliseconds and drives the throttle, so replays are deterministic. The returned map keeps
// every product key of orders. The error lists each clamp or drop.
func (m *Manager) Filter(timestamp int64, positions map[schema.Symbol]int, orders schema.Orders) (schema.Orders, error) {
	if m == nil || (!m.limits.EnforcePositionLimits && m.limits.OrderThrottle <= 0) {
		return orders, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.UnixMilli(timestamp)
	out := make(schema.Orders, len(orders))
	var problems []error
	for symbol, list := range orders {
		out.Add(symbol)
		running := positions[symbol]
		for _, order := range list {
			if m.limits.EnforcePositionLimits {
				clamped := m.clamp(symbol, running, order)
				if clamped.Quantity != order.Quantity {
					problems = append(problems, errs.New(component, errs.CodePositionLimit,
						errs.WithProduct(string(symbol)),
						errs.WithMessage("order clamped to position limit"),
						errs.WithField("requested", strconv.Itoa(order.Quantity)),
						errs.WithField("allowed", strconv.Itoa(clamped.Quantity))))
				}
				order = clamped
			}
			if order.Quantity == 0 {
				continue
			}
			if m.limits.OrderThrottle > 0 && !m.limiter(symbol).AllowN(now, 1) {
				problems = append(problems, errs.New(component, errs.CodeThrottled,
					errs.WithProduct(string(symbol)),
					errs.WithMessage("order throttle limit exceeded"),
					errs.WithField("order", order.String())))
				continue
			}
			running += order.Quantity
			out[symbol] = append(out[symbol], order)
		}
	}
	return out, errors.Join(problems...)
}

func (m *Manager) clamp(symbol schema.Symbol, position int, order schema.Order) schema.Order {
	limit, ok := m.limits.MaxPosition[symbol]
	if !ok {
		return order
	}
	switch {
	case order.Quantity > 0:
		room := limit - position
		if room < 0 {
			room = 0
		}
		if order.Quantity > room {
			order.Quantity = room
		}
	case order.Quantity < 0:
		room := limit + position
		if room < 0 {
			room = 0
		}
		if -order.Quantity > room {
			order.Quantity = -room
		}
	}
	return order
}

func (m *Manager) limiter(symbol schema.Symbol) *rate.Limiter {
	limiter, ok := m.limiters[symbol]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(m.limits.OrderThrottle), m.limits.OrderBurst)
		m.limiters[symbol] = limiter
	}
	return limiter
}
