// Package engine dispatches each tick's snapshot to the configured strategies and merges their orders.
package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/coachpo/prosperity/errs"
	"github.com/coachpo/prosperity/internal/observability"
	"github.com/coachpo/prosperity/internal/risk"
	"github.com/coachpo/prosperity/internal/schema"
	"github.com/coachpo/prosperity/internal/strategies"
)

const component = "engine"

// Engine holds immutable strategy bindings shared by every session.
type Engine struct {
	strategies []strategies.Strategy
	limits     risk.Limits
	metrics    *Metrics
	logger     observability.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRiskLimits sets the limits each session's risk manager enforces.
func WithRiskLimits(limits risk.Limits) Option {
	return func(e *Engine) {
		e.limits = limits
	}
}

// WithMetrics attaches Prometheus instruments.
func WithMetrics(metrics *Metrics) Option {
	return func(e *Engine) {
		e.metrics = metrics
	}
}

// WithLogger overrides the logger. The global logger is used otherwise.
func WithLogger(logger observability.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New validates the bindings and builds an engine.
func New(bindings []strategies.Strategy, opts ...Option) (*Engine, error) {
	seen := make(map[string]struct{}, len(bindings))
	for i, s := range bindings {
		if s == nil {
			return nil, errs.New(component, errs.CodeInvalid, errs.WithMessage(fmt.Sprintf("strategy %d is nil", i)))
		}
		name := s.Name()
		if _, dup := seen[name]; dup {
			return nil, errs.New(component, errs.CodeInvalid, errs.WithMessage("duplicate strategy "+name))
		}
		seen[name] = struct{}{}
		if v, ok := s.(interface{ Validate() error }); ok {
			if err := v.Validate(); err != nil {
				return nil, err
			}
		}
	}
	e := &Engine{
		strategies: append([]strategies.Strategy(nil), bindings...),
		logger:     observability.Log(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// Strategies returns the bindings in evaluation order.
func (e *Engine) Strategies() []strategies.Strategy {
	return append([]strategies.Strategy(nil), e.strategies...)
}

// Session is one independent run of the engine with its own strategy state.
type Session struct {
	id     string
	engine *Engine
	risk   *risk.Manager
	trace  *observability.Trace

	mu     sync.Mutex
	states []strategies.State
	ticks  int64
}

// SessionOption configures a Session.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	trace io.Writer
}

// WithTraceWriter sets where the per-tick trace record is written. Records are discarded otherwise.
func WithTraceWriter(w io.Writer) SessionOption {
	return func(c *sessionConfig) {
		c.trace = w
	}
}

// NewSession creates a session with fresh strategy state.
func (e *Engine) NewSession(opts ...SessionOption) *Session {
	var cfg sessionConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	states := make([]strategies.State, len(e.strategies))
	for i, s := range e.strategies {
		states[i] = s.NewState()
	}
	return &Session{
		id:     uuid.NewString(),
		engine: e,
		risk:   risk.NewManager(e.limits),
		trace:  observability.NewTrace(cfg.trace),
		states: states,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Trace exposes the session's trace buffer.
func (s *Session) Trace() *observability.Trace { return s.trace }

// Ticks returns how many ticks the session has evaluated.
func (s *Session) Ticks() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// State returns the state of the named strategy.
func (s *Session) State(name string) (strategies.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, strategy := range s.engine.strategies {
		if strategy.Name() == name {
			return s.states[i], true
		}
	}
	return nil, false
}

// Tick evaluates one snapshot. The returned map holds every tradable product of every strategy
// that ran, even when it produced no orders. Strategy failures never stop other strategies; they
// are joined into the returned error alongside the orders.
func (s *Session) Tick(ctx context.Context, state schema.TradingState) (schema.Orders, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.engine
	e.metrics.ObserveTick()
	s.ticks++
	s.trace.Print("position", encodeInline(state.Position))

	in := strategies.Input{State: state, Trace: s.trace}
	result := schema.Orders{}
	var problems []error
	for i, strategy := range e.strategies {
		name := strategy.Name()
		if !strategies.Covered(strategy, state) {
			e.metrics.ObserveSkipped(name)
			continue
		}
		for _, symbol := range strategy.Tradable() {
			result.Add(symbol)
		}

		started := time.Now()
		orders, err := strategy.Evaluate(in, s.states[i])
		e.metrics.ObserveEvaluation(name, time.Since(started))
		for symbol, list := range orders {
			result.Add(symbol, list...)
		}
		if err != nil {
			e.metrics.ObserveError(name, string(errs.CodeOf(err)))
			problems = append(problems, fmt.Errorf("%s: %w", name, err))
		}
	}

	filtered, err := s.risk.Filter(state.Timestamp, state.Position, result)
	if err != nil {
		problems = append(problems, err)
	}
	e.metrics.ObserveOrders(filtered)

	s.trace.Print("orders", encodeInline(filtered))
	if err := s.trace.Flush(state, filtered); err != nil {
		problems = append(problems, err)
	}

	return filtered, observability.AggregateErrors(e.logger, fmt.Sprintf("tick %d", state.Timestamp), problems,
		observability.Field{Key: "session", Value: s.id})
}

func encodeInline(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return strings.TrimSpace(fmt.Sprint(v))
	}
	return string(data)
}
