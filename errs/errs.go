// Package errs provides structured error types and helpers for the strategy engine.
package errs

import (
	"sort"
	"strconv"
	"strings"
)

// Code identifies an error category.
type Code string

const (
	// CodeInvalid indicates invalid input or configuration provided by the caller.
	CodeInvalid Code = "invalid_request"
	// CodeMissingBookSide indicates a required bid or ask map was empty.
	CodeMissingBookSide Code = "missing_book_side"
	// CodeDegenerateTradeWindow indicates a weighted price was requested over zero quantity.
	CodeDegenerateTradeWindow Code = "degenerate_trade_window"
	// CodePositionLimit indicates an order was reduced or dropped by the position limit.
	CodePositionLimit Code = "position_limit"
	// CodeThrottled indicates an order was dropped by the order throttle.
	CodeThrottled Code = "throttled"
)

// E captures structured error information produced across the engine.
type E struct {
	Component string
	Code      Code
	Product   string
	Message   string
	Metadata  map[string]string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the component and error code.
func New(component string, code Code, opts ...Option) *E {
	e := &E{
		Component: strings.TrimSpace(component),
		Code:      code,
		Product:   "",
		Message:   "",
		Metadata:  nil,
		cause:     nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithProduct records the product the failure relates to.
func WithProduct(product string) Option {
	trimmed := strings.TrimSpace(product)
	return func(e *E) {
		e.Product = trimmed
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// WithField appends a single metadata key/value pair.
func WithField(key, value string) Option {
	return func(e *E) {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return
		}
		if e.Metadata == nil {
			e.Metadata = make(map[string]string, 1)
		}
		e.Metadata[trimmedKey] = strings.TrimSpace(value)
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	component := e.Component
	if component == "" {
		component = "unknown"
	}
	parts = append(parts, "component="+component)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.Product != "" {
		parts = append(parts, "product="+e.Product)
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if len(e.Metadata) > 0 {
		keys := make([]string, 0, len(e.Metadata))
		for k := range e.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+strconv.Quote(e.Metadata[k]))
		}
		parts = append(parts, "meta="+strings.Join(pairs, ","))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// Is matches another *E by code so callers can test categories with errors.Is.
func (e *E) Is(target error) bool {
	other, ok := target.(*E)
	if !ok || other == nil || e == nil {
		return false
	}
	return other.Code == e.Code
}

// HasCode reports whether err, or anything it wraps, is an *E with the given code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*E); ok && e != nil && e.Code == code {
		return true
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			if HasCode(inner, code) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return HasCode(u.Unwrap(), code)
	}
	return false
}

// Tag records product on err when it is an *E that has none yet. Other errors pass through.
func Tag(err error, product string) error {
	if e, ok := err.(*E); ok && e != nil && e.Product == "" {
		e.Product = strings.TrimSpace(product)
	}
	return err
}

// CodeOf returns the code of the first *E in err's chain, or the empty code.
func CodeOf(err error) Code {
	if e := first(err); e != nil {
		return e.Code
	}
	return ""
}

// ProductOf returns the product of the first *E in err's chain.
func ProductOf(err error) string {
	if e := first(err); e != nil {
		return e.Product
	}
	return ""
}

func first(err error) *E {
	if err == nil {
		return nil
	}
	if e, ok := err.(*E); ok {
		return e
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			if e := first(inner); e != nil {
				return e
			}
		}
	case interface{ Unwrap() error }:
		return first(u.Unwrap())
	}
	return nil
}

// Flatten returns every *E in err's tree in depth-first order. The cause of an *E is not searched.
func Flatten(err error) []*E {
	var out []*E
	var walk func(error)
	walk = func(err error) {
		if err == nil {
			return
		}
		if e, ok := err.(*E); ok {
			if e != nil {
				out = append(out, e)
			}
			return
		}
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}

// Label renders the error as PRODUCT:code, or just the code when no product is set.
func (e *E) Label() string {
	if e == nil {
		return ""
	}
	if e.Product == "" {
		return string(e.Code)
	}
	return e.Product + ":" + string(e.Code)
}
