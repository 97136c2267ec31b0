package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys used by replay instruments.
const (
	AttrEnvironment = attribute.Key("environment")
	AttrVariant     = attribute.Key("variant")
	AttrStrategy    = attribute.Key("strategy")
	AttrSymbol      = attribute.Key("symbol")
	AttrSide        = attribute.Key("side")
	AttrErrorType   = attribute.Key("error.type")
)

// OrderAttributes returns attributes for order counters.
func OrderAttributes(environment, variant, symbol, side string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrVariant.String(variant),
		AttrSymbol.String(symbol),
		AttrSide.String(side),
	}
}

// ErrorAttributes returns attributes for error counters.
func ErrorAttributes(environment, variant, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrVariant.String(variant),
		AttrErrorType.String(errorType),
	}
}

// VariantAttributes returns attributes shared by every replay instrument.
func VariantAttributes(environment, variant string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrVariant.String(variant),
	}
}
