// Package schema defines the tick snapshot, order and trade types exchanged with the host.
package schema

import (
	"sort"
	"strings"

	"github.com/coachpo/prosperity/errs"
)

// Symbol identifies a tradable product.
type Symbol string

// Products traded in the simulated market.
const (
	Pearls           Symbol = "PEARLS"
	Bananas          Symbol = "BANANAS"
	Coconuts         Symbol = "COCONUTS"
	PinaColadas      Symbol = "PINA_COLADAS"
	DivingGear       Symbol = "DIVING_GEAR"
	DolphinSightings Symbol = "DOLPHIN_SIGHTINGS"
	Berries          Symbol = "BERRIES"
	Baguette         Symbol = "BAGUETTE"
	Dip              Symbol = "DIP"
	Ukulele          Symbol = "UKULELE"
	PicnicBasket     Symbol = "PICNIC_BASKET"
)

// Validate verifies the symbol is a non-empty upper-case identifier.
func (s Symbol) Validate() error {
	trimmed := strings.TrimSpace(string(s))
	if trimmed == "" {
		return errs.New("schema/symbol", errs.CodeInvalid, errs.WithMessage("symbol required"))
	}
	if trimmed != string(s) {
		return errs.New("schema/symbol", errs.CodeInvalid, errs.WithProduct(string(s)), errs.WithMessage("symbol must not contain surrounding spaces"))
	}
	for _, r := range trimmed {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' {
			return errs.New("schema/symbol", errs.CodeInvalid, errs.WithProduct(string(s)), errs.WithMessage("symbol must be uppercase alphanumeric"))
		}
	}
	return nil
}

// NormalizeSymbol upper-cases and trims a user supplied product name.
func NormalizeSymbol(name string) Symbol {
	return Symbol(strings.ToUpper(strings.TrimSpace(name)))
}

// SortSymbols sorts symbols lexically in place and returns the slice.
func SortSymbols(symbols []Symbol) []Symbol {
	sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })
	return symbols
}
