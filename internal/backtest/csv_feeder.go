package backtest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/coachpo/prosperity/internal/schema"
)

const denomination = "SEASHELLS"

// CSVFeeder groups the rows of a semicolon separated prices export into one snapshot per
// (day, timestamp). Header columns are matched by name: day, timestamp, product, bid_price_N,
// bid_volume_N, ask_price_N and ask_volume_N. Ask volumes are stored negated.
//
// An optional trades export (timestamp, buyer, seller, symbol, price, quantity) attaches market
// trades to the snapshot with the same day and timestamp. The exchange writes one trades file per
// day without a day column; such rows belong to the first day of the prices export.
type CSVFeeder struct {
	reader   *csv.Reader
	columns  map[string]int
	levels   int
	pending  []string
	trades   map[tradeKey][]schema.Trade
	firstDay *string
	done     bool
}

type tradeKey struct {
	day       string
	timestamp int64
}

// NewCSVFeeder creates a feeder over a prices export and an optional trades export.
func NewCSVFeeder(prices io.Reader, trades io.Reader) (*CSVFeeder, error) {
	reader := newSemicolonReader(prices)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	columns := indexColumns(header)
	for _, required := range []string{"timestamp", "product"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("csv header missing %q column", required)
		}
	}
	levels := 0
	for {
		if _, ok := columns["bid_price_"+strconv.Itoa(levels+1)]; !ok {
			break
		}
		levels++
	}

	f := &CSVFeeder{reader: reader, columns: columns, levels: levels}
	if trades != nil {
		if f.trades, err = readTrades(trades); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Next implements DataFeeder.
func (f *CSVFeeder) Next() (schema.TradingState, error) {
	if f.done && f.pending == nil {
		return schema.TradingState{}, io.EOF
	}
	row := f.pending
	f.pending = nil
	if row == nil {
		var err error
		row, err = f.read()
		if err != nil {
			return schema.TradingState{}, err
		}
	}

	day, timestamp, err := f.key(row)
	if err != nil {
		return schema.TradingState{}, err
	}
	state := schema.TradingState{
		Timestamp:    timestamp,
		Listings:     make(map[schema.Symbol]schema.Listing),
		OrderDepths:  make(map[schema.Symbol]schema.OrderDepth),
		MarketTrades: make(map[schema.Symbol][]schema.Trade),
		OwnTrades:    make(map[schema.Symbol][]schema.Trade),
		Position:     make(map[schema.Symbol]int),
		Observations: make(map[string]int),
	}
	for {
		if err := f.apply(&state, row); err != nil {
			return schema.TradingState{}, err
		}
		next, err := f.read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return schema.TradingState{}, err
		}
		nextDay, nextTS, err := f.key(next)
		if err != nil {
			return schema.TradingState{}, err
		}
		if nextDay != day || nextTS != timestamp {
			f.pending = next
			break
		}
		row = next
	}
	if f.firstDay == nil {
		f.firstDay = &day
	}
	matched := append([]schema.Trade(nil), f.trades[tradeKey{day: day, timestamp: timestamp}]...)
	if day == *f.firstDay {
		matched = append(matched, f.trades[tradeKey{timestamp: timestamp}]...)
	}
	for _, trade := range matched {
		state.MarketTrades[trade.Symbol] = append(state.MarketTrades[trade.Symbol], trade)
	}
	return state, nil
}

func (f *CSVFeeder) read() ([]string, error) {
	row, err := f.reader.Read()
	if errors.Is(err, io.EOF) {
		f.done = true
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("read csv record: %w", err)
	}
	return row, nil
}

func (f *CSVFeeder) key(row []string) (string, int64, error) {
	day := f.field(row, "day")
	timestamp, err := strconv.ParseInt(f.field(row, "timestamp"), 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("parse timestamp: %w", err)
	}
	return day, timestamp, nil
}

func (f *CSVFeeder) apply(state *schema.TradingState, row []string) error {
	symbol := schema.NormalizeSymbol(f.field(row, "product"))
	if err := symbol.Validate(); err != nil {
		return fmt.Errorf("csv product: %w", err)
	}
	depth := schema.NewOrderDepth(nil, nil)
	for level := 1; level <= f.levels; level++ {
		n := strconv.Itoa(level)
		if err := addLevel(depth.BuyOrders, f.field(row, "bid_price_"+n), f.field(row, "bid_volume_"+n), 1); err != nil {
			return fmt.Errorf("%s bid level %d: %w", symbol, level, err)
		}
		if err := addLevel(depth.SellOrders, f.field(row, "ask_price_"+n), f.field(row, "ask_volume_"+n), -1); err != nil {
			return fmt.Errorf("%s ask level %d: %w", symbol, level, err)
		}
	}
	state.OrderDepths[symbol] = depth
	state.Listings[symbol] = schema.Listing{Denomination: denomination, Product: string(symbol), Symbol: symbol}
	return nil
}

func (f *CSVFeeder) field(row []string, name string) string {
	idx, ok := f.columns[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// addLevel records one price level. Empty cells mean the level is absent.
func addLevel(levels map[int]int, priceCell, volumeCell string, sign int) error {
	if priceCell == "" || volumeCell == "" {
		return nil
	}
	price, err := parseInt(priceCell)
	if err != nil {
		return err
	}
	volume, err := parseInt(volumeCell)
	if err != nil {
		return err
	}
	if volume < 0 {
		volume = -volume
	}
	levels[price] += sign * volume
	return nil
}

// parseInt accepts integral values written with a trailing ".0".
func parseInt(cell string) (int, error) {
	if v, err := strconv.Atoi(cell); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", cell, err)
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("parse %q: not an integer", cell)
	}
	return int(f), nil
}

// readTrades indexes a trades export by day and timestamp. Rows without a day use the empty day.
func readTrades(r io.Reader) (map[tradeKey][]schema.Trade, error) {
	reader := newSemicolonReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read trades header: %w", err)
	}
	columns := indexColumns(header)
	field := func(row []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	out := make(map[tradeKey][]schema.Trade)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read trades record: %w", err)
		}
		timestamp, err := strconv.ParseInt(field(row, "timestamp"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse trade timestamp: %w", err)
		}
		price, err := parseInt(field(row, "price"))
		if err != nil {
			return nil, fmt.Errorf("trade price: %w", err)
		}
		quantity, err := parseInt(field(row, "quantity"))
		if err != nil {
			return nil, fmt.Errorf("trade quantity: %w", err)
		}
		trade := schema.Trade{
			Buyer:     field(row, "buyer"),
			Price:     price,
			Quantity:  quantity,
			Seller:    field(row, "seller"),
			Symbol:    schema.NormalizeSymbol(field(row, "symbol")),
			Timestamp: timestamp,
		}
		key := tradeKey{day: field(row, "day"), timestamp: timestamp}
		out[key] = append(out[key], trade)
	}
}

func newSemicolonReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader
}

func indexColumns(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return columns
}
