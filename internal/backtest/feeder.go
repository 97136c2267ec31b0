package backtest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/coachpo/prosperity/internal/schema"
)

// DataFeeder yields recorded snapshots in replay order and io.EOF when exhausted.
type DataFeeder interface {
	Next() (schema.TradingState, error)
}

// FeederFunc adapts a function to DataFeeder.
type FeederFunc func() (schema.TradingState, error)

// Next implements DataFeeder.
func (f FeederFunc) Next() (schema.TradingState, error) { return f() }

// SliceFeeder replays an in-memory list of snapshots.
type SliceFeeder struct {
	states []schema.TradingState
	pos    int
}

// NewSliceFeeder copies states so replays never share snapshot maps.
func NewSliceFeeder(states []schema.TradingState) *SliceFeeder {
	out := make([]schema.TradingState, len(states))
	for i, state := range states {
		out[i] = state.Clone()
	}
	return &SliceFeeder{states: out}
}

// Next implements DataFeeder.
func (f *SliceFeeder) Next() (schema.TradingState, error) {
	if f.pos >= len(f.states) {
		return schema.TradingState{}, io.EOF
	}
	state := f.states[f.pos]
	f.pos++
	return state, nil
}

const maxLineBytes = 16 << 20

// JSONLFeeder reads one snapshot per line. Lines may be bare snapshots or trace records, in which
// case the "state" member is replayed. Blank lines and JSON objects carrying neither "state" nor
// "order_depths", such as log entries interleaved in a captured stream, are skipped.
type JSONLFeeder struct {
	scanner *bufio.Scanner
	line    int
	skipped int
}

// NewJSONLFeeder creates a feeder over r.
func NewJSONLFeeder(r io.Reader) *JSONLFeeder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	return &JSONLFeeder{scanner: scanner}
}

type lineShape struct {
	State       json.RawMessage `json:"state"`
	OrderDepths json.RawMessage `json:"order_depths"`
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// Skipped reports how many non-blank lines were not snapshots.
func (f *JSONLFeeder) Skipped() int { return f.skipped }

// Next implements DataFeeder.
func (f *JSONLFeeder) Next() (schema.TradingState, error) {
	for f.scanner.Scan() {
		f.line++
		line := bytes.TrimSpace(f.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var shape lineShape
		if err := json.Unmarshal(line, &shape); err != nil {
			return schema.TradingState{}, fmt.Errorf("line %d: %w", f.line, err)
		}
		switch {
		case present(shape.State):
			line = shape.State
		case !present(shape.OrderDepths):
			f.skipped++
			continue
		}
		state, err := schema.DecodeTradingState(line)
		if err != nil {
			return schema.TradingState{}, fmt.Errorf("line %d: %w", f.line, err)
		}
		return state, nil
	}
	if err := f.scanner.Err(); err != nil {
		return schema.TradingState{}, fmt.Errorf("read snapshots: %w", err)
	}
	return schema.TradingState{}, io.EOF
}

// FileFeeder owns the files behind a feeder.
type FileFeeder struct {
	DataFeeder
	files []*os.File
}

// Close closes the underlying files.
func (f *FileFeeder) Close() error {
	var errs []error
	for _, file := range f.files {
		if err := file.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Format names a recorded snapshot file format.
type Format string

const (
	// FormatJSONL is one TradingState (or trace record) per line.
	FormatJSONL Format = "jsonl"
	// FormatCSV is the exchange's semicolon separated order book export.
	FormatCSV Format = "csv"
)

// ParseFormat normalises a format name. Empty selects FormatJSONL.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatJSONL, "":
		return FormatJSONL, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown format %q", s)
	}
}

// OpenFile opens a recorded snapshot file in the given format.
func OpenFile(path string, format Format) (*FileFeeder, error) {
	switch format {
	case FormatJSONL, "":
		file, err := openFile(path)
		if err != nil {
			return nil, err
		}
		return &FileFeeder{DataFeeder: NewJSONLFeeder(file), files: []*os.File{file}}, nil
	case FormatCSV:
		return OpenCSV(path, "")
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// OpenCSV opens a prices export and, when tradesPath is set, the matching trades export.
func OpenCSV(pricesPath, tradesPath string) (*FileFeeder, error) {
	prices, err := openFile(pricesPath)
	if err != nil {
		return nil, err
	}
	files := []*os.File{prices}
	var trades io.Reader
	if tradesPath != "" {
		file, err := openFile(tradesPath)
		if err != nil {
			_ = prices.Close()
			return nil, err
		}
		files = append(files, file)
		trades = file
	}
	feeder, err := NewCSVFeeder(prices, trades)
	out := &FileFeeder{DataFeeder: feeder, files: files}
	if err != nil {
		_ = out.Close()
		return nil, err
	}
	return out, nil
}

func openFile(path string) (*os.File, error) {
	// #nosec G304 -- file path is operator provided via CLI flags.
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return file, nil
}

// Chain replays feeders one after another.
func Chain(feeders ...DataFeeder) DataFeeder {
	idx := 0
	return FeederFunc(func() (schema.TradingState, error) {
		for idx < len(feeders) {
			state, err := feeders[idx].Next()
			if err == io.EOF {
				idx++
				continue
			}
			return state, err
		}
		return schema.TradingState{}, io.EOF
	})
}
