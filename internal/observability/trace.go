package observability

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/coachpo/prosperity/internal/schema"
)

// Record is the structured end-of-tick entry. Keys are declared in sorted order.
type Record struct {
	Logs   string              `json:"logs"`
	Orders schema.Orders       `json:"orders"`
	State  schema.TradingState `json:"state"`
}

// Trace accumulates human-readable decision lines during a tick and flushes them with the
// snapshot and emitted orders as one compact JSON line.
type Trace struct {
	mu  sync.Mutex
	buf strings.Builder
	out io.Writer
}

// NewTrace creates a trace that flushes to w. A nil writer discards flushed records.
func NewTrace(w io.Writer) *Trace {
	if w == nil {
		w = io.Discard
	}
	return &Trace{out: w}
}

// Print appends the operands separated by spaces and terminated by a newline.
func (t *Trace) Print(objects ...any) {
	if t == nil {
		return
	}
	parts := make([]string, len(objects))
	for i, obj := range objects {
		parts[i] = fmt.Sprint(obj)
	}
	t.mu.Lock()
	t.buf.WriteString(strings.Join(parts, " "))
	t.buf.WriteByte('\n')
	t.mu.Unlock()
}

// Printf appends a formatted line.
func (t *Trace) Printf(format string, args ...any) {
	if t == nil {
		return
	}
	t.mu.Lock()
	fmt.Fprintf(&t.buf, format, args...)
	t.buf.WriteByte('\n')
	t.mu.Unlock()
}

// Logs returns the text accumulated since the last flush.
func (t *Trace) Logs() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

// Flush writes {"logs","orders","state"} as one line and clears the accumulated text.
func (t *Trace) Flush(state schema.TradingState, orders schema.Orders) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if orders == nil {
		orders = schema.Orders{}
	}
	record := Record{Logs: t.buf.String(), Orders: orders, State: state}
	t.buf.Reset()

	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(record); err != nil {
		return fmt.Errorf("encode trace record: %w", err)
	}
	if _, err := t.out.Write(out.Bytes()); err != nil {
		return fmt.Errorf("write trace record: %w", err)
	}
	return nil
}
