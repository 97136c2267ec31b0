package observability

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/prosperity/errs"
)

type recordingLogger struct {
	debug  int
	info   int
	errors int
	last   []Field
}

func (r *recordingLogger) Debug(string, ...Field) { r.debug++ }
func (r *recordingLogger) Info(string, ...Field)  { r.info++ }
func (r *recordingLogger) Error(_ string, fields ...Field) {
	r.errors++
	r.last = fields
}

func TestSetLoggerOverridesGlobal(t *testing.T) {
	rec := &recordingLogger{}
	SetLogger(rec)
	t.Cleanup(func() { SetLogger(nil) })

	Log().Info("info")
	Log().Debug("debug")
	Log().Error("error")

	require.Equal(t, 1, rec.info)
	require.Equal(t, 1, rec.debug)
	require.Equal(t, 1, rec.errors)

	SetLogger(nil)
	require.IsType(t, noopLogger{}, Log())
}

func TestZerologLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, "debug").With(Field{Key: "session", Value: "abc"})

	logger.Info("tick", Field{Key: "timestamp", Value: int64(1200)}, Field{Key: "product", Value: "PEARLS"})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "info", line["level"])
	require.Equal(t, "tick", line["message"])
	require.Equal(t, "abc", line["session"])
	require.Equal(t, "PEARLS", line["product"])
	require.EqualValues(t, 1200, line["timestamp"])
}

func TestZerologLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, "error")

	logger.Debug("quiet")
	logger.Info("quiet")
	require.Zero(t, buf.Len())

	logger.Error("loud", Field{Key: "err", Value: errors.New("boom")})
	require.Contains(t, buf.String(), `"err":"boom"`)
}

func TestZerologLoggerUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, "chatty")

	logger.Debug("hidden")
	require.Zero(t, buf.Len())
	logger.Info("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestAggregateErrorsLogsOnceWithLabels(t *testing.T) {
	global := &recordingLogger{}
	SetLogger(global)
	t.Cleanup(func() { SetLogger(nil) })

	require.NoError(t, AggregateErrors(nil, "tick", []error{nil, nil}))
	require.Zero(t, global.errors)

	missing := errs.Tag(errs.New("market", errs.CodeMissingBookSide), "BERRIES")
	joined := errors.Join(
		errs.Tag(errs.New("market", errs.CodeMissingBookSide), "DIP"),
		errs.Tag(errs.New("market", errs.CodeMissingBookSide), "UKULELE"),
	)
	plain := errors.New("disk full")

	rec := &recordingLogger{}
	err := AggregateErrors(rec, "tick 7", []error{fmt.Errorf("time_phased:BERRIES: %w", missing), nil, joined, plain},
		Field{Key: "session", Value: "s1"})
	require.Error(t, err)
	require.ErrorIs(t, err, plain)
	require.True(t, errs.HasCode(err, errs.CodeMissingBookSide))
	require.Contains(t, err.Error(), "tick 7 failed")

	require.Equal(t, 1, rec.errors)
	require.Zero(t, global.errors)
	require.Equal(t, []Field{
		{Key: "session", Value: "s1"},
		{Key: "operation", Value: "tick 7"},
		{Key: "failures", Value: []string{
			"BERRIES:missing_book_side", "DIP:missing_book_side", "UKULELE:missing_book_side", "disk full",
		}},
	}, rec.last)

	require.Error(t, AggregateErrors(nil, "tick", []error{plain}))
	require.Equal(t, 1, global.errors)
}
