package observability

import (
	"errors"
	"fmt"

	"github.com/coachpo/prosperity/errs"
)

// AggregateErrors joins the failures of one operation into a single error and logs them as one
// entry on logger, or on the global logger when logger is nil. Structured failures are listed as
// PRODUCT:code labels; anything else is listed by its message.
func AggregateErrors(logger Logger, operation string, failures []error, fields ...Field) error {
	filtered := make([]error, 0, len(failures))
	var labels []string
	for _, err := range failures {
		if err == nil {
			continue
		}
		filtered = append(filtered, err)
		flat := errs.Flatten(err)
		if len(flat) == 0 {
			labels = append(labels, err.Error())
			continue
		}
		for _, e := range flat {
			labels = append(labels, e.Label())
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if logger == nil {
		logger = Log()
	}

	logFields := make([]Field, 0, len(fields)+2)
	logFields = append(logFields, fields...)
	logFields = append(logFields,
		Field{Key: "operation", Value: operation},
		Field{Key: "failures", Value: labels},
	)
	logger.Error("operation failed", logFields...)
	return fmt.Errorf("%s failed: %w", operation, errors.Join(filtered...))
}
