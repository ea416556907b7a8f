package model

import (
	"errors"
	"fmt"
)

// ConfigurationError is a fatal problem with the static inputs of a run:
// topology, PV sources or configuration values. No step is simulated after it.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string { return fmt.Sprintf("configuration: %s: %v", e.Op, e.Err) }

func (e *ConfigurationError) Unwrap() error { return e.Err }

// DataAlignmentError reports time series that cannot be put on one index.
type DataAlignmentError struct {
	Op  string
	Err error
}

func (e *DataAlignmentError) Error() string { return fmt.Sprintf("alignment: %s: %v", e.Op, e.Err) }

func (e *DataAlignmentError) Unwrap() error { return e.Err }

// ErrExportFormatUnavailable is returned by writers whose format cannot be
// produced. Exporters recover by falling back to delimited text.
var ErrExportFormatUnavailable = errors.New("export format unavailable")

// Configf builds a ConfigurationError with a formatted cause.
func Configf(op, format string, args ...any) error {
	return &ConfigurationError{Op: op, Err: fmt.Errorf(format, args...)}
}

// Alignf builds a DataAlignmentError with a formatted cause.
func Alignf(op, format string, args ...any) error {
	return &DataAlignmentError{Op: op, Err: fmt.Errorf(format, args...)}
}

// ErrorKind returns the taxonomy label of err, used as a monitoring tag.
func ErrorKind(err error) string {
	var ce *ConfigurationError
	var ae *DataAlignmentError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ce):
		return "configuration"
	case errors.As(err, &ae):
		return "data_alignment"
	default:
		return "runtime"
	}
}

func errUnknownOutcome(s string) error { return fmt.Errorf("unknown outcome %q", s) }
