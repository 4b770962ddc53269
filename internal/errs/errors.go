package errs

import (
	"errors"
	"fmt"
)

// ConfigError reports an invalid or missing configuration value. It is raised
// before any computation starts.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid configuration"
	}
	if e.Value != nil {
		return fmt.Sprintf("invalid config %s=%v: %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// DataError reports a dataset that cannot be analyzed or modeled as given.
// Column is empty when the condition applies to the whole dataset.
type DataError struct {
	Column    string
	Condition string
}

func (e *DataError) Error() string {
	if e == nil {
		return "invalid data"
	}
	if e.Column != "" {
		return fmt.Sprintf("data validation failed for column %q: %s", e.Column, e.Condition)
	}
	return fmt.Sprintf("data validation failed: %s", e.Condition)
}

// Config is a shorthand constructor for ConfigError.
func Config(field string, value any, reason string) error {
	return &ConfigError{Field: field, Value: value, Reason: reason}
}

// Data is a shorthand constructor for DataError.
func Data(column, format string, args ...any) error {
	return &DataError{Column: column, Condition: fmt.Sprintf(format, args...)}
}

// IsConfig reports whether err wraps a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsData reports whether err wraps a DataError.
func IsData(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}
