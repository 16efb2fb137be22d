package errors

import (
	"fmt"
	"sync"
	"time"
)

// BuildError is one diagnostic reported by the compiler for an asset.
type BuildError struct {
	Source    string
	File      string
	Line      int
	Column    int
	Message   string
	Severity  ErrorSeverity
	Timestamp time.Time
}

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	ErrorSeverityInfo ErrorSeverity = iota
	ErrorSeverityWarning
	ErrorSeverityError
)

// String returns the string representation of the severity
func (s ErrorSeverity) String() string {
	switch s {
	case ErrorSeverityInfo:
		return "info"
	case ErrorSeverityWarning:
		return "warning"
	case ErrorSeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Error implements the error interface
func (be *BuildError) Error() string {
	if be.File == "" {
		return fmt.Sprintf("%s: %s", be.Severity, be.Message)
	}

	return fmt.Sprintf("%s:%d:%d: %s: %s", be.File, be.Line, be.Column, be.Severity, be.Message)
}

// ErrorCollector collects build diagnostics keyed by the asset that produced them.
// A rebuild of an asset replaces its previous diagnostics.
type ErrorCollector struct {
	errors map[string][]BuildError
	mutex  sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		errors: make(map[string][]BuildError),
	}
}

// Set replaces the diagnostics recorded for source.
func (ec *ErrorCollector) Set(source string, errs []BuildError) {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()

	if len(errs) == 0 {
		delete(ec.errors, source)

		return
	}

	now := time.Now()
	stamped := make([]BuildError, len(errs))
	for i, err := range errs {
		err.Source = source
		err.Timestamp = now
		stamped[i] = err
	}
	ec.errors[source] = stamped
}

// Clear drops the diagnostics recorded for source.
func (ec *ErrorCollector) Clear(source string) {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	delete(ec.errors, source)
}

// GetErrors returns a copy of every recorded diagnostic.
func (ec *ErrorCollector) GetErrors() []BuildError {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	var result []BuildError
	for _, errs := range ec.errors {
		result = append(result, errs...)
	}

	return result
}

// HasErrors reports whether any diagnostic of error severity is recorded.
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	for _, errs := range ec.errors {
		for _, err := range errs {
			if err.Severity == ErrorSeverityError {
				return true
			}
		}
	}

	return false
}
