// Package errors provides the structured error taxonomy shared by the
// resolver, builder, watcher, server and task runner.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypeResolve  ErrorType = "resolve"
	ErrorTypeBuild    ErrorType = "build"
	ErrorTypeWatch    ErrorType = "watch"
	ErrorTypeProcess  ErrorType = "process"
	ErrorTypeTask     ErrorType = "task"
	ErrorTypeSecurity ErrorType = "security"
	ErrorTypeInternal ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeInvalidOption     = "ERR_INVALID_OPTION"
	ErrCodeMissingArgument   = "ERR_MISSING_ARGUMENT"
	ErrCodeUnmappedExtension = "ERR_UNMAPPED_EXTENSION"
	ErrCodeBuildFailed       = "ERR_BUILD_FAILED"
	ErrCodeWatchFailed       = "ERR_WATCH_FAILED"
	ErrCodeSpawnFailed       = "ERR_SPAWN_FAILED"
	ErrCodeTerminateFailed   = "ERR_TERMINATE_FAILED"
	ErrCodePathTraversal     = "ERR_PATH_TRAVERSAL"
	ErrCodeTaskNotFound      = "ERR_TASK_NOT_FOUND"
	ErrCodeTaskFailed        = "ERR_TASK_FAILED"
)

// HammerError is a structured error type with context.
type HammerError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Path        string
	Option      string
	Recoverable bool
}

// Error implements the error interface.
func (e *HammerError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.Option != "" {
		parts = append(parts, "option:"+e.Option)
	}
	if e.Path != "" {
		parts = append(parts, e.Path)
	}

	parts = append(parts, e.Message)
	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *HammerError) Unwrap() error {
	return e.Cause
}

// Is matches on type and code so callers can compare against a template error.
func (e *HammerError) Is(target error) bool {
	var t *HammerError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithPath adds the file the error refers to.
func (e *HammerError) WithPath(path string) *HammerError {
	e.Path = path

	return e
}

// NewConfigError reports a bad or missing option. The command is aborted.
func NewConfigError(option, message string) *HammerError {
	code := ErrCodeInvalidOption
	if strings.HasPrefix(message, "missing") {
		code = ErrCodeMissingArgument
	}

	return &HammerError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Option:  option,
		Message: message,
	}
}

// NewResolveError creates a resolution error. These are fatal for the pass.
func NewResolveError(code, message string) *HammerError {
	return &HammerError{
		Type:    ErrorTypeResolve,
		Code:    code,
		Message: message,
	}
}

// NewBuildError creates a build error.
func NewBuildError(message string, cause error) *HammerError {
	return &HammerError{
		Type:        ErrorTypeBuild,
		Code:        ErrCodeBuildFailed,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewWatchError creates a watch error. Watch errors are logged and skipped.
func NewWatchError(message string, cause error) *HammerError {
	return &HammerError{
		Type:        ErrorTypeWatch,
		Code:        ErrCodeWatchFailed,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewProcessError creates a process supervision error.
func NewProcessError(code, message string, cause error) *HammerError {
	return &HammerError{
		Type:        ErrorTypeProcess,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewSecurityError creates a security error.
func NewSecurityError(code, message string) *HammerError {
	return &HammerError{
		Type:    ErrorTypeSecurity,
		Code:    code,
		Message: message,
	}
}

// NewTaskError creates a task runner error.
func NewTaskError(code, message string, cause error) *HammerError {
	return &HammerError{
		Type:    ErrorTypeTask,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var he *HammerError
	if errors.As(err, &he) {
		return he.Recoverable
	}

	return false
}

// IsConfigError checks if an error is a configuration error.
func IsConfigError(err error) bool {
	var he *HammerError
	if errors.As(err, &he) {
		return he.Type == ErrorTypeConfig
	}

	return false
}
