// Package errors provides the structured error types used across htmlc.
//
// Every failure raised while mirroring a source tree is a *BuildError
// carrying the failing operation, the path it touched and an ErrorType that
// drives how the CLI reports it and which exit code it maps to.
package errors

import (
	"errors"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeIO       ErrorType = "io"
	ErrorTypeRender   ErrorType = "render"
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypeInternal ErrorType = "internal"
)

// Operations recorded on a BuildError.
const (
	OpReadDir   = "readdir"
	OpStat      = "stat"
	OpMkdir     = "mkdir"
	OpRemoveAll = "removeall"
	OpRender    = "render"
	OpWrite     = "write"
	OpLoad      = "load"
)

// BuildError is a structured error type with context.
type BuildError struct {
	Type    ErrorType
	Op      string
	Path    string
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Path != "" {
		parts = append(parts, e.Path)
	}

	result := strings.Join(parts, " ")
	if e.Message != "" {
		if result != "" {
			result += ": "
		}
		result += e.Message
	}

	if e.Cause != nil {
		if result != "" {
			result += ": "
		}
		result += e.Cause.Error()
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *BuildError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *BuildError) Is(target error) bool {
	var t *BuildError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Op == t.Op
	}

	return false
}

// WithContext adds context information to the error.
func (e *BuildError) WithContext(key string, value interface{}) *BuildError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// Fields flattens the error into key/value pairs for structured logging.
func (e *BuildError) Fields() []interface{} {
	fields := []interface{}{"error_type", string(e.Type), "op", e.Op}
	if e.Path != "" {
		fields = append(fields, "path", e.Path)
	}
	for k, v := range e.Context {
		fields = append(fields, k, v)
	}

	return fields
}

// NewIOError creates an I/O error.
func NewIOError(op, path string, cause error) *BuildError {
	return &BuildError{
		Type:  ErrorTypeIO,
		Op:    op,
		Path:  path,
		Cause: cause,
	}
}

// NewRenderError creates a render error.
func NewRenderError(path string, cause error) *BuildError {
	return &BuildError{
		Type:  ErrorTypeRender,
		Op:    OpRender,
		Path:  path,
		Cause: cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(message string, cause error) *BuildError {
	return &BuildError{
		Type:    ErrorTypeConfig,
		Op:      OpLoad,
		Message: message,
		Cause:   cause,
	}
}

// NewDestinationError creates the configuration error raised when the
// destination root cannot be reset.
func NewDestinationError(op, path string, cause error) *BuildError {
	return &BuildError{
		Type:  ErrorTypeConfig,
		Op:    op,
		Path:  path,
		Cause: cause,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(message string, cause error) *BuildError {
	return &BuildError{
		Type:    ErrorTypeInternal,
		Message: message,
		Cause:   cause,
	}
}

// TypeOf returns the ErrorType of the first BuildError in err's chain, or
// ErrorTypeInternal when there is none.
func TypeOf(err error) ErrorType {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Type
	}

	return ErrorTypeInternal
}

// IsRenderError reports whether any error in err's tree came from the
// template engine.
func IsRenderError(err error) bool {
	return hasType(err, ErrorTypeRender)
}

// IsIOError reports whether any error in err's tree came from a filesystem
// primitive.
func IsIOError(err error) bool {
	return hasType(err, ErrorTypeIO)
}

// IsConfigError reports whether any error in err's tree is
// configuration-related.
func IsConfigError(err error) bool {
	return hasType(err, ErrorTypeConfig)
}

// hasType walks err's whole tree, including every member of a joined
// error, looking for a BuildError of type t.
func hasType(err error, t ErrorType) bool {
	if err == nil {
		return false
	}
	if be, ok := err.(*BuildError); ok && be.Type == t {
		return true
	}

	switch x := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range x.Unwrap() {
			if hasType(e, t) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return hasType(x.Unwrap(), t)
	}

	return false
}
