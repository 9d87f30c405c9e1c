// Package errors defines the structured error type shared by the task
// runner, the transformation steps and the CLI.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	// ErrorTypeTransform is a Transformation Step failure, usually malformed input.
	ErrorTypeTransform ErrorType = "transform"
	// ErrorTypeIO is a filesystem failure: permissions, missing paths.
	ErrorTypeIO ErrorType = "io"
	// ErrorTypeConfig is an invalid configuration value.
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeTool is an external tool that could not be started.
	ErrorTypeTool ErrorType = "tool"
	// ErrorTypeLint is a lint diagnostic. It is reported, never returned by a task.
	ErrorTypeLint ErrorType = "lint"
	// ErrorTypeInternal is a bug.
	ErrorTypeInternal ErrorType = "internal"
)

// Sentinel errors usable with errors.Is.
var (
	ErrPathEscape     = errors.New("output path escapes destination directory")
	ErrToolNotFound   = errors.New("external tool not found")
	ErrUnknownTask    = errors.New("unknown task")
	ErrGlyphsNotReady = errors.New("glyph metadata was not produced")
)

// PipelineError is a structured error type with task context.
type PipelineError struct {
	Type     ErrorType
	Code     string
	Message  string
	Task     string
	Step     string
	FilePath string
	Cause    error
	Context  map[string]interface{}
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Task != "" {
		scope := "task:" + e.Task
		if e.Step != "" {
			scope += "/" + e.Step
		}
		parts = append(parts, scope)
	}

	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		if result == "" {
			return e.Cause.Error()
		}
		result += ": " + e.Cause.Error()
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is matches another PipelineError by type and code.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithTask records which task (and optionally step) failed.
func (e *PipelineError) WithTask(task, step string) *PipelineError {
	e.Task = task
	e.Step = step

	return e
}

// WithFile records the file being processed.
func (e *PipelineError) WithFile(path string) *PipelineError {
	e.FilePath = path

	return e
}

// NewTransformError creates a Transformation Step error.
func NewTransformError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeTransform,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewLintError creates a lint diagnostic error. Lint errors are logged,
// never returned from a task.
func NewLintError(message string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeLint,
		Code:    "LINT_VIOLATIONS",
		Message: message,
	}
}

// NewToolError creates an error for an external tool that failed to start.
func NewToolError(tool string, cause error) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeTool,
		Code:    "TOOL_UNAVAILABLE",
		Message: tool,
		Cause:   cause,
	}
}

// TypeOf returns the ErrorType of the first PipelineError in err's chain, or
// ErrorTypeInternal when there is none.
func TypeOf(err error) ErrorType {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type
	}

	return ErrorTypeInternal
}

// IsTransformError checks if an error came from a Transformation Step.
func IsTransformError(err error) bool {
	return TypeOf(err) == ErrorTypeTransform
}

// IsIOError checks if an error is filesystem-related.
func IsIOError(err error) bool {
	return TypeOf(err) == ErrorTypeIO
}

// Wrap attaches task and step names to err. PipelineErrors keep their type,
// anything else becomes a transform error. Wrap(nil, ...) is nil.
func Wrap(err error, task, step string) error {
	if err == nil {
		return nil
	}

	var pe *PipelineError
	if errors.As(err, &pe) && pe.Task == "" {
		pe.Task = task
		if pe.Step == "" {
			pe.Step = step
		}
		return err
	}
	if pe != nil {
		return err
	}

	return &PipelineError{
		Type:  ErrorTypeTransform,
		Task:  task,
		Step:  step,
		Cause: err,
	}
}
