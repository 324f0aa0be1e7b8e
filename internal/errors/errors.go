// Package errors provides a lightweight structured error type (PipelineError)
// for category-based classification in the build pipeline and CLI.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Category represents the category of a pipeline error for classification.
type Category string

const (
	// User-facing configuration and input errors.
	CategoryConfig     Category = "config"
	CategoryValidation Category = "validation"

	// Build and processing errors.
	CategoryBuild      Category = "build"
	CategoryCustody    Category = "custody"
	CategoryFileSystem Category = "filesystem"
	CategoryState      Category = "state"

	// External system integration errors.
	CategoryNetwork Category = "network"
	CategoryGit     Category = "git"

	// Runtime and infrastructure errors.
	CategoryInternal Category = "internal"
)

// Severity indicates how critical an error is.
type Severity string

const (
	SeverityFatal   Severity = "fatal"   // Stops execution
	SeverityError   Severity = "error"   // Error, but not fatal
	SeverityWarning Severity = "warning" // Continues with degraded functionality
)

// ContextFields carries structured context for PipelineError.
type ContextFields map[string]any

// PipelineError is a structured error with category, severity, and context.
type PipelineError struct {
	Category Category      `json:"category"`
	Severity Severity      `json:"severity"`
	Message  string        `json:"message"`
	Cause    error         `json:"cause,omitempty"`
	Context  ContextFields `json:"context,omitempty"`
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *PipelineError) WithContext(key string, value any) *PipelineError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new PipelineError.
func New(category Category, severity Severity, message string) *PipelineError {
	return &PipelineError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new PipelineError that wraps an existing error.
func Wrap(err error, category Category, severity Severity, message string) *PipelineError {
	return &PipelineError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// IsFatal reports whether err is (or wraps) a fatal PipelineError.
func IsFatal(err error) bool {
	var pe *PipelineError
	if !stderrors.As(err, &pe) {
		return false
	}
	return pe.Severity == SeverityFatal
}
