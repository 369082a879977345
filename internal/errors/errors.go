// Package errors provides a lightweight structured error type (WikiGenError)
// for category-based classification and retry semantics across the orchestrator.
package errors

import (
	"fmt"
)

// ErrorCategory represents the category of a wikigen error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// External system integration errors
	CategoryNetwork    ErrorCategory = "network"
	CategoryRepository ErrorCategory = "repository"

	// Wiki generation cycle errors
	CategoryCache      ErrorCategory = "cache"
	CategoryStructure  ErrorCategory = "structure"
	CategoryGeneration ErrorCategory = "generation"
	CategoryPersist    ErrorCategory = "persist"
	CategoryExport     ErrorCategory = "export"

	// Runtime and infrastructure errors
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops the generation cycle
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// WikiGenError is a structured error with category, retryability, and context
type WikiGenError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for WikiGenError
type ContextFields map[string]any

// Error implements the error interface
func (e *WikiGenError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *WikiGenError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *WikiGenError) WithContext(key string, value any) *WikiGenError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new WikiGenError
func New(category ErrorCategory, severity ErrorSeverity, message string) *WikiGenError {
	return &WikiGenError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Retryable: false,
	}
}

// Wrap creates a new WikiGenError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *WikiGenError {
	return &WikiGenError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: false,
	}
}

// Retryable creates a new retryable WikiGenError
func Retryable(category ErrorCategory, severity ErrorSeverity, message string) *WikiGenError {
	return &WikiGenError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Retryable: true,
	}
}

// WrapRetryable creates a new retryable WikiGenError that wraps an existing error
func WrapRetryable(err error, category ErrorCategory, severity ErrorSeverity, message string) *WikiGenError {
	return &WikiGenError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if wge, ok := err.(*WikiGenError); ok {
		return wge.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if wge, ok := err.(*WikiGenError); ok {
		return wge.Retryable
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a WikiGenError
func GetCategory(err error) ErrorCategory {
	if wge, ok := err.(*WikiGenError); ok {
		return wge.Category
	}
	return CategoryInternal
}
