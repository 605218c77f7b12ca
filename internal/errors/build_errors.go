package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCategory represents the category of error
type ErrorCategory string

const (
	// ErrorCategoryConfiguration represents malformed declarations, missing roots and bad flags
	ErrorCategoryConfiguration ErrorCategory = "CONFIGURATION"
	// ErrorCategoryCycle represents dependency cycles in the task graph
	ErrorCategoryCycle ErrorCategory = "CYCLE"
	// ErrorCategoryDuplicateName represents two tasks declared with the same name
	ErrorCategoryDuplicateName ErrorCategory = "DUPLICATE_NAME"
	// ErrorCategoryUnknownDependency represents depends_on entries naming absent tasks
	ErrorCategoryUnknownDependency ErrorCategory = "UNKNOWN_DEPENDENCY"
	// ErrorCategoryTransform represents a transform reporting failure
	ErrorCategoryTransform ErrorCategory = "TRANSFORM"
	// ErrorCategoryTimeout represents a transform exceeding its time budget
	ErrorCategoryTimeout ErrorCategory = "TIMEOUT"
	// ErrorCategoryWatch represents failures of the filesystem notification subsystem
	ErrorCategoryWatch ErrorCategory = "WATCH"
)

// BuildError represents a structured error with context and troubleshooting information
type BuildError struct {
	Category        ErrorCategory
	Code            string
	Message         string
	Operation       string
	Context         map[string]interface{}
	Troubleshooting []string
	OriginalError   error
}

// Error implements the error interface
func (e *BuildError) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s-%s: %s", e.Category, e.Code, e.Message))

	if e.OriginalError != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.OriginalError))
	}

	return sb.String()
}

// Unwrap returns the original error for error chain compatibility
func (e *BuildError) Unwrap() error {
	return e.OriginalError
}

// NewBuildError creates a new build error with the specified parameters
func NewBuildError(category ErrorCategory, code, message, operation string) *BuildError {
	return &BuildError{
		Category:        category,
		Code:            code,
		Message:         message,
		Operation:       operation,
		Context:         make(map[string]interface{}),
		Troubleshooting: []string{},
	}
}

// WithContext adds context information to the error
func (e *BuildError) WithContext(key string, value interface{}) *BuildError {
	e.Context[key] = value
	return e
}

// WithTroubleshooting adds troubleshooting steps to the error
func (e *BuildError) WithTroubleshooting(steps ...string) *BuildError {
	e.Troubleshooting = append(e.Troubleshooting, steps...)
	return e
}

// WithOriginalError adds the original error to the build error
func (e *BuildError) WithOriginalError(err error) *BuildError {
	e.OriginalError = err
	return e
}

// ContextKeys returns the context keys in sorted order
func (e *BuildError) ContextKeys() []string {
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AsBuildError extracts the first BuildError in err's chain
func AsBuildError(err error) (*BuildError, bool) {
	var buildErr *BuildError
	if stderrors.As(err, &buildErr) {
		return buildErr, true
	}
	return nil, false
}

// IsCategory reports whether err carries a BuildError of the given category
func IsCategory(err error, category ErrorCategory) bool {
	buildErr, ok := AsBuildError(err)
	return ok && buildErr.Category == category
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(code, message, operation string) *BuildError {
	return NewBuildError(ErrorCategoryConfiguration, code, message, operation)
}

// NewTransformError creates a new transform error
func NewTransformError(code, message, operation string) *BuildError {
	return NewBuildError(ErrorCategoryTransform, code, message, operation)
}

// NewWatchError creates a new watch error
func NewWatchError(code, message, operation string) *BuildError {
	return NewBuildError(ErrorCategoryWatch, code, message, operation)
}
