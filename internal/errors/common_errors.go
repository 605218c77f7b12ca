package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// Common error codes
const (
	// Configuration error codes
	CodeConfigMissingRoot    = "001"
	CodeConfigInvalidPattern = "002"
	CodeConfigInvalidTask    = "003"
	CodeConfigParse          = "004"
	CodeConfigUnknownTask    = "005"
	CodeConfigInvalidValue   = "006"

	// Graph error codes
	CodeGraphCycle             = "001"
	CodeGraphDuplicateName     = "001"
	CodeGraphUnknownDependency = "001"

	// Transform error codes
	CodeTransformFailed  = "001"
	CodeTransformUnknown = "002"
	CodeTransformTimeout = "001"

	// Watch error codes
	CodeWatchUnavailable = "001"
	CodeWatchPath        = "002"
	CodeWatchServer      = "003"
)

// Exit codes returned by the CLI, one per failure class
const (
	ExitSuccess       = 0
	ExitTaskFailure   = 1
	ExitInvalidUsage  = 2
	ExitConfigError   = 3
	ExitWatchError    = 4
	ExitInternalError = 5
)

// NewMissingRootError creates an error for a filesystem root that does not exist
func NewMissingRootError(root string, originalErr error) *BuildError {
	return NewConfigurationError(CodeConfigMissingRoot,
		fmt.Sprintf("Root directory '%s' does not exist", root),
		"FileSet resolution").
		WithContext("root", root).
		WithOriginalError(originalErr).
		WithTroubleshooting(
			"Check the 'root' attribute of the configuration file",
			"Relative roots are resolved against the configuration file's directory",
		)
}

// NewInvalidPatternError creates an error for a glob pattern that cannot be parsed
func NewInvalidPatternError(pattern string) *BuildError {
	return NewConfigurationError(CodeConfigInvalidPattern,
		fmt.Sprintf("Invalid glob pattern '%s'", pattern),
		"FileSet validation").
		WithContext("pattern", pattern).
		WithTroubleshooting(
			"Patterns use shell glob syntax with '**' for recursive directories",
			"Alternation uses braces, e.g. 'app/**/*.{js,css}'",
		)
}

// NewInvalidTaskError creates an error for a malformed task declaration
func NewInvalidTaskError(task, reason string) *BuildError {
	return NewConfigurationError(CodeConfigInvalidTask,
		fmt.Sprintf("Invalid task '%s': %s", task, reason),
		"Task declaration").
		WithContext("task", task)
}

// NewConfigParseError creates an error for a configuration document that cannot be read
func NewConfigParseError(path string, originalErr error) *BuildError {
	return NewConfigurationError(CodeConfigParse,
		fmt.Sprintf("Failed to load configuration '%s'", path),
		"Configuration loading").
		WithContext("path", path).
		WithOriginalError(originalErr).
		WithTroubleshooting(
			"Verify the file exists or pass --config with the correct path",
			"Check the HCL syntax near the reported line",
		)
}

// NewUnknownTaskError creates an error for a task name requested on the command line
// or by the watcher that is not declared in the graph
func NewUnknownTaskError(name string) *BuildError {
	return NewConfigurationError(CodeConfigUnknownTask,
		fmt.Sprintf("Unknown task '%s'", name),
		"Task selection").
		WithContext("task", name).
		WithTroubleshooting("Run 'assetpipe graph' to list the declared tasks")
}

// NewInvalidValueError creates an error for a configuration value that fails validation
func NewInvalidValueError(field, value, reason string) *BuildError {
	return NewConfigurationError(CodeConfigInvalidValue,
		fmt.Sprintf("Invalid value for %s: '%s' (%s)", field, value, reason),
		"Configuration validation").
		WithContext("field", field).
		WithContext("value", value)
}

// NewCycleError creates an error naming the tasks that form a dependency cycle.
// members lists the cycle in edge order with the first task repeated at the end.
func NewCycleError(members []string) *BuildError {
	return NewBuildError(ErrorCategoryCycle, CodeGraphCycle,
		fmt.Sprintf("Dependency cycle: %s", strings.Join(members, " -> ")),
		"Task graph construction").
		WithContext("cycle", members).
		WithTroubleshooting(
			"Remove one of the depends_on entries along the cycle",
		)
}

// CycleMembers returns the cycle recorded on a CycleError, or nil
func CycleMembers(err error) []string {
	buildErr, ok := AsBuildError(err)
	if !ok || buildErr.Category != ErrorCategoryCycle {
		return nil
	}
	members, _ := buildErr.Context["cycle"].([]string)
	return members
}

// NewDuplicateNameError creates an error for two tasks sharing a name
func NewDuplicateNameError(name string) *BuildError {
	return NewBuildError(ErrorCategoryDuplicateName, CodeGraphDuplicateName,
		fmt.Sprintf("Task name '%s' is declared more than once", name),
		"Task graph construction").
		WithContext("task", name)
}

// NewUnknownDependencyError creates an error for a depends_on entry that names no task
func NewUnknownDependencyError(task, missing string) *BuildError {
	return NewBuildError(ErrorCategoryUnknownDependency, CodeGraphUnknownDependency,
		fmt.Sprintf("Task '%s' depends on unknown task '%s'", task, missing),
		"Task graph construction").
		WithContext("task", task).
		WithContext("dependency", missing)
}

// NewTransformFailedError creates an error for a transform that reported failure
func NewTransformFailedError(task, transform string, originalErr error) *BuildError {
	return NewTransformError(CodeTransformFailed,
		fmt.Sprintf("Task '%s' failed in transform '%s'", task, transform),
		"Transform execution").
		WithContext("task", task).
		WithContext("transform", transform).
		WithOriginalError(originalErr)
}

// NewUnknownTransformError creates an error for a transform name with no registered variant
func NewUnknownTransformError(task, transform string, known []string) *BuildError {
	return NewConfigurationError(CodeConfigInvalidTask,
		fmt.Sprintf("Task '%s' uses unknown transform '%s'", task, transform),
		"Task declaration").
		WithContext("task", task).
		WithContext("transform", transform).
		WithTroubleshooting(fmt.Sprintf("Known transforms: %s", strings.Join(known, ", ")))
}

// NewTimeoutError creates an error for a task exceeding its timeout
func NewTimeoutError(task string, timeout time.Duration) *BuildError {
	return NewBuildError(ErrorCategoryTimeout, CodeTransformTimeout,
		fmt.Sprintf("Task '%s' timed out after %s", task, timeout),
		"Transform execution").
		WithContext("task", task).
		WithContext("timeout", timeout.String()).
		WithTroubleshooting(
			"Raise the task's 'timeout' attribute or pass a larger --timeout",
		)
}

// NewWatcherUnavailableError creates an error for a filesystem notification subsystem that cannot start
func NewWatcherUnavailableError(originalErr error) *BuildError {
	return NewWatchError(CodeWatchUnavailable,
		"Filesystem notifications are unavailable",
		"Watcher startup").
		WithOriginalError(originalErr).
		WithTroubleshooting(
			"On Linux, raise fs.inotify.max_user_watches",
			"Use 'assetpipe build' for one-shot builds",
		)
}

// NewWatchPathError creates an error for a directory the watcher cannot register
func NewWatchPathError(path string, originalErr error) *BuildError {
	return NewWatchError(CodeWatchPath,
		fmt.Sprintf("Cannot watch '%s'", path),
		"Watcher registration").
		WithContext("path", path).
		WithOriginalError(originalErr)
}

// NewServerStartError creates an error for a development server that cannot listen
func NewServerStartError(addr string, originalErr error) *BuildError {
	return NewWatchError(CodeWatchServer,
		fmt.Sprintf("Cannot start development server on '%s'", addr),
		"Server startup").
		WithContext("address", addr).
		WithOriginalError(originalErr).
		WithTroubleshooting(
			"Pick another port with --port or the server block's 'port' attribute",
			"Pass --no-serve to watch without serving",
		)
}

// IsTransformFailure reports whether err is a transform failure, timeouts included
func IsTransformFailure(err error) bool {
	return IsCategory(err, ErrorCategoryTransform) || IsCategory(err, ErrorCategoryTimeout)
}

// IsConfigurationFailure reports whether err aborts the run before any task starts
func IsConfigurationFailure(err error) bool {
	buildErr, ok := AsBuildError(err)
	if !ok {
		return false
	}
	switch buildErr.Category {
	case ErrorCategoryConfiguration, ErrorCategoryCycle, ErrorCategoryDuplicateName, ErrorCategoryUnknownDependency:
		return true
	}
	return false
}

// UsageError marks a malformed command line: unknown flags, bad arguments
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }

func (e *UsageError) Unwrap() error { return e.Err }

// NewUsageError wraps err as an invalid invocation
func NewUsageError(err error) error {
	if err == nil {
		return nil
	}
	return &UsageError{Err: err}
}

// ExitCode maps an error to the CLI exit code of its failure class
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var usage *UsageError
	switch {
	case stderrors.As(err, &usage):
		return ExitInvalidUsage
	case IsConfigurationFailure(err):
		return ExitConfigError
	case IsTransformFailure(err):
		return ExitTaskFailure
	case IsCategory(err, ErrorCategoryWatch):
		return ExitWatchError
	}
	return ExitInternalError
}
