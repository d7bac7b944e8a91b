// Package errors defines pimgr's sentinel errors, its typed errors for
// command, database, validation and lookup failures, and helpers that
// classify an error for display or retry.
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrCommandTimeout) { ... }
//
//	var cmdErr *errors.CommandError
//	if errors.As(err, &cmdErr) {
//	    fmt.Println(cmdErr.Stderr)
//	}
//
//	if errors.IsUserFacing(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-exported so callers only need this package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Sentinel errors.
var (
	// ErrNotConfigured means the Pi-hole connection has not been set up yet.
	ErrNotConfigured = New("pihole manager is not configured")
	// ErrRouterDisabled means router integration is switched off.
	ErrRouterDisabled = New("router integration is disabled")
	// ErrCommandFailed means an external command exited non-zero.
	ErrCommandFailed = New("command failed")
	// ErrCommandTimeout means an external command was killed after its deadline.
	ErrCommandTimeout = New("command timed out")
	// ErrDatabaseUnavailable means a Pi-hole database could not be opened.
	ErrDatabaseUnavailable = New("pihole database unavailable")
	// ErrRuleNotFound means no content filter rule has the requested ID.
	ErrRuleNotFound = New("filter rule not found")
	// ErrInvalidDomain means a domain or pattern failed validation.
	ErrInvalidDomain = New("invalid domain")
	// ErrStepUnknown means a setup step or module name is not recognised.
	ErrStepUnknown = New("unknown setup step")
	// ErrInvalidInput is the generic validation failure.
	ErrInvalidInput = New("invalid input")
	// ErrCanceled means the operator aborted an interactive flow.
	ErrCanceled = New("operation canceled")
)

// Classified is implemented by every typed error in this package.
type Classified interface {
	error
	Unwrap() error
	IsRetryable() bool
	IsUserFacing() bool
}

type baseError struct {
	message    string
	cause      error
	retryable  bool
	userFacing bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error      { return e.cause }
func (e *baseError) IsRetryable() bool  { return e.retryable }
func (e *baseError) IsUserFacing() bool { return e.userFacing }

func bracket(prefix string, parts []string) string {
	if len(parts) == 0 {
		return prefix
	}
	return fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
}

// CommandError describes a failed external command.
//
//	err := errors.NewCommandError([]string{"pihole", "-g"}, 1, errors.ErrCommandFailed).
//	    WithStderr("could not resolve host")
type CommandError struct {
	baseError
	Argv     []string
	ExitCode int
	Stderr   string
	TimedOut bool
}

// NewCommandError creates a CommandError. Timeouts are retryable.
func NewCommandError(argv []string, exitCode int, cause error) *CommandError {
	timedOut := errors.Is(cause, ErrCommandTimeout)
	return &CommandError{
		baseError: baseError{
			message:    "command failed",
			cause:      cause,
			retryable:  timedOut,
			userFacing: true,
		},
		Argv:     append([]string(nil), argv...),
		ExitCode: exitCode,
		TimedOut: timedOut,
	}
}

// WithStderr attaches the command's error output.
func (e *CommandError) WithStderr(stderr string) *CommandError {
	e.Stderr = strings.TrimSpace(stderr)
	return e
}

func (e *CommandError) Error() string {
	parts := []string{"cmd=" + strings.Join(e.Argv, " ")}
	if !e.TimedOut {
		parts = append(parts, fmt.Sprintf("exit=%d", e.ExitCode))
	}
	msg := bracket("command error", parts) + ": " + e.baseError.Error()
	if e.Stderr != "" {
		msg += "\nstderr: " + e.Stderr
	}
	return msg
}

// Is matches any *CommandError, and ErrCommandFailed for every command
// failure.
func (e *CommandError) Is(target error) bool {
	if _, ok := target.(*CommandError); ok {
		return true
	}
	return target == ErrCommandFailed
}

// DatabaseError describes a failed query against a Pi-hole database.
type DatabaseError struct {
	baseError
	Database string
	Query    string
}

// NewDatabaseError creates a DatabaseError. Locked databases are retryable.
func NewDatabaseError(database, message string, cause error) *DatabaseError {
	retry := cause != nil && strings.Contains(strings.ToLower(cause.Error()), "database is locked")
	return &DatabaseError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			retryable:  retry,
			userFacing: true,
		},
		Database: database,
	}
}

// WithQuery attaches the failing statement.
func (e *DatabaseError) WithQuery(q string) *DatabaseError {
	e.Query = strings.Join(strings.Fields(q), " ")
	return e
}

func (e *DatabaseError) Error() string {
	var parts []string
	if e.Database != "" {
		parts = append(parts, "db="+e.Database)
	}
	return bracket("database error", parts) + ": " + e.baseError.Error()
}

func (e *DatabaseError) Is(target error) bool {
	_, ok := target.(*DatabaseError)
	return ok
}

// NotFoundError means a named resource does not exist.
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a NotFoundError, e.g. ("device", "192.168.1.9").
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause sets the underlying sentinel, e.g. ErrRuleNotFound.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

func (e *NotFoundError) Error() string { return e.message }

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// ValidationError describes one invalid field or value.
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{message: message, userFacing: true},
	}
}

// WithField names the offending field.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue records the offending value.
func (e *ValidationError) WithValue(v any) *ValidationError {
	e.Value = v
	return e
}

// WithCause sets the underlying sentinel, e.g. ErrInvalidDomain.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, "field="+e.Field)
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return bracket("validation error", parts) + ": " + e.message
}

// Is matches any *ValidationError and ErrInvalidInput.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	return target == ErrInvalidInput
}

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var c Classified
	if As(err, &c) {
		return c.IsRetryable()
	}
	return Is(err, ErrCommandTimeout)
}

// IsUserFacing reports whether err's message can be shown to the operator
// as-is.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var c Classified
	if As(err, &c) {
		return c.IsUserFacing()
	}
	for _, s := range []error{ErrNotConfigured, ErrRouterDisabled, ErrRuleNotFound, ErrInvalidDomain, ErrStepUnknown, ErrCanceled} {
		if Is(err, s) {
			return true
		}
	}
	return false
}

// Wrap annotates err with message, returning nil for a nil err.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with formatting.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
