// Package errors provides centralized error definitions and error handling
// utilities for the sprintmux codebase. It defines domain-specific errors,
// semantic error types, error constructors with context wrapping, and error
// classification helpers.
//
// # Error Types
//
// The package provides two categories of errors:
//
// Domain-specific errors represent errors from specific subsystems:
//   - SprintError: errors related to sprint tracking and assignment
//   - MergeError: errors related to the merge queue and merge lifecycle
//   - GitError: errors related to git operations (branches, merges, pushes)
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//
// # Usage
//
// Creating errors:
//
//	// Domain-specific error
//	err := errors.NewSprintError("failed to assign sprint", errors.ErrCoderBusy)
//
//	// Semantic error
//	err := errors.NewNotFoundError("sprint", "Auth_Sprint")
//
//	// With context wrapping
//	err := errors.NewGitError("checkout failed", baseErr).WithBranch("sprint/a/auth")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrSprintNotFound) { ... }
//
//	var gitErr *errors.GitError
//	if errors.As(err, &gitErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Sprint-related sentinel errors
var (
	// ErrSprintNotFound indicates that a sprint could not be found.
	ErrSprintNotFound = New("sprint not found")
	// ErrSprintNotAssigned indicates that a sprint has no assigned coder.
	ErrSprintNotAssigned = New("sprint is not assigned")
	// ErrStatusDocMissing indicates that a sprint's status document is absent.
	ErrStatusDocMissing = New("status document missing")
	// ErrCoderNotFound indicates that a coder could not be found.
	ErrCoderNotFound = New("coder not found")
	// ErrCoderBusy indicates that a coder already has an assigned sprint.
	ErrCoderBusy = New("coder is busy")
)

// Merge-related sentinel errors
var (
	// ErrRequestNotFound indicates that a merge request could not be found.
	ErrRequestNotFound = New("merge request not found")
	// ErrRequestTerminal indicates an operation on a request in a terminal state.
	ErrRequestTerminal = New("merge request is in a terminal state")
	// ErrUnknownAction indicates an unrecognized human resolution action.
	ErrUnknownAction = New("unknown resolution action")
	// ErrQueueCorrupted indicates that the persisted merge queue is unreadable.
	ErrQueueCorrupted = New("merge queue state corrupted")
)

// Git-related sentinel errors
var (
	// ErrNotGitRepository indicates that the directory is not a git repository.
	ErrNotGitRepository = New("not a git repository")
	// ErrRepoMissing indicates that a coder's clone directory does not exist.
	ErrRepoMissing = New("coder repository missing")
	// ErrBranchNotFound indicates that a branch could not be found.
	ErrBranchNotFound = New("branch not found")
	// ErrBranchExists indicates that a branch already exists.
	ErrBranchExists = New("branch already exists")
	// ErrMergeConflict indicates that a merge conflict occurred.
	ErrMergeConflict = New("merge conflict")
	// ErrDirtyWorkingTree indicates that the clone has uncommitted changes.
	ErrDirtyWorkingTree = New("working tree has uncommitted changes")
)

// General sentinel errors
var (
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrOperationFailed indicates a general operation failure.
	ErrOperationFailed = New("operation failed")
)

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// SprintError represents errors related to sprint tracking and assignment.
//
// Example:
//
//	err := errors.NewSprintError("failed to assign sprint", errors.ErrCoderBusy)
//	err = err.WithSprint("Auth_Sprint").WithCoder("Coder-A")
type SprintError struct {
	baseError
	SprintName string
	CoderID    string
}

// NewSprintError creates a new SprintError.
func NewSprintError(message string, cause error) *SprintError {
	return &SprintError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithSprint adds a sprint name to the error context.
func (e *SprintError) WithSprint(name string) *SprintError {
	e.SprintName = name
	return e
}

// WithCoder adds a coder ID to the error context.
func (e *SprintError) WithCoder(id string) *SprintError {
	e.CoderID = id
	return e
}

// WithSeverity sets the error severity.
func (e *SprintError) WithSeverity(s Severity) *SprintError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *SprintError) Error() string {
	var parts []string
	if e.SprintName != "" {
		parts = append(parts, fmt.Sprintf("sprint=%s", e.SprintName))
	}
	if e.CoderID != "" {
		parts = append(parts, fmt.Sprintf("coder=%s", e.CoderID))
	}

	prefix := "sprint error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("sprint error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *SprintError) Is(target error) bool {
	if _, ok := target.(*SprintError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// MergeError represents errors related to the merge queue and merge lifecycle.
//
// Example:
//
//	err := errors.NewMergeError("resolution failed", errors.ErrRequestNotFound)
//	err = err.WithRequestID("sprint_merge_1700000000_a_auth-spr")
type MergeError struct {
	baseError
	RequestID  string
	SprintName string
	Branch     string
}

// NewMergeError creates a new MergeError.
func NewMergeError(message string, cause error) *MergeError {
	return &MergeError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithRequestID adds a merge request ID to the error context.
func (e *MergeError) WithRequestID(id string) *MergeError {
	e.RequestID = id
	return e
}

// WithSprint adds a sprint name to the error context.
func (e *MergeError) WithSprint(name string) *MergeError {
	e.SprintName = name
	return e
}

// WithBranch adds a branch name to the error context.
func (e *MergeError) WithBranch(branch string) *MergeError {
	e.Branch = branch
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *MergeError) WithRetryable(r bool) *MergeError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *MergeError) Error() string {
	var parts []string
	if e.RequestID != "" {
		parts = append(parts, fmt.Sprintf("request=%s", e.RequestID))
	}
	if e.SprintName != "" {
		parts = append(parts, fmt.Sprintf("sprint=%s", e.SprintName))
	}
	if e.Branch != "" {
		parts = append(parts, fmt.Sprintf("branch=%s", e.Branch))
	}

	prefix := "merge error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("merge error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *MergeError) Is(target error) bool {
	if _, ok := target.(*MergeError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// GitError represents errors related to git operations.
//
// Example:
//
//	err := errors.NewGitError("merge failed", errors.ErrMergeConflict)
//	err = err.WithBranch("sprint/a/auth-sprint").WithRepository("/path/to/Coder-A")
type GitError struct {
	baseError
	Branch     string
	Repository string
	GitOutput  string // Captured git command output for diagnostics
}

// NewGitError creates a new GitError.
func NewGitError(message string, cause error) *GitError {
	return &GitError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithBranch adds a branch name to the error context.
func (e *GitError) WithBranch(branch string) *GitError {
	e.Branch = branch
	return e
}

// WithRepository adds a repository path to the error context.
func (e *GitError) WithRepository(repo string) *GitError {
	e.Repository = repo
	return e
}

// WithGitOutput adds captured git command output to the error context.
func (e *GitError) WithGitOutput(output string) *GitError {
	e.GitOutput = strings.TrimSpace(output)
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *GitError) WithRetryable(r bool) *GitError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *GitError) Error() string {
	var parts []string
	if e.Branch != "" {
		parts = append(parts, fmt.Sprintf("branch=%s", e.Branch))
	}
	if e.Repository != "" {
		parts = append(parts, fmt.Sprintf("repo=%s", e.Repository))
	}

	prefix := "git error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("git error [%s]", strings.Join(parts, ", "))
	}

	msg := e.message
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	if e.GitOutput != "" {
		return fmt.Sprintf("%s: %s\ngit output: %s", prefix, msg, e.GitOutput)
	}
	return fmt.Sprintf("%s: %s", prefix, msg)
}

// Is checks if this error matches the target.
func (e *GitError) Is(target error) bool {
	if _, ok := target.(*GitError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError indicates that a requested resource does not exist.
type NotFoundError struct {
	baseError
	Resource string // The type of resource (e.g., "sprint", "coder", "merge request")
	ID       string // The identifier that was looked up
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s not found: %s", resource, id),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		Resource: resource,
		ID:       id,
	}
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	switch e.Resource {
	case "sprint":
		return errors.Is(target, ErrSprintNotFound)
	case "coder":
		return errors.Is(target, ErrCoderNotFound)
	case "merge request":
		return errors.Is(target, ErrRequestNotFound)
	case "branch":
		return errors.Is(target, ErrBranchNotFound)
	}
	return false
}

// ValidationError indicates invalid input or state.
type ValidationError struct {
	baseError
	Field string // The field that failed validation
	Value string // The invalid value (may be empty for sensitive data)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, value, reason string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    fmt.Sprintf("validation failed for %s: %s", field, reason),
			cause:      ErrInvalidInput,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		Field: field,
		Value: value,
	}
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	return errors.Is(target, ErrInvalidInput)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// classifier is implemented by errors that carry classification metadata.
type classifier interface {
	Severity() Severity
	IsRetryable() bool
	IsUserFacing() bool
}

// IsRetryable returns true if the error is transient and the operation
// may succeed on retry.
func IsRetryable(err error) bool {
	var c classifier
	if errors.As(err, &c) {
		return c.IsRetryable()
	}
	return false
}

// IsUserFacing returns true if the error message is safe to display to users.
func IsUserFacing(err error) bool {
	var c classifier
	if errors.As(err, &c) {
		return c.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity of an error.
// Unclassified errors default to SeverityError.
func GetSeverity(err error) Severity {
	var c classifier
	if errors.As(err, &c) {
		return c.Severity()
	}
	return SeverityError
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return true
	}
	return errors.Is(err, ErrSprintNotFound) ||
		errors.Is(err, ErrCoderNotFound) ||
		errors.Is(err, ErrRequestNotFound) ||
		errors.Is(err, ErrBranchNotFound)
}
