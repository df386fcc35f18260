package engine

import (
	"errors"
	"fmt"
)

// ErrorKind identifies the category of an engine error.
type ErrorKind string

const (
	// KindConcurrentExecution means the owner already has a running
	// execution. Recoverable; the caller must stop it first.
	KindConcurrentExecution ErrorKind = "concurrent_execution"
	// KindNotRunning means a stop was requested for an execution that is
	// not currently running.
	KindNotRunning ErrorKind = "not_running"
	// KindNotFound means the execution does not exist or is not visible
	// to the caller.
	KindNotFound ErrorKind = "not_found"
	// KindUnsupportedLanguage means no runtime is registered for the
	// requested language tag.
	KindUnsupportedLanguage ErrorKind = "unsupported_language"
	// KindSpawn means workspace setup or process start failed before the
	// script ran.
	KindSpawn ErrorKind = "spawn"
	// KindTimeout means the execution exceeded its wall-clock limit and
	// was killed.
	KindTimeout ErrorKind = "timeout"
)

// Error is a tagged engine error carrying a kind plus context.
type Error struct {
	Kind        ErrorKind
	ExecutionID string
	Message     string
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by kind so callers can use errors.Is with a bare
// &Error{Kind: ...} probe.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

func newConcurrentExecutionError(blockingID string) *Error {
	return &Error{
		Kind:        KindConcurrentExecution,
		ExecutionID: blockingID,
		Message:     fmt.Sprintf("another execution is already running: %s", blockingID),
	}
}

func newNotRunningError(execID string) *Error {
	return &Error{
		Kind:        KindNotRunning,
		ExecutionID: execID,
		Message:     fmt.Sprintf("execution %s is not running", execID),
	}
}

func newNotFoundError(execID string) *Error {
	return &Error{
		Kind:        KindNotFound,
		ExecutionID: execID,
		Message:     fmt.Sprintf("execution not found: %s", execID),
	}
}

func newUnsupportedLanguageError(language string) *Error {
	return &Error{
		Kind:    KindUnsupportedLanguage,
		Message: fmt.Sprintf("unsupported language: %s", language),
	}
}

// KindOf returns the kind of an engine error, or the empty string for
// non-engine errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ExecutionIDOf returns the execution id attached to an engine error,
// if any.
func ExecutionIDOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.ExecutionID
	}
	return ""
}
