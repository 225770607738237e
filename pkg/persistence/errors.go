package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrFlowNotFound indicates a flow was not found by the given identifier.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrSessionNotFound indicates a session snapshot was not found by the given identifier.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidID indicates an identifier that cannot be used as a storage key.
	ErrInvalidID = errors.New("invalid identifier")

	// ErrLockNotAcquired indicates a turn lock could not be taken before the context expired.
	ErrLockNotAcquired = errors.New("lock not acquired")
)

// FlowError wraps flow-related errors with additional context.
type FlowError struct {
	Op     string // Operation being performed (e.g., "FlowByID", "SaveFlow")
	FlowID string
	Err    error
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("%s operation failed for flow %s: %v", e.Op, e.FlowID, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

func (e *FlowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewFlowError creates a new flow error with context.
func NewFlowError(op, flowID string, err error) *FlowError {
	return &FlowError{Op: op, FlowID: flowID, Err: err}
}

// SessionError wraps session-related errors with additional context.
type SessionError struct {
	Op        string
	SessionID string
	Err       error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s operation failed for session %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func (e *SessionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewSessionError creates a new session error with context.
func NewSessionError(op, sessionID string, err error) *SessionError {
	return &SessionError{Op: op, SessionID: sessionID, Err: err}
}

// IsFlowNotFound checks if an error indicates a flow was not found.
func IsFlowNotFound(err error) bool {
	return errors.Is(err, ErrFlowNotFound)
}

// IsSessionNotFound checks if an error indicates a session was not found.
func IsSessionNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}

// IsNotFound checks for either kind of missing record.
func IsNotFound(err error) bool {
	return IsFlowNotFound(err) || IsSessionNotFound(err)
}
