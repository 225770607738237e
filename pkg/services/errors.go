// Package services wraps the engine and the stores with the flow lifecycle and session turn operations.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/chatflow/pkg/engine"
	"github.com/dukex/chatflow/pkg/flowvalidator"
	"github.com/dukex/chatflow/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInvalidStatus      = errors.New("invalid flow status")
	ErrFlowNil            = errors.New("flow cannot be nil")
	ErrFlowNameRequired   = errors.New("flow name is required")
	ErrFlowInvalid        = errors.New("flow is not valid")
	ErrTransferTargetMiss = errors.New("transfer target is required")

	// Business Logic Conflicts (409 Conflict).
	ErrCannotModifyPublished = errors.New("only draft flows can be modified")
	ErrInvalidTransition     = errors.New("invalid flow status transition")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// InvalidFlowError carries the validator findings that blocked a publish.
type InvalidFlowError struct {
	FlowID string
	Result flowvalidator.Result
}

func (e *InvalidFlowError) Error() string {
	return fmt.Sprintf("flow %s is not valid: %s", e.FlowID, e.Result.Summary())
}

func (e *InvalidFlowError) Is(target error) bool {
	return target == ErrFlowInvalid
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrFlowNil) ||
		errors.Is(err, ErrFlowNameRequired) ||
		errors.Is(err, ErrFlowInvalid) ||
		errors.Is(err, ErrTransferTargetMiss) ||
		errors.Is(err, persistence.ErrInvalidID)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrCannotModifyPublished) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, engine.ErrFlowNotPublished) ||
		errors.Is(err, engine.ErrSessionNotActive) ||
		errors.Is(err, engine.ErrNoEntryNode) ||
		errors.Is(err, persistence.ErrLockNotAcquired)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsNotFound(err) || errors.Is(err, engine.ErrFlowNotFound)
}
