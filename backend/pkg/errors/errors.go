package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeOrchestration represents orchestration/scheduling errors
	ErrorTypeOrchestration ErrorType = "orchestration"
	// ErrorTypeAgent represents agent/LLM-related errors
	ErrorTypeAgent ErrorType = "agent"
	// ErrorTypeTransport represents session/delivery errors
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeHistory represents transcript store errors
	ErrorTypeHistory ErrorType = "history"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Orchestration errors

// ErrAgentBusy is returned when an agent invocation is already in flight
// for the user. Expected contention: callers enqueue instead of retrying.
var ErrAgentBusy = NewBaseError(ErrorTypeOrchestration, "agent already active for user", nil)

// ErrSessionClosed is returned when an operation targets a user whose
// session was already torn down
type ErrSessionClosed struct {
	*BaseError
	UserID string
}

func NewSessionClosed(userID string) *ErrSessionClosed {
	return &ErrSessionClosed{
		BaseError: NewBaseError(ErrorTypeOrchestration, fmt.Sprintf("session closed: %s", userID), nil),
		UserID:    userID,
	}
}

// Agent errors

// ErrInvocationFailed is returned when the completion provider fails
type ErrInvocationFailed struct {
	*BaseError
	AgentKind string
	Attempts  int
}

func NewInvocationFailed(agentKind string, attempts int, err error) *ErrInvocationFailed {
	return &ErrInvocationFailed{
		BaseError: NewBaseError(ErrorTypeAgent, fmt.Sprintf("agent invocation failed after %d attempts", attempts), err),
		AgentKind: agentKind,
		Attempts:  attempts,
	}
}

// ErrAgentNoResponse is returned when the provider returns an empty completion
var ErrAgentNoResponse = NewBaseError(ErrorTypeAgent, "no response from completion provider", nil)

// ErrUnknownAgentKind is returned when a kind is not present in the registry
type ErrUnknownAgentKind struct {
	*BaseError
	Kind string
}

func NewUnknownAgentKind(kind string) *ErrUnknownAgentKind {
	return &ErrUnknownAgentKind{
		BaseError: NewBaseError(ErrorTypeAgent, fmt.Sprintf("unknown agent kind: %s", kind), nil),
		Kind:      kind,
	}
}

// Transport errors

// ErrDeliveryFailed is returned when a payload cannot be pushed to the user
type ErrDeliveryFailed struct {
	*BaseError
	UserID string
}

func NewDeliveryFailed(userID string, err error) *ErrDeliveryFailed {
	return &ErrDeliveryFailed{
		BaseError: NewBaseError(ErrorTypeTransport, fmt.Sprintf("failed to deliver to %s", userID), err),
		UserID:    userID,
	}
}

// History errors

// ErrHistoryUnavailable is returned when the transcript store cannot be reached
type ErrHistoryUnavailable struct {
	*BaseError
	URI string
}

func NewHistoryUnavailable(uri string, err error) *ErrHistoryUnavailable {
	return &ErrHistoryUnavailable{
		BaseError: NewBaseError(ErrorTypeHistory, fmt.Sprintf("transcript store unavailable: %s", uri), err),
		URI:       uri,
	}
}

// Config errors

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Context errors

// ErrContextCancelled is returned when context is cancelled mid-invocation
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
	}
}

// Helper functions

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	if baseErr, ok := err.(*BaseError); ok {
		return baseErr.Type == errType
	}
	if wrapped, ok := err.(interface{ Unwrap() error }); ok {
		if inner := wrapped.Unwrap(); inner != nil {
			return IsErrorType(inner, errType)
		}
	}
	return false
}

// IsAgentBusy reports whether err means the single-flight guard was held.
// Busy is contention, not failure: the action gets re-queued.
func IsAgentBusy(err error) bool {
	if err == nil {
		return false
	}
	if err == ErrAgentBusy {
		return true
	}
	if wrapped, ok := err.(interface{ Unwrap() error }); ok {
		if inner := wrapped.Unwrap(); inner != nil {
			return IsAgentBusy(inner)
		}
	}
	return false
}

// IsRetryable checks if an error is worth retrying
func IsRetryable(err error) bool {
	// Context errors are not retryable
	if IsErrorType(err, ErrorTypeContext) {
		return false
	}
	// Busy is handled by the queue, never by caller retry
	if IsAgentBusy(err) {
		return false
	}
	// Provider and transcript-store failures are transient
	if _, ok := err.(*ErrInvocationFailed); ok {
		return true
	}
	if _, ok := err.(*ErrHistoryUnavailable); ok {
		return true
	}
	if IsErrorType(err, ErrorTypeAgent) || IsErrorType(err, ErrorTypeHistory) {
		return true
	}
	return false
}
