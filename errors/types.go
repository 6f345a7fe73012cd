package errors

import (
	"fmt"
)

// ErrorCode represents different categories of errors
type ErrorCode string

const (
	// ErrCodeConfig indicates configuration errors, e.g. a transaction ceiling
	// too small for the fixed overhead of a chunk transaction
	ErrCodeConfig ErrorCode = "CONFIG"

	// ErrCodeIO indicates local file or environment read/submit failures
	ErrCodeIO ErrorCode = "IO"

	// ErrCodeOrdering indicates an operation requested out of order, such as
	// moving the clock backwards
	ErrCodeOrdering ErrorCode = "ORDERING"

	// ErrCodeProtocol indicates the environment rejected a state transition
	ErrCodeProtocol ErrorCode = "PROTOCOL"

	// ErrCodeBlockhash indicates the transaction referenced an expired or unknown blockhash
	ErrCodeBlockhash ErrorCode = "BLOCKHASH"

	// ErrCodeValidation indicates input validation errors
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeNetwork indicates network-related errors
	ErrCodeNetwork ErrorCode = "NETWORK"

	// ErrCodeRPC indicates RPC-related errors
	ErrCodeRPC ErrorCode = "RPC"

	// ErrCodeTimeout indicates timeout errors
	ErrCodeTimeout ErrorCode = "TIMEOUT"

	// ErrCodeDatabase indicates snapshot database errors
	ErrCodeDatabase ErrorCode = "DATABASE"

	// ErrCodeInternal indicates internal errors
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Severity represents the severity level of an error
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// FrameworkError is the error type returned by the deployment, time-warp and
// client layers. Op names the operation that failed (e.g. "write_chunk").
type FrameworkError struct {
	Code     ErrorCode              `json:"code"`
	Op       string                 `json:"op,omitempty"`
	Message  string                 `json:"message"`
	Severity Severity               `json:"severity"`
	Cause    error                  `json:"-"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// NewError creates a new FrameworkError
func NewError(code ErrorCode, op, message string, cause error) *FrameworkError {
	return &FrameworkError{
		Code:     code,
		Op:       op,
		Message:  message,
		Severity: determineSeverity(code),
		Cause:    cause,
		Context:  make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *FrameworkError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	if e.Op != "" {
		return fmt.Sprintf("[%s:%s] %s", e.Op, e.Code, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap returns the underlying cause
func (e *FrameworkError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *FrameworkError) WithContext(key string, value interface{}) *FrameworkError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity overrides the default severity
func (e *FrameworkError) WithSeverity(severity Severity) *FrameworkError {
	e.Severity = severity
	return e
}

// IsRetryable returns true if the error is retryable
func (e *FrameworkError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeNetwork, ErrCodeRPC, ErrCodeTimeout:
		return true
	default:
		return false
	}
}

func determineSeverity(code ErrorCode) Severity {
	switch code {
	case ErrCodeInternal:
		return SeverityCritical
	case ErrCodeProtocol, ErrCodeDatabase:
		return SeverityHigh
	case ErrCodeIO, ErrCodeNetwork, ErrCodeRPC, ErrCodeTimeout, ErrCodeBlockhash:
		return SeverityMedium
	case ErrCodeConfig, ErrCodeValidation, ErrCodeOrdering:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// NewConfigError creates a configuration error
func NewConfigError(op, message string) *FrameworkError {
	return NewError(ErrCodeConfig, op, message, nil)
}

// NewIOError creates an I/O error
func NewIOError(op, message string, cause error) *FrameworkError {
	return NewError(ErrCodeIO, op, message, cause)
}

// NewOrderingError creates an ordering error
func NewOrderingError(op, message string, cause error) *FrameworkError {
	return NewError(ErrCodeOrdering, op, message, cause)
}

// NewProtocolError creates a protocol error
func NewProtocolError(op, message string, cause error) *FrameworkError {
	return NewError(ErrCodeProtocol, op, message, cause)
}

// NewBlockhashError creates an expired-blockhash error
func NewBlockhashError(op, message string, cause error) *FrameworkError {
	return NewError(ErrCodeBlockhash, op, message, cause)
}

// NewValidationError creates a validation error
func NewValidationError(op, message string) *FrameworkError {
	return NewError(ErrCodeValidation, op, message, nil)
}

// NewRPCError creates an RPC error
func NewRPCError(op, message string, cause error) *FrameworkError {
	return NewError(ErrCodeRPC, op, message, cause)
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(op, message string) *FrameworkError {
	return NewError(ErrCodeTimeout, op, message, nil)
}

// NewDatabaseError creates a database error
func NewDatabaseError(op, message string, cause error) *FrameworkError {
	return NewError(ErrCodeDatabase, op, message, cause)
}

// NewInternalError creates an internal error
func NewInternalError(op, message string, cause error) *FrameworkError {
	return NewError(ErrCodeInternal, op, message, cause)
}
