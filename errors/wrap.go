package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// WrapError wraps err as a FrameworkError. When err already carries one, the
// new layer keeps its code and severity, and inherits its op when op is empty.
func WrapError(err error, code ErrorCode, op, message string) *FrameworkError {
	if err == nil {
		return nil
	}

	var fwErr *FrameworkError
	if errors.As(err, &fwErr) {
		if op == "" {
			op = fwErr.Op
		}
		return NewError(fwErr.Code, op, message, err).WithSeverity(fwErr.Severity)
	}

	return NewError(code, op, message, err)
}

// Is checks if an error is of a specific type
func Is(err error, target error) bool {
	return errors.Is(err, target)
}

// As checks if an error can be assigned to a target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns a plain error, mirroring the standard library.
func New(text string) error {
	return errors.New(text)
}

// IsCode checks if an error is a FrameworkError with the given code
func IsCode(err error, code ErrorCode) bool {
	var fwErr *FrameworkError
	if errors.As(err, &fwErr) {
		return fwErr.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost FrameworkError in the chain,
// or the empty code.
func CodeOf(err error) ErrorCode {
	var fwErr *FrameworkError
	if errors.As(err, &fwErr) {
		return fwErr.Code
	}
	return ""
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var fwErr *FrameworkError
	if errors.As(err, &fwErr) {
		return fwErr.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"too many requests",
		"rate limit",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// IsBlockhashExpired reports whether err signals that the referenced
// blockhash is no longer recognised by the environment.
func IsBlockhashExpired(err error) bool {
	if err == nil {
		return false
	}
	if IsCode(err, ErrCodeBlockhash) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "blockhash not found") ||
		strings.Contains(errStr, "blockhashnotfound")
}

// GetSeverity returns the severity of an error
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityInfo
	}

	var fwErr *FrameworkError
	if errors.As(err, &fwErr) {
		return fwErr.Severity
	}
	return SeverityLow
}
