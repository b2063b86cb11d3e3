// Kerbside - Parking Reservation Telemetry and Analytics Pipeline
// Copyright 2026 Kerbside Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openkerb/kerbside

package telemetry

import "errors"

// ErrorCategory categorizes delivery failures for logging and metrics.
//
// Categories are assigned by the transport layer from explicit signals
// (status codes, error types), never by inspecting error message text.
type ErrorCategory int

const (
	// ErrorCategoryUnknown is the default category for unclassified errors.
	ErrorCategoryUnknown ErrorCategory = iota
	// ErrorCategoryConnection indicates network or connection failures.
	ErrorCategoryConnection
	// ErrorCategoryTimeout indicates operation timeout.
	ErrorCategoryTimeout
	// ErrorCategoryServer indicates a server-side (5xx) failure.
	ErrorCategoryServer
	// ErrorCategoryRouteMissing indicates the endpoint does not exist.
	ErrorCategoryRouteMissing
	// ErrorCategoryValidation indicates the payload was rejected as invalid.
	ErrorCategoryValidation
	// ErrorCategoryThrottled indicates local or remote rate limiting.
	ErrorCategoryThrottled
)

// String returns the string representation of the error category.
func (c ErrorCategory) String() string {
	switch c {
	case ErrorCategoryConnection:
		return "connection"
	case ErrorCategoryTimeout:
		return "timeout"
	case ErrorCategoryServer:
		return "server"
	case ErrorCategoryRouteMissing:
		return "route_missing"
	case ErrorCategoryValidation:
		return "validation"
	case ErrorCategoryThrottled:
		return "throttled"
	default:
		return "unknown"
	}
}

// RetryableError represents a delivery error expected to succeed on retry.
// These are typically transient: network failures, timeouts, 5xx responses.
type RetryableError struct {
	Message  string
	Cause    error
	Category ErrorCategory
}

// NewRetryableError creates a new retryable error.
func NewRetryableError(message string, cause error, category ErrorCategory) *RetryableError {
	return &RetryableError{Message: message, Cause: cause, Category: category}
}

// Error implements the error interface.
func (e *RetryableError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error unwrapping.
func (e *RetryableError) Unwrap() error {
	return e.Cause
}

// PermanentError represents a delivery error that will never succeed.
// Retrying against a missing endpoint or with a rejected payload spins
// forever, so these are dropped without retry.
type PermanentError struct {
	Message  string
	Cause    error
	Category ErrorCategory
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, cause error, category ErrorCategory) *PermanentError {
	return &PermanentError{Message: message, Cause: cause, Category: category}
}

// Error implements the error interface.
func (e *PermanentError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error unwrapping.
func (e *PermanentError) Unwrap() error {
	return e.Cause
}

// IsRetryableError checks if the error is retryable.
func IsRetryableError(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// IsPermanentError checks if the error is permanent (non-retryable).
func IsPermanentError(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}

// CategoryOf extracts the error category from a classified error.
// Returns ErrorCategoryUnknown for unclassified errors.
func CategoryOf(err error) ErrorCategory {
	var retryErr *RetryableError
	if errors.As(err, &retryErr) {
		return retryErr.Category
	}
	var permErr *PermanentError
	if errors.As(err, &permErr) {
		return permErr.Category
	}
	return ErrorCategoryUnknown
}
