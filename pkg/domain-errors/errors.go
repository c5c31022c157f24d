// Package domainerrors defines the error taxonomy shared by all services.
// Services create errors with New/Wrap and transports translate them with
// Code, so no layer ever inspects error strings.
package domainerrors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failure for transport mapping and scoring.
type ErrorCode string

const (
	// CodeBadRequest marks malformed input or a missing/expired consent
	// token. Terminal: never retried, returned before any dispatch.
	CodeBadRequest ErrorCode = "bad_request"

	// CodeUnauthorized marks a request lacking required authorization.
	CodeUnauthorized ErrorCode = "unauthorized"

	// CodeNotFound marks an entity absent at a given source. Non-fatal for
	// verification; it reduces confidence instead of failing the request.
	CodeNotFound ErrorCode = "not_found"

	// CodeTimeout marks a call that exceeded its deadline.
	CodeTimeout ErrorCode = "timeout"

	// CodeUnavailable marks a remote 5xx-equivalent outage.
	CodeUnavailable ErrorCode = "unavailable"

	// CodeRateLimited marks a remote throttling response.
	CodeRateLimited ErrorCode = "rate_limited"

	// CodeCircuitOpen marks a call rejected by an open circuit breaker
	// without contacting the remote endpoint.
	CodeCircuitOpen ErrorCode = "circuit_open"

	// CodeInternal marks an unexpected internal failure.
	CodeInternal ErrorCode = "internal_error"
)

// Error carries a code alongside the message and an optional cause.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a domain error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Code extracts the ErrorCode from err, walking the unwrap chain.
// Non-domain errors report CodeInternal.
func Code(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return Code(err) == code
}

// IsRetryable reports whether a call that produced err is worth retrying.
// Only transient classifications qualify; validation and not-found results
// are facts about the request, not the transport.
func IsRetryable(err error) bool {
	switch Code(err) {
	case CodeTimeout, CodeUnavailable, CodeRateLimited:
		return true
	}
	return false
}
