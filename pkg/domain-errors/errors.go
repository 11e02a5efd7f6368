// Package domainerrors provides coded errors that cross module boundaries.
//
// Services return these so transport layers can translate a code into an HTTP
// status without inspecting error strings. Stores return sentinel errors
// (pkg/platform/sentinel); services wrap them with a code before surfacing.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error for transport translation and audit policy.
type Code string

const (
	// CodeBadRequest covers malformed or semantically invalid request bodies.
	CodeBadRequest Code = "bad_request"

	// CodeInvalidInput covers values rejected at a trust boundary (IDs, enums).
	CodeInvalidInput Code = "invalid_input"

	// CodeNotFound signals the addressed entity does not exist.
	CodeNotFound Code = "not_found"

	// CodeForbidden signals an authorization gate denial. Always audited.
	CodeForbidden Code = "forbidden"

	// CodeConflict signals a concurrent mutation raced and lost. Callers whose
	// intended outcome already holds treat it as success.
	CodeConflict Code = "conflict"

	// CodeInvalidTransition signals a workflow step outside the transition
	// table. The aggregate is left untouched.
	CodeInvalidTransition Code = "invalid_transition"

	// CodePayloadTooLarge rejects document uploads over the size cap.
	CodePayloadTooLarge Code = "payload_too_large"

	// CodeUnsupportedType rejects document uploads of an unknown type.
	CodeUnsupportedType Code = "unsupported_type"

	// CodeRateLimited rejects requests over the per-client rate limit.
	CodeRateLimited Code = "rate_limited"

	// CodeTimeout signals a context deadline or cancellation.
	CodeTimeout Code = "timeout"

	// CodeUnavailable signals an external dependency failure after retries.
	CodeUnavailable Code = "unavailable"

	// CodeInternal is the catch-all for unexpected failures.
	CodeInternal Code = "internal_error"
)

// Error is the coded error type returned by services.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e Error) Unwrap() error { return e.cause }

// New builds a coded error without an underlying cause.
func New(code Code, message string) error {
	return Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	return Error{Code: code, Message: message, cause: err}
}

// Is reports whether err carries the given code.
// Kept for call-site compatibility; HasCode is the clearer name.
func Is(err error, code Code) bool { return HasCode(err, code) }

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var e Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var e Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf extracts the user-facing message from err, empty when uncoded.
func MessageOf(err error) string {
	var e Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}

// ToHTTPStatus maps a code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeConflict, CodeInvalidTransition:
		return http.StatusConflict
	case CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeUnsupportedType:
		return http.StatusUnsupportedMediaType
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
