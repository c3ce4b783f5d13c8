package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for API consumers. Controllers map kinds to
// HTTP statuses; internal error text is never sent to clients directly.
type Kind string

const (
	KindValidation Kind = "VALIDATION_ERROR"
	KindConflict   Kind = "CONFLICT_ERROR"
	KindNotFound   Kind = "NOT_FOUND"
	KindGateway    Kind = "EXTERNAL_GATEWAY_ERROR"
	KindInternal   Kind = "INTERNAL_ERROR"
)

// Error carries a machine-readable kind plus a user-safe message. The
// wrapped cause stays server-side.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Validationf builds a validation error. Never retried by callers.
func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Conflictf builds a conflict error. The caller must re-read and retry.
func Conflictf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a not-found error.
func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Gateway wraps an external gateway failure.
func Gateway(message string, cause error) *Error {
	return &Error{Kind: KindGateway, Message: message, cause: cause}
}

// Internal wraps an unexpected failure; the message shown to clients is
// generic while the cause stays in the error chain for logs.
func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, cause: cause}
}

// KindOf extracts the kind of err, or KindInternal for plain errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// MessageOf extracts the user-safe message of err. Plain errors get a
// generic message so internals are never leaked verbatim.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
