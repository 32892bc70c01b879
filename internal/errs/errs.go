package errs

import "fmt"

// Error is the machine-readable failure envelope every pipeline step
// returns. Status mirrors the HTTP code the API surface would emit.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(status int, code, format string, args ...any) *Error {
	return &Error{Status: status, Code: code, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransition covers illegal status moves and missing required
// payload fields for the target status.
func InvalidTransition(format string, args ...any) *Error {
	return newError(400, "invalid_transition", format, args...)
}

// PermissionDenied covers failed ACL checks and multiplex floor or
// ceiling violations.
func PermissionDenied(format string, args ...any) *Error {
	return newError(403, "permission_denied", format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newError(404, "not_found", format, args...)
}

// WriteConflict signals an ifMatch revision mismatch.
func WriteConflict(format string, args ...any) *Error {
	return newError(409, "write_conflict", format, args...)
}

// Locked signals a duplicate registration or idempotency violation.
func Locked(format string, args ...any) *Error {
	return newError(423, "locked", format, args...)
}

// UpstreamFailure wraps a payment provider or notifier error.
func UpstreamFailure(format string, args ...any) *Error {
	return newError(502, "upstream_failure", format, args...)
}

// StatusOf reports the status of err if it is an *Error, 500 otherwise.
func StatusOf(err error) int {
	if e, ok := err.(*Error); ok {
		return e.Status
	}
	return 500
}
