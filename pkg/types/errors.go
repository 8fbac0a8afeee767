package types

import "errors"

// Error kinds shared across packages. Callers wrap them with fmt.Errorf
// ("%w: detail") and match with errors.Is.
var (
	// ErrValidation marks malformed or incomplete client input
	ErrValidation = errors.New("validation error")

	// ErrAuth marks a bad, expired or missing-when-required credential
	ErrAuth = errors.New("authentication error")

	// ErrForbidden marks a valid credential without the required role
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound marks a missing record
	ErrNotFound = errors.New("not found")

	// ErrStorage marks an attachment upload or database write failure
	ErrStorage = errors.New("storage error")

	// ErrSourceUnavailable marks an unreachable or unparseable hazard feed
	ErrSourceUnavailable = errors.New("hazard source unavailable")
)
