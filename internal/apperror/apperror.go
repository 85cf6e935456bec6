package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	ErrUnauthorized = errors.New("unauthorized")

	// ErrDuplicateKey is the conflict raised by a UNIQUE constraint.
	// It matches ErrConflict too (see DuplicateKey).
	ErrDuplicateKey = errors.New("duplicate key")

	// Store failures. ErrStoreConnection is fatal at startup; ErrStoreQuery is
	// per-operation and recoverable.
	ErrStoreConnection = errors.New("store connection failed")
	ErrStoreQuery      = errors.New("store query failed")

	// Login failures surfaced by the identity resolver.
	ErrUnverifiedIdentity = errors.New("unverified identity")
	ErrResolutionFailed   = errors.New("identity resolution failed")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying driver/library error, never shown to clients
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the sentinel kind and the underlying cause to errors.Is/As.
func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized returns an AppError for requests without a usable session.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// duplicateKey joins ErrDuplicateKey and ErrConflict so callers can match either.
var duplicateKey = errors.Join(ErrDuplicateKey, ErrConflict)

// DuplicateKey reports a UNIQUE constraint violation on resource.
// It matches both ErrDuplicateKey and ErrConflict.
func DuplicateKey(resource string, cause error) *AppError {
	return &AppError{
		Err:     duplicateKey,
		Message: fmt.Sprintf("%s already exists", resource),
		Cause:   cause,
	}
}

// StoreQuery wraps a failed statement. op names the store operation
// (e.g. "list devices") and ends up in logs, not in responses.
func StoreQuery(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrStoreQuery,
		Message: op + " failed",
		Cause:   cause,
	}
}

// StoreConnection wraps a failure to open or reach the database.
func StoreConnection(cause error) *AppError {
	return &AppError{
		Err:     ErrStoreConnection,
		Message: "cannot connect to store",
		Cause:   cause,
	}
}

// UnverifiedIdentity rejects a login whose provider did not verify the email.
func UnverifiedIdentity(email string) *AppError {
	return &AppError{
		Err:     ErrUnverifiedIdentity,
		Message: "User email not available or not verified by Google.",
		Field:   "email",
	}
}

// ResolutionFailed wraps any store error hit while mapping an identity to a user.
func ResolutionFailed(cause error) *AppError {
	return &AppError{
		Err:     ErrResolutionFailed,
		Message: "could not resolve user identity",
		Cause:   cause,
	}
}
