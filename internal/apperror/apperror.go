package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("Validation Error")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrCreationFailed     = errors.New("creation failed")
	ErrUserNotFound       = errors.New("user not found")
	ErrUnavailable        = errors.New("backend unavailable")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound is returned by stores when a lookup matches no row.
// The service decides what that means for the caller: an unknown email at
// sign-in becomes InvalidCredentials, a dangling credential becomes UserNotFound.
func NotFound(resource, key string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: resource + " not found: " + key,
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports a uniqueness violation. Field names the column that
// collided ("email" or "xrId") so callers can tell the two apart.
func Conflict(field, message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
		Field:   field,
	}
}

// Conflict fields.
const (
	FieldEmail = "email"
	FieldXRID  = "xrId"
)

func EmailTaken() *AppError {
	return Conflict(FieldEmail, "User already exists")
}

func XRIDTaken() *AppError {
	return Conflict(FieldXRID, "XR ID already exists")
}

// IsConflictOn reports whether err is a Conflict on the given field.
func IsConflictOn(err error, field string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && errors.Is(appErr.Err, ErrConflict) && appErr.Field == field
}

// InvalidCredentials is the single error for both "no such email" and
// "wrong password". Keep it that way: a distinct message would let a caller
// enumerate registered emails.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "Invalid credentials",
	}
}

// PasswordNotEnabled is the one InvalidCredentials variant with its own
// message: the stored account has no password hash at all.
func PasswordNotEnabled() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "account not password-enabled",
	}
}

// CreationFailed means the insert reported success but re-reading the new
// row returned nothing.
func CreationFailed(err error) *AppError {
	return &AppError{
		Err:     errors.Join(ErrCreationFailed, err),
		Message: "Failed to create user",
	}
}

// UserNotFound means a credential points at a user row that doesn't exist.
// HTTP handlers map this to 500: it's a data-integrity fault, not a client error.
func UserNotFound(id string) *AppError {
	return &AppError{
		Err:     fmt.Errorf("user %s: %w", id, ErrUserNotFound),
		Message: "User data not found",
	}
}

// Unavailable means no usable persistence backend is configured.
func Unavailable(message string) *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: message,
	}
}
