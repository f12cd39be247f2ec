package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT RESPONSE FORMAT:
// Every response from the auth API carries a "success" flag:
//   {"success": true,  "message": "...", "user": {...}, "token": "..."}
//   {"success": false, "error": "Invalid credentials"}
//
// Clients branch on "success" first and never have to guess the shape from
// the status code alone.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/xrauth/internal/apperror"
	"github.com/sakif/xrauth/internal/model"
)

// AuthResponse is the body of a successful sign-up or sign-in.
type AuthResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	User    model.PublicUser `json:"user"`
	Token   string           `json:"token"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE the body. Once Encode writes, the
// headers are on the wire and later changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent, so logging is all we can do.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeErrorMessage sends {"success":false,"error":msg}.
func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Success: false, Error: msg})
}

// statusFor maps a service error to its HTTP status.
//
// ERROR MAPPING:
//
//	ErrValidation          → 400
//	ErrConflict            → 409
//	ErrInvalidCredentials  → 401
//	ErrCreationFailed      → 500  (insert succeeded, read-back didn't)
//	ErrUserNotFound        → 500  (credential without a user: integrity fault)
//	ErrUnavailable         → 503
//	anything else          → 500
//
// The service layer never sees status codes; this is the only place the
// taxonomy meets HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperror.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, apperror.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a service error onto a status and an error body.
//
// errors.As() walks the chain and fills appErr if it finds an *AppError, so
// wrapped errors like fmt.Errorf("creating account: %w", apperror.EmailTaken())
// still surface their human-readable message.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		writeErrorMessage(w, statusFor(err), appErr.Message)
		return
	}

	// Unknown error. NEVER expose it: the raw message may contain SQL,
	// file paths or connection strings.
	logger.Error("unhandled error", slog.Any("error", err))
	writeErrorMessage(w, http.StatusInternalServerError, "Internal server error")
}
