package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/xrauth/internal/auth"
	"github.com/sakif/xrauth/internal/model"
	"github.com/sakif/xrauth/internal/service"
)

// maxBodyBytes caps how much of a request body the JSON decoder will read.
const maxBodyBytes = 1 << 20

// AuthHandler exposes AuthService over HTTP.
//
// HANDLER RESPONSIBILITIES:
//   - HandleSignUp → POST /signup
//   - HandleSignIn → POST /signin
//   - HandleMe     → GET  /me (behind auth.RequireAuth)
//
// Decoding JSON and mapping errors to status codes happens here; every
// business rule lives in the service.
type AuthHandler struct {
	svc    *service.AuthService
	logger *slog.Logger
}

func NewAuthHandler(svc *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

type signUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	XRID     string `json:"xrId"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type meResponse struct {
	Success bool              `json:"success"`
	User    *model.PublicUser `json:"user"`
}

// HandleSignUp creates an account.
//
// HTTP: POST /signup
//
// REQUEST:  {"name":"Ann","email":"ann@example.com","password":"secret1","xrId":"optional"}
// RESPONSE: 201 {"success":true,"message":"User created successfully","user":{...},"token":"..."}
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.SignUp(r.Context(), service.SignUpInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		XRID:     req.XRID,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{
		Success: true,
		Message: "User created successfully",
		User:    res.User,
		Token:   res.Token,
	})
}

// HandleSignIn authenticates an email/password pair.
//
// HTTP: POST /signin
//
// REQUEST:  {"email":"ann@example.com","password":"secret1"}
// RESPONSE: 200 {"success":true,"message":"Login successful","user":{...},"token":"..."}
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.SignIn(r.Context(), service.SignInInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{
		Success: true,
		Message: "Login successful",
		User:    res.User,
		Token:   res.Token,
	})
}

// HandleMe returns the user the bearer token belongs to.
//
// HTTP: GET /me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		// Route wired without RequireAuth.
		writeErrorMessage(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	user, err := h.svc.Me(r.Context(), claims.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{Success: true, User: user})
}

// decode reads a JSON body into dst. On failure it writes the error
// response itself and returns false.
//
// http.MaxBytesReader stops the decoder after maxBodyBytes, so a huge body
// can't tie up memory.
func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorMessage(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		h.logger.Debug("rejecting malformed JSON", slog.String("error", err.Error()))
		writeErrorMessage(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}
