// Package service holds the account business logic.
//
// AuthService sits between the HTTP handlers and the storage/crypto pieces:
//
//	AuthHandler (HTTP) → AuthService (business rules) → AccountStore (memory / sqlite / postgres)
//	                   ↘ PasswordService (bcrypt)
//	                   ↘ TokenService (JWT)
//
// KEY RESPONSIBILITIES:
//   - Validate sign-up and sign-in input
//   - Hash and verify passwords, issue tokens
//   - Turn storage outcomes into the error taxonomy in package apperror
//
// Nothing here knows about HTTP. Every error returned wraps an
// *apperror.AppError when it belongs to the taxonomy; anything else is an
// infrastructure failure.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/xrauth/internal/apperror"
	"github.com/sakif/xrauth/internal/auth"
	"github.com/sakif/xrauth/internal/metrics"
	"github.com/sakif/xrauth/internal/model"
	"github.com/sakif/xrauth/internal/repository"
)

// AuthService handles sign-up, sign-in and the current-user lookup.
//
// DEPENDENCIES (injected via NewAuthService):
//   - store      repository.AccountStore  → read/write accounts; nil means no backend
//   - tokens     *auth.TokenService       → issue JWTs
//   - passwords  *auth.PasswordService    → bcrypt hashing
//   - metrics    *metrics.Recorder        → outcome counters (nil is fine)
//   - logger     *slog.Logger             → structured logging
type AuthService struct {
	store     repository.AccountStore
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	metrics   *metrics.Recorder
	logger    *slog.Logger
}

// NewAuthService creates an AuthService. Call this in server.go when wiring
// the dependency graph.
func NewAuthService(
	store repository.AccountStore,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	recorder *metrics.Recorder,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		store:     store,
		tokens:    tokens,
		passwords: passwords,
		metrics:   recorder,
		logger:    logger,
	}
}

// SignUpInput is the data a new account is created from. XRID is optional.
type SignUpInput struct {
	Name     string
	Email    string
	Password string
	XRID     string
}

type SignInInput struct {
	Email    string
	Password string
}

// AuthResult bundles the public user record and the issued JWT so the
// handler can respond in one step.
type AuthResult struct {
	User  model.PublicUser
	Token string
}

func errNoBackend() error {
	return apperror.Unavailable("Account storage is not configured")
}

// SignUp creates an account and signs it in.
//
// STEPS:
//  1. Validate input (first failing rule wins)
//  2. Look the email up. If it's taken, fail now and skip the bcrypt work
//  3. Hash the password
//  4. Create the account. The store's UNIQUE constraint is what actually
//     guarantees one account per email: step 2 can race with another
//     sign-up, step 4 can't.
//  5. Issue a token
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput) (res *AuthResult, err error) {
	defer func() { s.record(metrics.OpSignUp, err) }()

	if s.store == nil {
		return nil, errNoBackend()
	}
	if err := ValidateSignUp(in.Name, in.Email, in.Password); err != nil {
		return nil, err
	}

	_, err = s.store.FindByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return nil, apperror.EmailTaken()
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: checking email: %w", err)
	}

	start := time.Now()
	hash, err := s.passwords.Hash(ctx, in.Password)
	s.metrics.ObserveHash(time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user, err := s.store.Create(ctx, model.NewUser{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		XRID:         in.XRID,
	})
	if err != nil {
		if errors.Is(err, apperror.ErrCreationFailed) {
			s.logger.Error("account insert could not be read back",
				slog.String("email", in.Email),
				slog.Any("error", err),
			)
		}
		return nil, fmt.Errorf("service/auth: creating account: %w", err)
	}

	token, err := s.tokens.Issue(user.ID, user.Email, user.XRID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for %s: %w", user.ID, err)
	}

	s.logger.Info("account created",
		slog.String("userID", user.ID),
		slog.String("xrId", user.XRID),
	)
	return &AuthResult{User: user.Public(), Token: token}, nil
}

// SignIn verifies an email/password pair and issues a token.
//
// An unknown email and a wrong password produce the same error. The one
// exception is an account without a password hash, which gets
// "account not password-enabled".
//
// Stores that keep credentials in their own table return a Credential
// without its User; SignIn then loads the user by id. A credential whose
// user row is gone is a data-integrity fault (UserNotFound), not a bad login.
func (s *AuthService) SignIn(ctx context.Context, in SignInInput) (res *AuthResult, err error) {
	defer func() { s.record(metrics.OpSignIn, err) }()

	if s.store == nil {
		return nil, errNoBackend()
	}
	if err := ValidateSignIn(in.Email, in.Password); err != nil {
		return nil, err
	}

	cred, err := s.store.FindByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: looking up credential: %w", err)
	}

	if err := s.passwords.Verify(cred.PasswordHash, in.Password); err != nil {
		switch {
		case errors.Is(err, auth.ErrNoPassword):
			return nil, apperror.PasswordNotEnabled()
		case errors.Is(err, auth.ErrMismatch):
			return nil, apperror.InvalidCredentials()
		default:
			// Stored hash isn't bcrypt. The caller still just sees a bad login.
			s.logger.Warn("stored password hash is malformed",
				slog.String("userID", cred.UserID),
				slog.Any("error", err),
			)
			return nil, apperror.InvalidCredentials()
		}
	}

	user := cred.User
	if user == nil {
		user, err = s.store.FindByID(ctx, cred.UserID)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				s.logger.Error("credential points at a missing user",
					slog.String("userID", cred.UserID),
				)
				return nil, apperror.UserNotFound(cred.UserID)
			}
			return nil, fmt.Errorf("service/auth: loading user %s: %w", cred.UserID, err)
		}
	}

	token, err := s.tokens.Issue(user.ID, user.Email, user.XRID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for %s: %w", user.ID, err)
	}

	s.logger.Info("signed in", slog.String("userID", user.ID))
	return &AuthResult{User: user.Public(), Token: token}, nil
}

// Me returns the public record for the user a token was issued to.
// The id comes from verified claims, so a missing row means the account
// was removed after the token was issued.
func (s *AuthService) Me(ctx context.Context, userID string) (_ *model.PublicUser, err error) {
	defer func() { s.record(metrics.OpMe, err) }()

	if s.store == nil {
		return nil, errNoBackend()
	}
	if userID == "" {
		return nil, apperror.UserNotFound(userID)
	}

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.UserNotFound(userID)
		}
		return nil, fmt.Errorf("service/auth: loading user %s: %w", userID, err)
	}

	pub := user.Public()
	return &pub, nil
}

// Ping reports whether the configured store is reachable.
func (s *AuthService) Ping(ctx context.Context) error {
	if s.store == nil {
		return errNoBackend()
	}
	return s.store.Ping(ctx)
}

func (s *AuthService) record(op string, err error) {
	s.metrics.RecordOutcome(op, Outcome(err))
}

// Outcome classifies err into the label recorded on the request counter.
func Outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, apperror.ErrValidation):
		return metrics.OutcomeInvalidInput
	case errors.Is(err, apperror.ErrConflict):
		return metrics.OutcomeConflict
	case errors.Is(err, apperror.ErrInvalidCredentials):
		return metrics.OutcomeInvalidCredentials
	case errors.Is(err, apperror.ErrCreationFailed), errors.Is(err, apperror.ErrUserNotFound):
		return metrics.OutcomeIntegrity
	case errors.Is(err, apperror.ErrUnavailable):
		return metrics.OutcomeUnavailable
	default:
		return metrics.OutcomeError
	}
}
