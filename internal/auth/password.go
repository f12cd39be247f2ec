// PASSWORD HASHING
//
// WHY BCRYPT?
// bcrypt is a password hashing function specifically designed to be slow.
// That slowness is what makes brute-force attacks expensive.
//
// bcrypt automatically:
//   - Generates a random salt (so two users with the same password get different hashes)
//   - Embeds the salt in the output hash (no separate salt column needed)
//   - Controls the work factor via "cost" (higher = slower = harder to crack)
//
// Hash format (the full output of bcrypt.GenerateFromPassword):
//
//	$2a$10$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (10 rounds → 2^10 = 1024 iterations)
//	 version

package auth

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// DefaultCost is the bcrypt work factor used for new accounts.
// Hashes already stored with a different cost still verify: the cost is part
// of the digest.
const DefaultCost = 10

// MaxPasswordBytes is bcrypt's input limit. Longer inputs are silently
// truncated by the algorithm, so we refuse them instead.
const MaxPasswordBytes = 72

var (
	// ErrNoPassword means the stored digest is empty: the account was created
	// without a password and cannot sign in with one.
	ErrNoPassword = errors.New("auth: account has no password hash")

	// ErrMismatch means the password doesn't match the stored digest.
	ErrMismatch = errors.New("auth: invalid password")
)

// PasswordService provides bcrypt hashing and verification.
//
// HASHING IS CPU-BOUND:
// A cost-10 hash pins one core for tens of milliseconds. Go schedules
// goroutines across all cores, so a hash never blocks an unrelated request
// on the same thread, but a burst of sign-ups can still saturate every core.
// slots is a weighted semaphore that caps how many hashes run at once; the
// rest wait (honouring their context) instead of starving everything else.
type PasswordService struct {
	cost  int
	slots *semaphore.Weighted
}

// NewPasswordService creates a PasswordService with the given cost.
// concurrency <= 0 means "one slot per CPU".
func NewPasswordService(cost, concurrency int) (*PasswordService, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("auth: bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	return &PasswordService{
		cost:  cost,
		slots: semaphore.NewWeighted(int64(concurrency)),
	}, nil
}

// NewPasswordServiceForTest creates a PasswordService with a low bcrypt cost
// (4 is the minimum allowed). Use this in tests in other packages to avoid
// paying the full cost on every hash.
//
// Do NOT use in production: cost 4 is far too weak.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost, slots: semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0)))}
}

// Hash hashes the given plaintext password with bcrypt.
//
// The output is a self-contained string like:
//
//	$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy
//
// Store this string directly in the database. It includes the salt and
// cost, and bcrypt.CompareHashAndPassword knows how to decode it.
//
// Hash blocks until a hashing slot is free or ctx is done.
func (p *PasswordService) Hash(ctx context.Context, plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", fmt.Errorf("auth: password must be %d bytes or fewer", MaxPasswordBytes)
	}

	if err := p.slots.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("auth: waiting for hash slot: %w", err)
	}
	defer p.slots.Release(1)

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify checks whether a plaintext password matches a stored bcrypt hash.
//
// Returns nil on a match, ErrNoPassword if there is no stored hash,
// ErrMismatch on a wrong password and a wrapped error for a digest bcrypt
// can't parse. A plaintext longer than MaxPasswordBytes never matches:
// bcrypt would only compare its first 72 bytes. Every failure is a plain error value; callers treat any
// non-nil result as "not authenticated".
//
// TIMING SAFETY:
// bcrypt.CompareHashAndPassword uses a constant-time comparison internally.
func (p *PasswordService) Verify(hash, plaintext string) error {
	if strings.TrimSpace(hash) == "" {
		return ErrNoPassword
	}
	if len(plaintext) > MaxPasswordBytes {
		return ErrMismatch
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
