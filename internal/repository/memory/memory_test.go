package memory

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/xrauth/internal/apperror"
	"github.com/sakif/xrauth/internal/model"
)

func newUser(email string) model.NewUser {
	return model.NewUser{Name: "Ann", Email: email, PasswordHash: "$2a$04$hash"}
}

// ===== Create TESTS =====

func TestCreate_GeneratesIDAndMockXRID(t *testing.T) {
	s := New()

	u, err := s.Create(context.Background(), newUser("ann@example.com"))
	require.NoError(t, err)

	assert.NotEmpty(t, u.ID)
	assert.Regexp(t, regexp.MustCompile(`^XR-MOCK-\d+$`), u.XRID)
	assert.Equal(t, "ann@example.com", u.Email)
	assert.False(t, u.CreatedAt.IsZero())
	assert.Equal(t, 1, s.Len())
}

func TestCreate_KeepsSuppliedXRID(t *testing.T) {
	s := New()
	in := newUser("ann@example.com")
	in.XRID = "XR-CUSTOM-1"

	u, err := s.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "XR-CUSTOM-1", u.XRID)
}

func TestCreate_DuplicateEmail(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Create(ctx, newUser("ann@example.com"))
	require.NoError(t, err)

	_, err = s.Create(ctx, newUser("ann@example.com"))
	assert.True(t, apperror.IsConflictOn(err, apperror.FieldEmail), "got %v", err)
	assert.Equal(t, 1, s.Len())
}

func TestCreate_EmailIsCaseSensitive(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Create(ctx, newUser("ann@example.com"))
	require.NoError(t, err)
	_, err = s.Create(ctx, newUser("Ann@example.com"))
	require.NoError(t, err)

	assert.Equal(t, 2, s.Len())
}

func TestCreate_DuplicateSuppliedXRID(t *testing.T) {
	s := New()
	ctx := context.Background()

	first := newUser("a@example.com")
	first.XRID = "XR-1"
	_, err := s.Create(ctx, first)
	require.NoError(t, err)

	second := newUser("b@example.com")
	second.XRID = "XR-1"
	_, err = s.Create(ctx, second)
	assert.True(t, apperror.IsConflictOn(err, apperror.FieldXRID), "got %v", err)
}

func TestCreate_SameMillisecondGetsDistinctXRIDs(t *testing.T) {
	s := New()
	fixed := time.UnixMilli(1718000000000)
	s.now = func() time.Time { return fixed }
	ctx := context.Background()

	a, err := s.Create(ctx, newUser("a@example.com"))
	require.NoError(t, err)
	b, err := s.Create(ctx, newUser("b@example.com"))
	require.NoError(t, err)

	assert.Equal(t, "XR-MOCK-1718000000000", a.XRID)
	assert.Equal(t, "XR-MOCK-1718000000001", b.XRID)
}

func TestCreate_ReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()

	u, err := s.Create(ctx, newUser("ann@example.com"))
	require.NoError(t, err)
	u.Name = "Mallory"

	got, err := s.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.Name)
}

// ===== Find TESTS =====

func TestFindByEmail(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.Create(ctx, newUser("ann@example.com"))
	require.NoError(t, err)

	cred, err := s.FindByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, cred.UserID)
	assert.Equal(t, "$2a$04$hash", cred.PasswordHash)
	require.NotNil(t, cred.User, "memory store returns the user with the credential")
	assert.Equal(t, created.XRID, cred.User.XRID)
}

func TestFindByEmail_NotFound(t *testing.T) {
	_, err := New().FindByEmail(context.Background(), "nobody@example.com")
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)
}

func TestFindByID_NotFound(t *testing.T) {
	_, err := New().FindByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)
}

// ===== CONCURRENCY TESTS =====

func TestCreate_ConcurrentSameEmail(t *testing.T) {
	s := New()
	const n = 32

	var wg sync.WaitGroup
	var ok, conflicts atomic.Int32
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Create(context.Background(), newUser("race@example.com"))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, apperror.ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, n-1, conflicts.Load())
	assert.Equal(t, 1, s.Len())
}

func TestCreate_ConcurrentDistinctEmails(t *testing.T) {
	s := New()
	const n = 10

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Create(context.Background(), newUser(fmt.Sprintf("user%d@example.com", i)))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, n, s.Len())
}
