//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sakif/xrauth/internal/apperror"
	"github.com/sakif/xrauth/internal/model"
	"github.com/sakif/xrauth/internal/repository/postgres"
)

// testDSN points at the PostgreSQL container started by TestMain.
var testDSN string

// TestMain starts a PostgreSQL testcontainer for the integration tests.
func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("xrauth_test"),
		tcpostgres.WithUsername("xrauth"),
		tcpostgres.WithPassword("xrauth"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		panic("failed to start postgres container: " + err.Error())
	}

	testDSN, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to get connection string: " + err.Error())
	}

	code := m.Run()

	_ = container.Terminate(ctx)
	os.Exit(code)
}

func openStore(t *testing.T) *postgres.Store {
	t.Helper()
	s, err := postgres.Open(context.Background(), testDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestIntegration_MigrateIsIdempotent(t *testing.T) {
	openStore(t)

	applied, err := postgres.Migrate(context.Background(), testDSN)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestIntegration_CreateFindAndConflicts(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	email := fmt.Sprintf("ann-%d@example.com", time.Now().UnixNano())

	u, err := s.Create(ctx, model.NewUser{Name: "Ann", Email: email, PasswordHash: "$2a$04$hash"})
	require.NoError(t, err)
	assert.Regexp(t, `^XR-\d+$`, u.XRID)
	assert.EqualValues(t, 1, u.StatusID)
	assert.EqualValues(t, 2, u.TypeID)
	assert.EqualValues(t, 1, u.RightsID)

	cred, err := s.FindByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, cred.UserID)

	got, err := s.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.XRID, got.XRID)

	_, err = s.Create(ctx, model.NewUser{Name: "Ann", Email: email, PasswordHash: "x"})
	assert.True(t, apperror.IsConflictOn(err, apperror.FieldEmail), "got %v", err)

	_, err = s.Create(ctx, model.NewUser{Name: "Bob", Email: "other-" + email, PasswordHash: "x", XRID: u.XRID})
	assert.True(t, apperror.IsConflictOn(err, apperror.FieldXRID), "got %v", err)
}

func TestIntegration_ConcurrentSameEmail(t *testing.T) {
	s := openStore(t)
	email := fmt.Sprintf("race-%d@example.com", time.Now().UnixNano())
	const n = 10

	var wg sync.WaitGroup
	var ok, conflicts atomic.Int32
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Create(context.Background(), model.NewUser{Name: "R", Email: email, PasswordHash: "x"})
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
}
