// Package postgres implements repository.AccountStore on a hosted PostgreSQL
// database through a pgx connection pool.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"io/fs"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver for goose
	"github.com/oklog/ulid/v2"
	"github.com/pressly/goose/v3"
	"github.com/samber/oops"

	"github.com/sakif/xrauth/internal/apperror"
	"github.com/sakif/xrauth/internal/model"
	"github.com/sakif/xrauth/internal/repository"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Constraint names from migrations/00001_accounts.sql. A unique violation is
// attributed to a column by the constraint that fired.
const (
	constraintEmail = "accounts_email_key"
	constraintXRID  = "accounts_xr_id_key"
)

const accountColumns = `id, name, email, password_hash, xr_id, status_id, type_id, rights_id, created_at`

// Pool is the subset of *pgxpool.Pool the store uses; pgxmock satisfies it
// in unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

var _ repository.AccountStore = (*Store)(nil)

// Store implements repository.AccountStore using PostgreSQL.
type Store struct {
	pool Pool
	now  func() time.Time
}

// New wraps an existing pool. The schema must already be migrated.
func New(pool Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Open connects to dsn, applies pending migrations and returns a Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if _, err := Migrate(ctx, dsn); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "ping").Wrap(err)
	}
	return New(pool), nil
}

// Migrate applies the embedded goose migrations over a short-lived
// database/sql connection and returns the versions it applied.
func Migrate(ctx context.Context, dsn string) ([]int64, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, oops.Code("DB_MIGRATE_FAILED").With("operation", "open").Wrap(err)
	}
	defer db.Close()

	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return nil, oops.Code("DB_MIGRATE_FAILED").With("operation", "load migrations").Wrap(err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, oops.Code("DB_MIGRATE_FAILED").With("operation", "create provider").Wrap(err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return nil, oops.Code("DB_MIGRATE_FAILED").With("operation", "up").Wrap(err)
	}

	applied := make([]int64, 0, len(results))
	for _, r := range results {
		applied = append(applied, r.Source.Version)
	}
	return applied, nil
}

// FindByEmail retrieves the account for an exact email match.
func (s *Store) FindByEmail(ctx context.Context, email string) (*model.Credential, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)

	u, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("email", email).
			Wrap(apperror.NotFound("account", email))
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_EMAIL_FAILED").
			With("operation", "get account by email").
			With("email", email).
			Wrap(err)
	}

	return &model.Credential{
		UserID:       u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		User:         u,
	}, nil
}

// FindByID retrieves an account by its ULID.
func (s *Store) FindByID(ctx context.Context, id string) (*model.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)

	u, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id).
			Wrap(apperror.NotFound("user", id))
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_ID_FAILED").
			With("operation", "get account by id").
			With("id", id).
			Wrap(err)
	}
	return u, nil
}

// Create inserts a new account with INSERT ... RETURNING.
//
// No uniqueness read happens first: the accounts_email_key and
// accounts_xr_id_key constraints decide, and a violation comes back as the
// Conflict for whichever constraint fired.
func (s *Store) Create(ctx context.Context, in model.NewUser) (*model.User, error) {
	return repository.InsertWithXRID(in.XRID, s.now(), repository.NewXRID, func(xrID string) (*model.User, error) {
		var status, typ, rights int64
		err := s.pool.QueryRow(ctx, `
			SELECT COALESCE((SELECT id FROM status_users WHERE name = $1), $2),
			       COALESCE((SELECT id FROM type_users   WHERE name = $3), $4),
			       COALESCE((SELECT id FROM rights_users WHERE name = $5), $6)
		`,
			repository.StatusActive, repository.FallbackStatusID,
			repository.TypeScribe, repository.FallbackTypeID,
			repository.RightsProvider, repository.FallbackRightsID,
		).Scan(&status, &typ, &rights)
		if err != nil {
			return nil, oops.Code("ACCOUNT_CREATE_FAILED").
				With("operation", "resolve references").
				Wrap(err)
		}

		row := s.pool.QueryRow(ctx, `
			INSERT INTO accounts (`+accountColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING `+accountColumns,
			ulid.Make().String(),
			in.Name,
			in.Email,
			in.PasswordHash,
			xrID,
			status,
			typ,
			rights,
			s.now().UTC(),
		)

		u, err := scanAccount(row)
		if err == nil {
			return u, nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			switch pgErr.ConstraintName {
			case constraintEmail:
				return nil, oops.Code("ACCOUNT_EMAIL_TAKEN").
					With("email", in.Email).
					Wrap(apperror.EmailTaken())
			case constraintXRID:
				return nil, oops.Code("ACCOUNT_XR_ID_TAKEN").
					With("xr_id", xrID).
					Wrap(apperror.XRIDTaken())
			}
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, oops.Code("ACCOUNT_CREATE_FAILED").
				With("operation", "insert returning").
				With("email", in.Email).
				Wrap(apperror.CreationFailed(err))
		}
		return nil, oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("email", in.Email).
			Wrap(err)
	})
}

// Ping checks the pool can reach the server.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return oops.Code("DB_PING_FAILED").Wrap(err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanAccount(row pgx.Row) (*model.User, error) {
	var (
		u    model.User
		hash pgtype.Text
	)
	if err := row.Scan(
		&u.ID, &u.Name, &u.Email, &hash, &u.XRID,
		&u.StatusID, &u.TypeID, &u.RightsID, &u.CreatedAt,
	); err != nil {
		return nil, err
	}
	u.PasswordHash = hash.String
	return &u, nil
}
