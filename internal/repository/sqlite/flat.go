package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/xrauth/internal/apperror"
	"github.com/sakif/xrauth/internal/dbx"
	"github.com/sakif/xrauth/internal/model"
	"github.com/sakif/xrauth/internal/repository"
)

// compile-time check that *FlatStore implements repository.AccountStore
var _ repository.AccountStore = (*FlatStore)(nil)

const accountColumns = `id, name, email, password_hash, xr_id, status_id, type_id, rights_id, created_at`

// FlatStore keeps each account on a single "accounts" row keyed by an xid.
//
// WHY XID?
// xid produces 20-char, URL-safe, roughly time-sortable ids without any
// coordination. Sorting by id approximates sorting by creation time.
type FlatStore struct {
	db  *DB
	now func() time.Time
}

func NewFlatStore(db *DB) *FlatStore {
	return &FlatStore{db: db, now: time.Now}
}

// FindByEmail returns the credential together with the full user, so the
// service needs no second lookup.
func (s *FlatStore) FindByEmail(ctx context.Context, email string) (*model.Credential, error) {
	u, err := scanAccount(s.db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("account", email)
		}
		return nil, fmt.Errorf("sqlite: looking up account %s: %w", email, err)
	}

	return &model.Credential{
		UserID:       u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		User:         u,
	}, nil
}

func (s *FlatStore) FindByID(ctx context.Context, id string) (*model.User, error) {
	return s.get(ctx, s.db.conn, id)
}

// Create inserts the account and reads it back. Uniqueness of email and XR id
// is left to the UNIQUE constraints.
func (s *FlatStore) Create(ctx context.Context, in model.NewUser) (*model.User, error) {
	return repository.InsertWithXRID(in.XRID, s.now(), repository.NewXRID, func(xrID string) (*model.User, error) {
		var created *model.User

		err := dbx.WithTx(ctx, s.db.conn, nil, func(ctx context.Context, tx dbx.DBTX) error {
			refs, err := resolveReferences(ctx, tx)
			if err != nil {
				return err
			}

			id := xid.New().String()
			_, err = tx.ExecContext(ctx,
				`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				id, in.Name, in.Email, in.PasswordHash, xrID,
				refs.status, refs.typ, refs.rights, toMillis(s.now()),
			)
			if err != nil {
				if conflict, ok := uniqueConflict(err, "accounts.email", "accounts.xr_id"); ok {
					return conflict
				}
				return fmt.Errorf("sqlite: inserting account: %w", err)
			}

			u, err := s.get(ctx, tx, id)
			if err != nil {
				if errors.Is(err, apperror.ErrNotFound) {
					return apperror.CreationFailed(err)
				}
				return err
			}
			created = u
			return nil
		})
		if err != nil {
			return nil, err
		}
		return created, nil
	})
}

func (s *FlatStore) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *FlatStore) Close() error { return s.db.Close() }

func (s *FlatStore) get(ctx context.Context, q dbx.DBTX, id string) (*model.User, error) {
	u, err := scanAccount(q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting account %s: %w", id, err)
	}
	return u, nil
}

// scanAccount reads one row selected with accountColumns.
func scanAccount(row *sql.Row) (*model.User, error) {
	var (
		u       model.User
		hash    sql.NullString
		created int64
	)
	if err := row.Scan(
		&u.ID, &u.Name, &u.Email, &hash, &u.XRID,
		&u.StatusID, &u.TypeID, &u.RightsID, &created,
	); err != nil {
		return nil, err
	}
	u.PasswordHash = hash.String
	u.CreatedAt = fromMillis(created)
	return &u, nil
}
