package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/xrauth/internal/apperror"
	"github.com/sakif/xrauth/internal/dbx"
	"github.com/sakif/xrauth/internal/model"
	"github.com/sakif/xrauth/internal/repository"
)

// compile-time check that *LinkedStore implements repository.AccountStore
var _ repository.AccountStore = (*LinkedStore)(nil)

// LinkedStore keeps the profile in "users" and the login data in
// "access_users". Account ids are the users rowid rendered as a decimal string.
//
// FindByEmail reads only access_users, so the Credential it returns has a nil
// User: the caller follows UserID with FindByID.
type LinkedStore struct {
	db  *DB
	now func() time.Time
}

func NewLinkedStore(db *DB) *LinkedStore {
	return &LinkedStore{db: db, now: time.Now}
}

func (s *LinkedStore) FindByEmail(ctx context.Context, email string) (*model.Credential, error) {
	var (
		userID   int64
		password sql.NullString
	)
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT user_id, password FROM access_users WHERE email = ?`, email,
	).Scan(&userID, &password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("account", email)
		}
		return nil, fmt.Errorf("sqlite: looking up access row for %s: %w", email, err)
	}

	return &model.Credential{
		UserID:       strconv.FormatInt(userID, 10),
		Email:        email,
		PasswordHash: password.String,
	}, nil
}

// FindByID returns the user with its login email. A user row without an
// access row still comes back, with an empty Email.
func (s *LinkedStore) FindByID(ctx context.Context, id string) (*model.User, error) {
	rowID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, apperror.NotFound("user", id)
	}
	return s.getUser(ctx, s.db.conn, rowID)
}

// Create inserts the user row and its access row in one transaction.
//
// STEPS (all inside dbx.WithTx):
//  1. resolve the status/type/rights reference ids
//  2. INSERT INTO users → new rowid
//  3. re-read the user by rowid; nothing back means CreationFailed
//  4. INSERT INTO access_users
//
// A duplicate email fails step 4 and a duplicate XR id fails step 2; either
// way the transaction rolls back and no half-created account is left behind.
func (s *LinkedStore) Create(ctx context.Context, in model.NewUser) (*model.User, error) {
	return repository.InsertWithXRID(in.XRID, s.now(), repository.NewXRID, func(xrID string) (*model.User, error) {
		var created *model.User

		err := dbx.WithTx(ctx, s.db.conn, nil, func(ctx context.Context, tx dbx.DBTX) error {
			refs, err := resolveReferences(ctx, tx)
			if err != nil {
				return err
			}

			res, err := tx.ExecContext(ctx,
				`INSERT INTO users (name, xr, type, status, rights, created_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				in.Name, xrID, refs.typ, refs.status, refs.rights, toMillis(s.now()),
			)
			if err != nil {
				return s.insertError(err)
			}
			rowID, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("sqlite: reading new user id: %w", err)
			}

			u, err := s.getUser(ctx, tx, rowID)
			if err != nil {
				if errors.Is(err, apperror.ErrNotFound) {
					return apperror.CreationFailed(err)
				}
				return err
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO access_users (user_id, email, password) VALUES (?, ?, ?)`,
				rowID, in.Email, in.PasswordHash,
			); err != nil {
				return s.insertError(err)
			}

			u.Email = in.Email
			u.PasswordHash = in.PasswordHash
			created = u
			return nil
		})
		if err != nil {
			return nil, err
		}
		return created, nil
	})
}

func (s *LinkedStore) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *LinkedStore) Close() error { return s.db.Close() }

func (s *LinkedStore) insertError(err error) error {
	if conflict, ok := uniqueConflict(err, "access_users.email", "users.xr"); ok {
		return conflict
	}
	return fmt.Errorf("sqlite: inserting account: %w", err)
}

func (s *LinkedStore) getUser(ctx context.Context, q dbx.DBTX, rowID int64) (*model.User, error) {
	var (
		u        model.User
		id       int64
		created  int64
		email    sql.NullString
		password sql.NullString
	)
	err := q.QueryRowContext(ctx,
		`SELECT u.id, u.name, u.xr, u.type, u.status, u.rights, u.created_at, a.email, a.password
		 FROM users u
		 LEFT JOIN access_users a ON a.user_id = u.id
		 WHERE u.id = ?`,
		rowID,
	).Scan(&id, &u.Name, &u.XRID, &u.TypeID, &u.StatusID, &u.RightsID, &created, &email, &password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", strconv.FormatInt(rowID, 10))
		}
		return nil, fmt.Errorf("sqlite: getting user %d: %w", rowID, err)
	}

	u.ID = strconv.FormatInt(id, 10)
	u.CreatedAt = fromMillis(created)
	u.Email = email.String
	u.PasswordHash = password.String
	return &u, nil
}
