// Package sqlite implements repository.AccountStore on an embedded SQLite
// database, in two layouts:
//
//   - LinkedStore: profile rows in "users", login data in "access_users"
//     (two tables joined by user_id)
//   - FlatStore: everything on one "accounts" row
//
// Both layouts live in the same schema. Which one the server uses is picked
// by configuration at startup.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, so you need a C compiler and cross-compilation
// becomes painful. modernc.org/sqlite is a pure Go translation of SQLite.
//
// UNIQUENESS:
// Email and XR id uniqueness is enforced by UNIQUE constraints, never by a
// "SELECT then INSERT". A constraint violation is translated into
// apperror.Conflict naming the column that collided.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/sakif/xrauth/internal/apperror"
	"github.com/sakif/xrauth/internal/dbx"
	"github.com/sakif/xrauth/internal/repository"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// DB wraps the sql.DB connection pool shared by both store layouts.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and applies
// the embedded migrations.
//
// PRAGMAS:
// modernc applies every _pragma in the DSN to each new connection:
//   - foreign_keys(1): SQLite ships with FK enforcement off
//   - journal_mode(WAL): readers don't block the writer
//   - busy_timeout(5000): wait for a lock instead of failing with SQLITE_BUSY
//
// After migrating, the pool is capped at one connection. SQLite allows a
// single writer anyway, and one connection means transactions queue in the
// pool rather than racing for the file lock.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := open(ctx, path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	db.conn.SetMaxOpenConns(1)

	return db, nil
}

// MigratePath applies pending migrations to the database at path and
// closes it again. It backs the "migrate" command.
func MigratePath(ctx context.Context, path string) ([]int64, error) {
	db, err := open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return db.Migrate(ctx)
}

func open(ctx context.Context, path string) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite: database path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: creating data directory: %w", err)
		}
	}

	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Migrate applies pending migrations and returns the versions it applied.
//
// MIGRATIONS:
// The .sql files are embedded into the binary with go:embed, and goose
// records applied versions in its own goose_db_version table, so running
// Migrate on an up-to-date database is a no-op.
func (db *DB) Migrate(ctx context.Context) ([]int64, error) {
	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db.conn, fsys)
	if err != nil {
		return nil, fmt.Errorf("sqlite: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	applied := make([]int64, 0, len(results))
	for _, r := range results {
		applied = append(applied, r.Source.Version)
	}
	return applied, nil
}

// Ping checks that the database file is still reachable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// references holds the lookup-table ids stamped on a new account.
type references struct {
	status, typ, rights int64
}

// resolveReferences looks up the "Active" status, "Scribe" type and
// "Provider" rights ids. A name missing from its table falls back to the
// fixed default id instead of failing the sign-up.
func resolveReferences(ctx context.Context, q dbx.DBTX) (references, error) {
	var refs references
	var err error

	if refs.status, err = lookupReference(ctx, q, "status_users", repository.StatusActive, repository.FallbackStatusID); err != nil {
		return refs, err
	}
	if refs.typ, err = lookupReference(ctx, q, "type_users", repository.TypeScribe, repository.FallbackTypeID); err != nil {
		return refs, err
	}
	if refs.rights, err = lookupReference(ctx, q, "rights_users", repository.RightsProvider, repository.FallbackRightsID); err != nil {
		return refs, err
	}
	return refs, nil
}

// lookupReference is only ever called with the constant table names above.
func lookupReference(ctx context.Context, q dbx.DBTX, table, name string, fallback int64) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT id FROM `+table+` WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: looking up %s %q: %w", table, name, err)
	}
	return id, nil
}

// uniqueColumn reports the "table.column" a UNIQUE / PRIMARY KEY violation
// tripped on, and whether err is such a violation at all.
//
// SQLite reports the column only in the message:
//
//	UNIQUE constraint failed: accounts.email
//
// so the extended result code identifies the violation and the message
// identifies the column.
func uniqueColumn(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
		default:
			return "", false
		}
	}

	const marker = "UNIQUE constraint failed: "
	msg := err.Error()
	i := strings.LastIndex(msg, marker)
	if i < 0 {
		if sqliteErr != nil {
			return "", true
		}
		return "", false
	}
	col := msg[i+len(marker):]
	if j := strings.IndexAny(col, " ,("); j >= 0 {
		col = col[:j]
	}
	return col, true
}

// uniqueConflict maps a UNIQUE violation onto the Conflict for the column it
// names. ok is false when err isn't a UNIQUE violation.
func uniqueConflict(err error, emailColumn, xrColumn string) (conflict error, ok bool) {
	col, ok := uniqueColumn(err)
	if !ok {
		return nil, false
	}
	switch col {
	case emailColumn:
		return apperror.EmailTaken(), true
	case xrColumn:
		return apperror.XRIDTaken(), true
	default:
		return fmt.Errorf("sqlite: unexpected unique violation on %q: %w", col, err), true
	}
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
