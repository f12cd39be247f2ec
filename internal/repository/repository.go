// Package repository defines the storage contract for accounts.
//
// Four backends implement AccountStore: an in-memory mock (memory), a
// two-table and a single-table SQLite layout (sqlite) and a hosted Postgres
// database (postgres). The service depends only on this interface; which
// backend is used is decided once at startup.
package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/sakif/xrauth/internal/apperror"
	"github.com/sakif/xrauth/internal/model"
)

// Reference names resolved when an account is created, together with the
// ids used when the lookup tables don't contain them.
const (
	StatusActive   = "Active"
	TypeScribe     = "Scribe"
	RightsProvider = "Provider"

	FallbackStatusID int64 = 1
	FallbackTypeID   int64 = 2
	FallbackRightsID int64 = 1
)

// AccountStore is the storage contract every backend satisfies.
//
// ERROR CONTRACT:
//   - FindByEmail / FindByID return an error matching apperror.ErrNotFound
//     when no row exists.
//   - Create returns an error matching apperror.ErrConflict when the email or
//     XR id is taken (enforced by the storage itself, not by a prior read),
//     and apperror.ErrCreationFailed when the freshly inserted row can't be
//     read back.
//   - Anything else is an infrastructure failure.
//
// Email comparison is exact: "A@x.io" and "a@x.io" are different accounts.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*model.Credential, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
	Create(ctx context.Context, in model.NewUser) (*model.User, error)
	Ping(ctx context.Context) error
	Close() error
}

// maxXRIDAttempts bounds how many consecutive milliseconds InsertWithXRID
// tries before giving up on a generated XR id.
const maxXRIDAttempts = 16

// NewXRID returns the generated XR id for an account created at now:
// "XR-" followed by the Unix time in milliseconds.
//
// Two accounts created in the same millisecond get the same candidate. See
// InsertWithXRID for how stores deal with that.
func NewXRID(now time.Time) string {
	return "XR-" + strconv.FormatInt(now.UnixMilli(), 10)
}

// InsertWithXRID runs insert with the XR id the caller asked for, or with a
// generated one.
//
// A supplied XR id is used as-is: if it's taken the caller gets the Conflict.
// A generated id colliding with an existing one is the store's own doing, so
// the next millisecond is tried instead. Only the XR id constraint is
// retried; an email Conflict is returned immediately.
func InsertWithXRID(xrID string, now time.Time, gen func(time.Time) string, insert func(xrID string) (*model.User, error)) (*model.User, error) {
	if xrID != "" {
		return insert(xrID)
	}

	var err error
	for i := range maxXRIDAttempts {
		var u *model.User
		u, err = insert(gen(now.Add(time.Duration(i) * time.Millisecond)))
		if !apperror.IsConflictOn(err, apperror.FieldXRID) {
			return u, err
		}
	}
	return nil, err
}
