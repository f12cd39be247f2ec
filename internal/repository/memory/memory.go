// Package memory is the in-memory AccountStore used in mock mode.
//
// Nothing is persisted: the accounts live for as long as the Store value does.
// One Store is created at startup and passed to the service like any other
// backend.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/xrauth/internal/apperror"
	"github.com/sakif/xrauth/internal/model"
	"github.com/sakif/xrauth/internal/repository"
)

var _ repository.AccountStore = (*Store)(nil)

// MockXRID is the XR id generated for accounts created in mock mode.
func MockXRID(now time.Time) string {
	return "XR-MOCK-" + strconv.FormatInt(now.UnixMilli(), 10)
}

// Store keeps accounts in maps guarded by a RWMutex.
//
// byEmail is the primary index; byID and byXRID exist so FindByID is O(1)
// and so the XR id uniqueness check happens under the same lock as the
// insert. The uniqueness check and the insert are one critical section:
// two concurrent Creates for the same email can't both succeed.
type Store struct {
	mu      sync.RWMutex
	byEmail map[string]*model.User
	byID    map[string]*model.User
	byXRID  map[string]*model.User
	now     func() time.Time
}

func New() *Store {
	return &Store{
		byEmail: make(map[string]*model.User),
		byID:    make(map[string]*model.User),
		byXRID:  make(map[string]*model.User),
		now:     time.Now,
	}
}

// FindByEmail returns the credential for email. The mock keeps everything on
// one record, so the returned Credential always carries its User.
func (s *Store) FindByEmail(_ context.Context, email string) (*model.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byEmail[email]
	if !ok {
		return nil, apperror.NotFound("account", email)
	}
	cp := *u
	return &model.Credential{
		UserID:       cp.ID,
		Email:        cp.Email,
		PasswordHash: cp.PasswordHash,
		User:         &cp,
	}, nil
}

func (s *Store) FindByID(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

// Create stores a new account. Callers get a copy; the stored record can't
// be mutated from outside.
func (s *Store) Create(_ context.Context, in model.NewUser) (*model.User, error) {
	return repository.InsertWithXRID(in.XRID, s.now(), MockXRID, func(xrID string) (*model.User, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if _, taken := s.byEmail[in.Email]; taken {
			return nil, apperror.EmailTaken()
		}
		if _, taken := s.byXRID[xrID]; taken {
			return nil, apperror.XRIDTaken()
		}

		u := &model.User{
			ID:           xid.New().String(),
			Name:         in.Name,
			Email:        in.Email,
			PasswordHash: in.PasswordHash,
			XRID:         xrID,
			CreatedAt:    s.now().UTC(),
		}
		s.byEmail[u.Email] = u
		s.byID[u.ID] = u
		s.byXRID[u.XRID] = u

		cp := *u
		return &cp, nil
	})
}

// Len reports how many accounts are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byEmail)
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
