package repository

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/sakif/xrauth/internal/apperror"
	"github.com/sakif/xrauth/internal/model"
)

func TestNewXRID(t *testing.T) {
	at := time.UnixMilli(1718000000123)

	if got := NewXRID(at); got != "XR-1718000000123" {
		t.Errorf("NewXRID() = %q, want XR-1718000000123", got)
	}
}

func TestNewXRID_Pattern(t *testing.T) {
	if got := NewXRID(time.Now()); !regexp.MustCompile(`^XR-\d+$`).MatchString(got) {
		t.Errorf("NewXRID() = %q, want ^XR-\\d+$", got)
	}
}

func TestInsertWithXRID_SuppliedIsUsedAsIs(t *testing.T) {
	calls := 0
	_, err := InsertWithXRID("XR-CUSTOM", time.Now(), NewXRID, func(xrID string) (*model.User, error) {
		calls++
		if xrID != "XR-CUSTOM" {
			t.Errorf("insert got %q, want XR-CUSTOM", xrID)
		}
		return nil, apperror.XRIDTaken()
	})

	if !apperror.IsConflictOn(err, apperror.FieldXRID) {
		t.Errorf("err = %v, want xrId conflict", err)
	}
	if calls != 1 {
		t.Errorf("insert called %d times, want 1 (supplied ids are never retried)", calls)
	}
}

func TestInsertWithXRID_GeneratedCollisionMovesToNextMillisecond(t *testing.T) {
	at := time.UnixMilli(1000)
	var seen []string

	u, err := InsertWithXRID("", at, NewXRID, func(xrID string) (*model.User, error) {
		seen = append(seen, xrID)
		if len(seen) < 3 {
			return nil, apperror.XRIDTaken()
		}
		return &model.User{XRID: xrID}, nil
	})
	if err != nil {
		t.Fatalf("InsertWithXRID() error = %v", err)
	}

	want := []string{"XR-1000", "XR-1001", "XR-1002"}
	if len(seen) != len(want) {
		t.Fatalf("attempts = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("attempt %d = %q, want %q", i, seen[i], want[i])
		}
	}
	if u.XRID != "XR-1002" {
		t.Errorf("XRID = %q, want XR-1002", u.XRID)
	}
}

func TestInsertWithXRID_EmailConflictIsNotRetried(t *testing.T) {
	calls := 0
	_, err := InsertWithXRID("", time.Now(), NewXRID, func(string) (*model.User, error) {
		calls++
		return nil, apperror.EmailTaken()
	})

	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
	if calls != 1 {
		t.Errorf("insert called %d times, want 1", calls)
	}
}

func TestInsertWithXRID_GivesUp(t *testing.T) {
	calls := 0
	_, err := InsertWithXRID("", time.Now(), NewXRID, func(string) (*model.User, error) {
		calls++
		return nil, apperror.XRIDTaken()
	})

	if !apperror.IsConflictOn(err, apperror.FieldXRID) {
		t.Errorf("err = %v, want xrId conflict", err)
	}
	if calls != maxXRIDAttempts {
		t.Errorf("insert called %d times, want %d", calls, maxXRIDAttempts)
	}
}
