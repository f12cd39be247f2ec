// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// ID is opaque: the in-memory and single-table stores hand out xid strings,
// the hosted store hands out ULIDs and the two-table store exposes its
// integer primary key as a decimal string. Nothing outside a store may
// depend on the format.
//
// XRID is the external identifier. It is unique across all users, just like
// Email, and is generated by the store when the caller doesn't supply one.
//
// WHY PasswordHash HAS json:"-"?
// The hash must never leave the process. Even if someone accidentally encodes
// a full User into a response, the tag keeps the digest out of the JSON.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"` // unique, compared case-sensitively
	PasswordHash string    `json:"-"`
	XRID         string    `json:"xrId"`
	CreatedAt    time.Time `json:"createdAt"`

	// Reference-data links. Only relational backends fill these in; they hold
	// the ids resolved from the status/type/rights lookup tables at creation.
	StatusID int64 `json:"-"`
	TypeID   int64 `json:"-"`
	RightsID int64 `json:"-"`
}

// Public returns the projection that is safe to hand to callers.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		XRID:  u.XRID,
	}
}

// PublicUser is the user shape returned by sign-up and sign-in:
//
//	{"id":"...","name":"Ann","email":"ann@example.com","xrId":"XR-1718000000000"}
type PublicUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	XRID  string `json:"xrId"`
}

// Credential is what a store returns for an email lookup.
//
// Some backends keep the login data in its own table, keyed by the owning
// user's id; others keep it on the user row. Stores with a unified row set
// User so the caller has everything after one read. Stores with a separate
// credential table leave User nil and the caller follows UserID with a
// second lookup.
type Credential struct {
	UserID       string
	Email        string
	PasswordHash string
	User         *User
}

// NewUser carries the inputs for creating an account.
// XRID is optional; an empty string asks the store to generate one.
type NewUser struct {
	Name         string
	Email        string
	PasswordHash string
	XRID         string
}
