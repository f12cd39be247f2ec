package service

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/sakif/xrauth/internal/apperror"
	"github.com/sakif/xrauth/internal/auth"
)

// MinPasswordLength is the shortest password accepted at sign-up.
const MinPasswordLength = 6

// emailPattern is deliberately loose: something@something.something, no
// whitespace. Deliverability is not checked. RE2's \s is ASCII only, so
// ValidateSignUp rejects Unicode spaces (NBSP, em space, BOM) separately.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidateSignUp checks sign-up input. Rules run in order and the first
// failure is returned:
//
//  1. name, email and password are all present
//  2. password is at least MinPasswordLength characters
//  3. password fits bcrypt's 72-byte input
//  4. email looks like an address
//
// Length counts characters (runes), not bytes, except for the bcrypt bound.
func ValidateSignUp(name, email, password string) error {
	if name == "" || email == "" || password == "" {
		return apperror.ValidationFailed(firstMissing(
			field{"name", name}, field{"email", email}, field{"password", password},
		), "Name, email, and password are required")
	}
	if len([]rune(password)) < MinPasswordLength {
		return apperror.ValidationFailed("password", "Password must be at least 6 characters")
	}
	if len(password) > auth.MaxPasswordBytes {
		return apperror.ValidationFailed("password", "Password must be at most 72 bytes")
	}
	if strings.IndexFunc(email, isSpace) >= 0 || !emailPattern.MatchString(email) {
		return apperror.ValidationFailed("email", "Invalid email format")
	}
	return nil
}

// ValidateSignIn only checks presence. Format rules would tell a caller
// which half of a bad login was malformed.
func ValidateSignIn(email, password string) error {
	if email == "" || password == "" {
		return apperror.ValidationFailed(firstMissing(
			field{"email", email}, field{"password", password},
		), "Email and password are required")
	}
	return nil
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r) || unicode.Is(unicode.Zs, r) || r == '\uFEFF'
}

type field struct{ name, value string }

func firstMissing(fields ...field) string {
	for _, f := range fields {
		if f.value == "" {
			return f.name
		}
	}
	return ""
}
