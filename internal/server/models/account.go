// Package models defines server-side data models persisted in the database.
package models

import "time"

// Account is a row of the users table.
type Account struct {
	ID           int64
	Email        string
	PasswordHash []byte
	State        int
	Verified     int
	Role         string
	// TokenVersion is embedded in every session token and bumped to revoke
	// all outstanding tokens for the account.
	TokenVersion int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsActive reports whether the account may log in or authenticate.
func (a *Account) IsActive() bool { return a.State == 0 }

// IsVerified reports whether the account email has been verified.
func (a *Account) IsVerified() bool { return a.Verified == 1 }

// AccountUpdate lists the columns a profile update may change. Nil fields
// are left untouched.
type AccountUpdate struct {
	Email        *string
	PasswordHash []byte
	State        *int
	Role         *string
	Verified     *int
}

// Empty reports whether the update would change nothing.
func (u AccountUpdate) Empty() bool {
	return u.Email == nil && u.PasswordHash == nil && u.State == nil && u.Role == nil && u.Verified == nil
}
