package models

import "time"

// Verification is the single email verification record of an account
// (users_verified).
type Verification struct {
	ID         int64
	UserID     int64
	Token      string
	Email      string
	State      int
	ExpiresAt  time.Time
	VerifiedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
