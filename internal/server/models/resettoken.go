package models

import "time"

// ResetToken is a one-time password reset token (users_otp). Rows are never
// updated except for the single issued→consumed transition.
type ResetToken struct {
	ID         int64
	UserID     int64
	Token      string
	Email      string
	State      int
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}
