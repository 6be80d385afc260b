// Package verifications declares the repository contract for the single
// email verification record each account carries.
package verifications

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authgate/internal/server/models"
)

type Repository interface {
	// Create inserts the verification row for a newly registered account in
	// the given state.
	Create(ctx context.Context, v *models.Verification) (*models.Verification, error)

	// Reset replaces token, email and expiry of an account's verification
	// row and puts it back into the issued state, inserting the row if it is
	// missing.
	Reset(ctx context.Context, v *models.Verification) (*models.Verification, error)

	// FindByUser returns the account's verification row or
	// common.ErrorNotFound.
	FindByUser(ctx context.Context, userID int64) (*models.Verification, error)

	// MarkVerified moves an issued row with the given token to verified. It
	// returns common.ErrAlreadyVerified when nothing was in the issued state.
	MarkVerified(ctx context.Context, userID int64, token string, at time.Time) error
}
