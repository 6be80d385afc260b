// Package resettokens declares the server-side repository contract for
// one-time password reset tokens.
package resettokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authgate/internal/server/models"
)

// Repository issues, looks up and consumes reset tokens. Rows are
// insert-only apart from the issued→consumed transition.
type Repository interface {
	// Create inserts a new issued token and fills in its ID and CreatedAt.
	Create(ctx context.Context, token *models.ResetToken) (*models.ResetToken, error)

	// Find returns the token row matching all of userID, email and token, or
	// common.ErrorNotFound.
	Find(ctx context.Context, userID int64, email, token string) (*models.ResetToken, error)

	// Consume flips an issued token to consumed. It returns
	// common.ErrAlreadyConsumed when the row is no longer in the issued state,
	// which is how a concurrent consumer loses the race.
	Consume(ctx context.Context, id int64, at time.Time) error
}
