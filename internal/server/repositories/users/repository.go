// Package users declares the account repository contract and its
// PostgreSQL implementation.
package users

import (
	"context"

	"github.com/dmitrijs2005/authgate/internal/server/models"
)

// Repository reads and mutates rows of the users table. Lookups return
// common.ErrorNotFound when the account is absent; Create returns
// common.ErrorConflict on a duplicate email.
type Repository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)

	// Update applies the non-nil fields of upd. A new email resets the
	// verified flag; a new password or state bumps the token version.
	Update(ctx context.Context, id int64, upd models.AccountUpdate) (*models.Account, error)

	// UpdatePassword stores a new hash and bumps the token version.
	UpdatePassword(ctx context.Context, id int64, hash []byte) error

	SetVerified(ctx context.Context, id int64) error

	// Deactivate marks the account inactive and bumps the token version.
	Deactivate(ctx context.Context, id int64) (*models.Account, error)

	// Search lists accounts whose email contains the given substring.
	Search(ctx context.Context, email string, limit int) ([]*models.Account, error)
}
