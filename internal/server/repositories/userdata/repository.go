// Package userdata declares the repository contract for metadata of
// objects uploaded by users.
package userdata

import (
	"context"

	"github.com/dmitrijs2005/authgate/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, d *models.UserData) (*models.UserData, error)
	// Search lists the user's records matching every set field of the filter,
	// newest first.
	Search(ctx context.Context, userID int64, f models.UserDataFilter, limit int) ([]*models.UserData, error)
	// Update changes descriptive columns of one record owned by userID.
	// common.ErrorNotFound is returned when no such record exists.
	Update(ctx context.Context, userID, dataID int64, upd models.UserDataUpdate) (*models.UserData, error)
}
