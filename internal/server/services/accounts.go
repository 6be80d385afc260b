// Package services contains server-side business logic: account gating,
// session authentication, the one-time token lifecycle, and the user and
// user data operations served over HTTPS.
package services

import (
	"context"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/dbx"
	"github.com/dmitrijs2005/authgate/internal/server/models"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/repomanager"
)

// AccountGate looks up accounts and enforces the active state. It never
// writes.
type AccountGate struct {
	repomanager repomanager.RepositoryManager
}

func NewAccountGate(m repomanager.RepositoryManager) *AccountGate {
	return &AccountGate{repomanager: m}
}

// GetAccount returns the account or common.ErrorNotFound.
func (g *AccountGate) GetAccount(ctx context.Context, db dbx.DBTX, id int64) (*models.Account, error) {
	return g.repomanager.Users(db).GetByID(ctx, id)
}

// RequireActive returns common.ErrorInactive for a deactivated account.
func (g *AccountGate) RequireActive(a *models.Account) error {
	if !a.IsActive() {
		return common.ErrorInactive
	}
	return nil
}

func (g *AccountGate) GetActiveAccount(ctx context.Context, db dbx.DBTX, id int64) (*models.Account, error) {
	a, err := g.GetAccount(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if err := g.RequireActive(a); err != nil {
		return nil, err
	}
	return a, nil
}
