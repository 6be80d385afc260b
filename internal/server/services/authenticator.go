package services

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/dbx"
	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/auth"
	"github.com/dmitrijs2005/authgate/internal/server/models"
)

// TokenVerifier checks a session token against the subject it must carry.
type TokenVerifier interface {
	Verify(token, expectedSubject string) (*auth.Claims, error)
}

// Authenticator validates the session token presented for a claimed
// account. Every failure is reported as common.ErrorUnauthorized.
type Authenticator struct {
	gate     *AccountGate
	verifier TokenVerifier
	logger   logging.Logger
}

func NewAuthenticator(gate *AccountGate, verifier TokenVerifier, logger logging.Logger) *Authenticator {
	return &Authenticator{gate: gate, verifier: verifier, logger: logger.With("module", "authenticator")}
}

// Authenticate returns the claimed account if token is a live session for
// it. The account is loaded and checked for activity before the token is
// looked at.
func (a *Authenticator) Authenticate(ctx context.Context, db dbx.DBTX, token string, claimedID int64) (*models.Account, error) {
	account, err := a.gate.GetActiveAccount(ctx, db, claimedID)
	if err != nil {
		a.logger.Warn(ctx, "authentication rejected", "account_id", claimedID, "cause", err)
		return nil, common.ErrorUnauthorized
	}

	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		a.logger.Warn(ctx, "authentication rejected", "account_id", claimedID, "cause", "missing token")
		return nil, common.ErrorUnauthorized
	}

	claims, err := a.verifier.Verify(token, account.Email)
	if err != nil {
		a.logger.Warn(ctx, "authentication rejected", "account_id", claimedID, "cause", err)
		return nil, common.ErrorUnauthorized
	}

	if claims.Version != account.TokenVersion {
		a.logger.Warn(ctx, "authentication rejected", "account_id", claimedID, "cause", "revoked token",
			"token_version", claims.Version, "account_version", account.TokenVersion)
		return nil, common.ErrorUnauthorized
	}

	return account, nil
}
