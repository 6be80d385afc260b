package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/dbx"
	"github.com/dmitrijs2005/authgate/internal/server/models"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/repomanager"
)

// oneTimeTokenBytes is the entropy of reset and verification tokens.
const oneTimeTokenBytes = 32

// OneTimeTokenStore owns issuance and single-use consumption of password
// reset and email verification tokens. A token is expired only when the
// current time is strictly after its expiration.
type OneTimeTokenStore struct {
	repomanager repomanager.RepositoryManager
	gate        *AccountGate
	now         func() time.Time
	newToken    func() (string, error)
}

func NewOneTimeTokenStore(m repomanager.RepositoryManager, gate *AccountGate) *OneTimeTokenStore {
	return &OneTimeTokenStore{
		repomanager: m,
		gate:        gate,
		now:         time.Now,
		newToken:    func() (string, error) { return common.MakeRandHexString(oneTimeTokenBytes) },
	}
}

func (s *OneTimeTokenStore) expired(exp time.Time) bool {
	return s.now().After(exp)
}

// IssueReset always inserts a new reset token; earlier ones stay valid
// until they expire or are consumed.
func (s *OneTimeTokenStore) IssueReset(ctx context.Context, db dbx.DBTX, accountID int64, email string, ttl time.Duration) (*models.ResetToken, error) {
	tok, err := s.newToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	return s.repomanager.ResetTokens(db).Create(ctx, &models.ResetToken{
		UserID:    accountID,
		Token:     tok,
		Email:     email,
		ExpiresAt: s.now().Add(ttl),
	})
}

// ConsumeReset spends a reset token and stores newPasswordHash in the same
// transaction. Of two concurrent consumers exactly one succeeds.
func (s *OneTimeTokenStore) ConsumeReset(ctx context.Context, db dbx.Handle, accountID int64, email, token string, newPasswordHash []byte) (*models.ResetToken, error) {
	t, err := s.repomanager.ResetTokens(db).Find(ctx, accountID, email, token)
	if err != nil {
		return nil, err
	}
	if s.expired(t.ExpiresAt) {
		return nil, common.ErrorExpired
	}
	if t.State == common.TokenConsumed {
		return nil, common.ErrAlreadyConsumed
	}

	at := s.now()
	err = dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.ResetTokens(tx).Consume(ctx, t.ID, at); err != nil {
			return err
		}
		return s.repomanager.Users(tx).UpdatePassword(ctx, accountID, newPasswordHash)
	})
	if err != nil {
		return nil, err
	}

	t.State = common.TokenConsumed
	t.ConsumedAt = &at
	return t, nil
}

// IssueOrUpdateVerification creates the account's verification row, or for
// an existing account replaces its token, email and expiration so that the
// previous token stops validating. db may be a transaction.
func (s *OneTimeTokenStore) IssueOrUpdateVerification(ctx context.Context, db dbx.DBTX, accountID int64, email string, isNew bool, initialState int, ttl time.Duration) (*models.Verification, error) {
	tok, err := s.newToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	v := &models.Verification{
		UserID:    accountID,
		Token:     tok,
		Email:     email,
		State:     initialState,
		ExpiresAt: s.now().Add(ttl),
	}

	repo := s.repomanager.Verifications(db)
	if isNew {
		return repo.Create(ctx, v)
	}
	return repo.Reset(ctx, v)
}

// ConsumeVerification marks the account's email as verified when token is
// its current, unexpired verification token, and returns the updated
// account.
func (s *OneTimeTokenStore) ConsumeVerification(ctx context.Context, db dbx.Handle, accountID int64, token string) (*models.Account, error) {
	account, err := s.gate.GetActiveAccount(ctx, db, accountID)
	if err != nil {
		return nil, err
	}
	if account.IsVerified() {
		return nil, common.ErrAlreadyVerified
	}

	v, err := s.repomanager.Verifications(db).FindByUser(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !common.SecureCompare(v.Token, token) {
		return nil, common.ErrorNotFound
	}
	if s.expired(v.ExpiresAt) {
		return nil, common.ErrorExpired
	}
	if v.State == common.TokenConsumed {
		return nil, common.ErrAlreadyVerified
	}

	err = dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Verifications(tx).MarkVerified(ctx, accountID, v.Token, s.now()); err != nil {
			return err
		}
		return s.repomanager.Users(tx).SetVerified(ctx, accountID)
	})
	if err != nil {
		return nil, err
	}

	account.Verified = 1
	return account, nil
}
