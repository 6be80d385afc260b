package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/cryptox"
	"github.com/dmitrijs2005/authgate/internal/dbx"
	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/config"
	"github.com/dmitrijs2005/authgate/internal/server/models"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/repomanager"
)

// Event types published to the user events topic.
const (
	EventUserCreated     = "user.created"
	EventUserUpdated     = "user.updated"
	EventUserDeactivated = "user.deactivated"
)

// maxSearchResults caps user and user data searches.
const maxSearchResults = 100

// TokenIssuer mints session tokens.
type TokenIssuer interface {
	Issue(subject string, version int64, ttl time.Duration) (string, time.Time, error)
}

// EventPublisher delivers an event without blocking the caller on broker
// availability.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte)
}

// Session is an account together with a freshly issued session token.
type Session struct {
	Account   *models.Account
	Token     string
	ExpiresAt time.Time
	// Verification is set when registration issued a verification token.
	Verification *models.Verification
}

// AccountChanges is a profile update request. Nil fields are not changed.
type AccountChanges struct {
	Email    *string
	Password *string
	State    *int
	Role     *string
}

func (c AccountChanges) empty() bool {
	return c.Email == nil && c.Password == nil && c.State == nil && c.Role == nil
}

type userEvent struct {
	Type              string `json:"type"`
	UserID            int64  `json:"user_id"`
	Email             string `json:"email"`
	State             int    `json:"state"`
	Verified          int    `json:"verified"`
	Role              string `json:"role"`
	VerificationToken string `json:"verification_token,omitempty"`
	At                string `json:"at"`
}

// UserService implements registration, login and the account operations of
// an authenticated user.
type UserService struct {
	repomanager repomanager.RepositoryManager
	gate        *AccountGate
	tokens      *OneTimeTokenStore
	issuer      TokenIssuer
	hasher      cryptox.PasswordHasher
	events      EventPublisher
	config      *config.Config
	logger      logging.Logger
	now         func() time.Time
}

func NewUserService(m repomanager.RepositoryManager, gate *AccountGate, tokens *OneTimeTokenStore, issuer TokenIssuer,
	hasher cryptox.PasswordHasher, events EventPublisher, cfg *config.Config, logger logging.Logger) *UserService {
	return &UserService{
		repomanager: m,
		gate:        gate,
		tokens:      tokens,
		issuer:      issuer,
		hasher:      hasher,
		events:      events,
		config:      cfg,
		logger:      logger.With("module", "users"),
		now:         time.Now,
	}
}

func (s *UserService) hash(password string) []byte {
	return s.hasher.Hash(password, s.config.PasswordSalt)
}

// internal logs err and hides it behind common.ErrorInternal unless it is
// one of the sentinels callers are expected to map.
func (s *UserService) internal(ctx context.Context, op string, err error) error {
	for _, known := range []error{
		common.ErrorNotFound, common.ErrorConflict, common.ErrorUnauthorized, common.ErrorInactive,
		common.ErrorMalformed, common.ErrorExpired, common.ErrAlreadyConsumed, common.ErrAlreadyVerified,
	} {
		if errors.Is(err, known) {
			return known
		}
	}
	s.logger.Error(ctx, op+" failed", "error", err)
	return common.ErrorInternal
}

func (s *UserService) session(a *models.Account) (*Session, error) {
	tok, exp, err := s.issuer.Issue(a.Email, a.TokenVersion, s.config.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Account: a, Token: tok, ExpiresAt: exp}, nil
}

func (s *UserService) publish(ctx context.Context, typ string, a *models.Account, verificationToken string) {
	payload, err := json.Marshal(userEvent{
		Type:              typ,
		UserID:            a.ID,
		Email:             a.Email,
		State:             a.State,
		Verified:          a.Verified,
		Role:              a.Role,
		VerificationToken: verificationToken,
		At:                s.now().UTC().Format(common.TimeLayout),
	})
	if err != nil {
		s.logger.Error(ctx, "encode event failed", "type", typ, "error", err)
		return
	}
	s.events.Publish(ctx, s.config.KafkaTopic, fmt.Sprintf("user-%d", a.ID), payload)
}

// Register creates an account, issues its verification token when
// verification is enabled, and signs the first session token.
func (s *UserService) Register(ctx context.Context, db dbx.Handle, email, password string) (*Session, error) {
	role := common.RoleUser
	if email == s.config.AdminEmail {
		role = common.RoleAdmin
	}
	verified := 0
	if !s.config.VerificationEnabled {
		verified = 1
	}

	var account *models.Account
	var verification *models.Verification

	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		a, err := s.repomanager.Users(tx).Create(ctx, &models.Account{
			Email:        email,
			PasswordHash: s.hash(password),
			State:        common.AccountActive,
			Verified:     verified,
			Role:         role,
		})
		if err != nil {
			return err
		}
		account = a

		if s.config.VerificationEnabled {
			v, err := s.tokens.IssueOrUpdateVerification(ctx, tx, a.ID, a.Email, true, common.TokenIssued, s.config.VerificationTTL)
			if err != nil {
				return err
			}
			verification = v
		}
		return nil
	})
	if err != nil {
		return nil, s.internal(ctx, "register", err)
	}

	sess, err := s.session(account)
	if err != nil {
		return nil, s.internal(ctx, "register", err)
	}
	sess.Verification = verification

	var vt string
	if verification != nil {
		vt = verification.Token
	}
	s.publish(ctx, EventUserCreated, account, vt)

	s.logger.Info(ctx, "account created", "account_id", account.ID, "role", account.Role)
	return sess, nil
}

// Login checks the password first and the account state second.
func (s *UserService) Login(ctx context.Context, db dbx.DBTX, email, password string) (*Session, error) {
	a, err := s.repomanager.Users(db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, s.internal(ctx, "login", err)
	}

	if !s.hasher.Equal(a.PasswordHash, s.hash(password)) {
		s.logger.Warn(ctx, "login rejected", "account_id", a.ID, "cause", "password mismatch")
		return nil, common.ErrorUnauthorized
	}
	if err := s.gate.RequireActive(a); err != nil {
		s.logger.Warn(ctx, "login rejected", "account_id", a.ID, "cause", err)
		return nil, common.ErrorUnauthorized
	}
	if s.config.VerificationRequired && !a.IsVerified() {
		s.logger.Warn(ctx, "login rejected", "account_id", a.ID, "cause", "email not verified")
		return nil, common.ErrorUnauthorized
	}

	sess, err := s.session(a)
	if err != nil {
		return nil, s.internal(ctx, "login", err)
	}
	return sess, nil
}

// Update applies changes to actor's own account. Changing the email resets
// verification when verification is enabled and marks the account verified
// otherwise; changing the password or state revokes outstanding session
// tokens. Only admins may change a role.
func (s *UserService) Update(ctx context.Context, db dbx.Handle, actor *models.Account, changes AccountChanges) (*models.Account, error) {
	if changes.empty() {
		return nil, common.ErrorMalformed
	}
	if changes.Role != nil && *changes.Role != actor.Role && actor.Role != common.RoleAdmin {
		return nil, common.ErrorUnauthorized
	}

	upd := models.AccountUpdate{State: changes.State, Role: changes.Role}
	emailChanged := changes.Email != nil && *changes.Email != actor.Email
	if emailChanged {
		verified := 0
		if !s.config.VerificationEnabled {
			verified = 1
		}
		upd.Email = changes.Email
		upd.Verified = &verified
	}
	if changes.Password != nil {
		upd.PasswordHash = s.hash(*changes.Password)
	}
	if upd.Empty() {
		return actor, nil
	}

	var updated *models.Account
	var verificationToken string

	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		a, err := s.repomanager.Users(tx).Update(ctx, actor.ID, upd)
		if err != nil {
			return err
		}
		updated = a

		if emailChanged && s.config.VerificationEnabled {
			v, err := s.tokens.IssueOrUpdateVerification(ctx, tx, a.ID, a.Email, false, common.TokenIssued, s.config.VerificationTTL)
			if err != nil {
				return err
			}
			verificationToken = v.Token
		}
		return nil
	})
	if err != nil {
		return nil, s.internal(ctx, "update", err)
	}

	s.publish(ctx, EventUserUpdated, updated, verificationToken)
	return updated, nil
}

// Deactivate marks actor inactive. email must be the account's current
// email.
func (s *UserService) Deactivate(ctx context.Context, db dbx.DBTX, actor *models.Account, email string) (*models.Account, error) {
	if email != actor.Email {
		return nil, common.ErrorMalformed
	}

	a, err := s.repomanager.Users(db).Deactivate(ctx, actor.ID)
	if err != nil {
		return nil, s.internal(ctx, "deactivate", err)
	}

	s.publish(ctx, EventUserDeactivated, a, "")
	s.logger.Info(ctx, "account deactivated", "account_id", a.ID)
	return a, nil
}

// Search finds accounts whose email contains fragment.
func (s *UserService) Search(ctx context.Context, db dbx.DBTX, fragment string) ([]*models.Account, error) {
	out, err := s.repomanager.Users(db).Search(ctx, fragment, maxSearchResults)
	if err != nil {
		return nil, s.internal(ctx, "search", err)
	}
	return out, nil
}

// RequestPasswordReset issues a reset token for actor. email must match
// the account.
func (s *UserService) RequestPasswordReset(ctx context.Context, db dbx.DBTX, actor *models.Account, email string) (*models.ResetToken, error) {
	if email != actor.Email {
		return nil, common.ErrorMalformed
	}

	t, err := s.tokens.IssueReset(ctx, db, actor.ID, actor.Email, s.config.ResetTokenTTL)
	if err != nil {
		return nil, s.internal(ctx, "issue reset", err)
	}
	return t, nil
}

// ChangePassword consumes a reset token and sets the new password, which
// also revokes every outstanding session token of the account.
func (s *UserService) ChangePassword(ctx context.Context, db dbx.Handle, actor *models.Account, email, token, password string) (*models.ResetToken, error) {
	if email != actor.Email {
		return nil, common.ErrorMalformed
	}

	t, err := s.tokens.ConsumeReset(ctx, db, actor.ID, email, token, s.hash(password))
	if err != nil {
		return nil, s.internal(ctx, "consume reset", err)
	}

	s.logger.Info(ctx, "password changed", "account_id", actor.ID, "otp_id", t.ID)
	return t, nil
}

// Verify consumes an email verification token. With verification disabled
// the account is returned unchanged.
func (s *UserService) Verify(ctx context.Context, db dbx.Handle, accountID int64, token string) (*models.Account, error) {
	if !s.config.VerificationEnabled {
		a, err := s.gate.GetAccount(ctx, db, accountID)
		if err != nil {
			return nil, s.internal(ctx, "verify", err)
		}
		return a, nil
	}

	a, err := s.tokens.ConsumeVerification(ctx, db, accountID, token)
	if err != nil {
		return nil, s.internal(ctx, "verify", err)
	}
	return a, nil
}
