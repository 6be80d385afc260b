package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/cryptox"
	"github.com/dmitrijs2005/authgate/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic, key string
	event      userEvent
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(_ context.Context, topic, key string, payload []byte) {
	var e userEvent
	_ = json.Unmarshal(payload, &e)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic: topic, key: key, event: e})
}

func (p *recordingPublisher) last() published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

type failingIssuer struct{}

func (failingIssuer) Issue(string, int64, time.Duration) (string, time.Time, error) {
	return "", time.Time{}, errors.New("no key")
}

type userFixture struct {
	m      *memDB
	svc    *UserService
	events *recordingPublisher
	cfg    *config.Config
	authn  *Authenticator
}

func newUserFixture(t *testing.T, mutate func(*config.Config)) *userFixture {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	if mutate != nil {
		mutate(cfg)
	}

	m := newMemDB()
	rm := &fakeRepoManager{m: m}
	gate := NewAccountGate(rm)
	clk := newClock()
	store := newStore(m, clk)
	codec := newTestCodec(t)
	events := &recordingPublisher{}

	svc := NewUserService(rm, gate, store, codec, cryptox.NewArgon2Hasher(), events, cfg, nopLogger{})
	svc.now = clk.now
	return &userFixture{
		m:      m,
		svc:    svc,
		events: events,
		cfg:    cfg,
		authn:  NewAuthenticator(gate, codec, nopLogger{}),
	}
}

func TestRegister_UserWithVerification(t *testing.T) {
	f := newUserFixture(t, nil)
	db := newHandle(t)

	sess, err := f.svc.Register(context.Background(), db, "a@x.io", "secret")
	require.NoError(t, err)

	assert.Equal(t, common.RoleUser, sess.Account.Role)
	assert.Equal(t, 0, sess.Account.Verified)
	require.NotNil(t, sess.Verification)
	assert.Equal(t, sess.Account.ID, sess.Verification.UserID)
	assert.NotEmpty(t, sess.Token)

	_, err = f.authn.Authenticate(context.Background(), db, sess.Token, sess.Account.ID)
	assert.NoError(t, err)

	ev := f.events.last()
	assert.Equal(t, f.cfg.KafkaTopic, ev.topic)
	assert.Equal(t, "user-1", ev.key)
	assert.Equal(t, EventUserCreated, ev.event.Type)
	assert.Equal(t, sess.Verification.Token, ev.event.VerificationToken)
}

func TestRegister_AdminWithoutVerification(t *testing.T) {
	f := newUserFixture(t, func(c *config.Config) { c.VerificationEnabled = false })

	sess, err := f.svc.Register(context.Background(), newHandle(t), f.cfg.AdminEmail, "secret")
	require.NoError(t, err)

	assert.Equal(t, common.RoleAdmin, sess.Account.Role)
	assert.Equal(t, 1, sess.Account.Verified)
	assert.Nil(t, sess.Verification)
	assert.Empty(t, f.m.verifs)
}

func TestRegister_Errors(t *testing.T) {
	f := newUserFixture(t, nil)
	db := newHandle(t)

	_, err := f.svc.Register(context.Background(), db, "a@x.io", "secret")
	require.NoError(t, err)
	_, err = f.svc.Register(context.Background(), db, "a@x.io", "secret")
	assert.ErrorIs(t, err, common.ErrorConflict)

	f.m.createUserErr = errors.New("db down")
	_, err = f.svc.Register(context.Background(), db, "b@x.io", "secret")
	assert.ErrorIs(t, err, common.ErrorInternal)

	f.m.createUserErr = nil
	f.svc.issuer = failingIssuer{}
	_, err = f.svc.Register(context.Background(), db, "c@x.io", "secret")
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestLogin_Flows(t *testing.T) {
	f := newUserFixture(t, nil)
	db := newHandle(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, db, "a@x.io", "secret")
	require.NoError(t, err)

	sess, err := f.svc.Login(ctx, db, "a@x.io", "secret")
	require.NoError(t, err)
	assert.Equal(t, reg.Account.ID, sess.Account.ID)

	_, err = f.svc.Login(ctx, db, "a@x.io", "wrong")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = f.svc.Login(ctx, db, "nobody@x.io", "secret")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	f.cfg.VerificationRequired = true
	_, err = f.svc.Login(ctx, db, "a@x.io", "secret")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	f.cfg.VerificationRequired = false

	_, err = f.svc.Deactivate(ctx, db, reg.Account, "a@x.io")
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, db, "a@x.io", "secret")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestUpdate_EmailChangeResetsVerification(t *testing.T) {
	f := newUserFixture(t, nil)
	db := newHandle(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, db, "a@x.io", "secret")
	require.NoError(t, err)
	_, err = f.svc.Verify(ctx, db, reg.Account.ID, reg.Verification.Token)
	require.NoError(t, err)

	actor := f.m.account(reg.Account.ID)
	email := "new@x.io"
	updated, err := f.svc.Update(ctx, db, actor, AccountChanges{Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "new@x.io", updated.Email)
	assert.Equal(t, 0, updated.Verified)

	v := f.m.verifs[reg.Account.ID]
	assert.NotEqual(t, reg.Verification.Token, v.Token)
	assert.Equal(t, "new@x.io", v.Email)

	ev := f.events.last()
	assert.Equal(t, EventUserUpdated, ev.event.Type)
	assert.Equal(t, v.Token, ev.event.VerificationToken)
}

func TestUpdate_EmailChangeWithoutVerificationStaysVerified(t *testing.T) {
	f := newUserFixture(t, func(c *config.Config) { c.VerificationEnabled = false })
	db := newHandle(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, db, "a@x.io", "secret")
	require.NoError(t, err)
	require.Equal(t, 1, reg.Account.Verified)

	email := "new@x.io"
	updated, err := f.svc.Update(ctx, db, reg.Account, AccountChanges{Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "new@x.io", updated.Email)
	assert.Equal(t, 1, updated.Verified)
	assert.Equal(t, 1, f.m.account(reg.Account.ID).Verified)
	assert.Empty(t, f.m.verifs)

	ev := f.events.last()
	assert.Equal(t, EventUserUpdated, ev.event.Type)
	assert.Empty(t, ev.event.VerificationToken)
}

func TestUpdate_PasswordRevokesSessions(t *testing.T) {
	f := newUserFixture(t, nil)
	db := newHandle(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, db, "a@x.io", "secret")
	require.NoError(t, err)

	pw := "other"
	_, err = f.svc.Update(ctx, db, reg.Account, AccountChanges{Password: &pw})
	require.NoError(t, err)

	_, err = f.authn.Authenticate(ctx, db, reg.Token, reg.Account.ID)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = f.svc.Login(ctx, db, "a@x.io", "other")
	assert.NoError(t, err)
}

func TestUpdate_Rejections(t *testing.T) {
	f := newUserFixture(t, nil)
	db := newHandle(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, db, "a@x.io", "secret")
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, db, "b@x.io", "secret")
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, db, reg.Account, AccountChanges{})
	assert.ErrorIs(t, err, common.ErrorMalformed)

	admin := common.RoleAdmin
	_, err = f.svc.Update(ctx, db, reg.Account, AccountChanges{Role: &admin})
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	taken := "b@x.io"
	_, err = f.svc.Update(ctx, db, reg.Account, AccountChanges{Email: &taken})
	assert.ErrorIs(t, err, common.ErrorConflict)

	same := "a@x.io"
	got, err := f.svc.Update(ctx, db, reg.Account, AccountChanges{Email: &same})
	require.NoError(t, err)
	assert.Equal(t, reg.Account.ID, got.ID)
}

func TestDeactivate(t *testing.T) {
	f := newUserFixture(t, nil)
	db := newHandle(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, db, "a@x.io", "secret")
	require.NoError(t, err)

	_, err = f.svc.Deactivate(ctx, db, reg.Account, "other@x.io")
	assert.ErrorIs(t, err, common.ErrorMalformed)

	a, err := f.svc.Deactivate(ctx, db, reg.Account, "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, common.AccountInactive, a.State)
	assert.Equal(t, EventUserDeactivated, f.events.last().event.Type)

	_, err = f.authn.Authenticate(ctx, db, reg.Token, reg.Account.ID)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestSearch(t *testing.T) {
	f := newUserFixture(t, nil)
	db := newHandle(t)
	ctx := context.Background()

	for _, e := range []string{"ann@x.io", "bob@y.io", "anna@x.io"} {
		_, err := f.svc.Register(ctx, db, e, "secret")
		require.NoError(t, err)
	}

	got, err := f.svc.Search(ctx, db, "ann")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ann@x.io", got[0].Email)
}

func TestPasswordResetFlow(t *testing.T) {
	f := newUserFixture(t, nil)
	db := newHandle(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, db, "a@x.io", "secret")
	require.NoError(t, err)

	_, err = f.svc.RequestPasswordReset(ctx, db, reg.Account, "x@x.io")
	assert.ErrorIs(t, err, common.ErrorMalformed)

	otp, err := f.svc.RequestPasswordReset(ctx, db, reg.Account, "a@x.io")
	require.NoError(t, err)

	_, err = f.svc.ChangePassword(ctx, db, reg.Account, "a@x.io", "bad-token", "fresh")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	got, err := f.svc.ChangePassword(ctx, db, reg.Account, "a@x.io", otp.Token, "fresh")
	require.NoError(t, err)
	assert.Equal(t, otp.ID, got.ID)

	_, err = f.svc.Login(ctx, db, "a@x.io", "fresh")
	assert.NoError(t, err)

	_, err = f.svc.ChangePassword(ctx, db, reg.Account, "a@x.io", otp.Token, "again")
	assert.ErrorIs(t, err, common.ErrAlreadyConsumed)
}

func TestVerify_Disabled(t *testing.T) {
	f := newUserFixture(t, func(c *config.Config) { c.VerificationEnabled = false })
	db := newHandle(t)

	reg, err := f.svc.Register(context.Background(), db, "a@x.io", "secret")
	require.NoError(t, err)

	a, err := f.svc.Verify(context.Background(), db, reg.Account.ID, "ignored-token-value")
	require.NoError(t, err)
	assert.Equal(t, reg.Account.ID, a.ID)

	_, err = f.svc.Verify(context.Background(), db, 999, "ignored-token-value")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestVerify_Enabled(t *testing.T) {
	f := newUserFixture(t, nil)
	db := newHandle(t)

	reg, err := f.svc.Register(context.Background(), db, "a@x.io", "secret")
	require.NoError(t, err)

	_, err = f.svc.Verify(context.Background(), db, reg.Account.ID, "wrong")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	a, err := f.svc.Verify(context.Background(), db, reg.Account.ID, reg.Verification.Token)
	require.NoError(t, err)
	assert.True(t, a.IsVerified())
}
