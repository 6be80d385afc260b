package services

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/dbx"
	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/models"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/resettokens"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/userdata"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/users"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/verifications"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// --- helpers ---

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any) {}
func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (nopLogger) With(...any) logging.Logger            { return nopLogger{} }

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// newHandle returns a real transactional handle. The fakes ignore it, but
// dbx.WithTx needs genuine *sql.Tx values.
func newHandle(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// --- in-memory repositories ---

type memDB struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]*models.Account
	resets   []*models.ResetToken
	verifs   map[int64]*models.Verification
	data     []*models.UserData

	updatePasswordErr error
	createUserErr     error
}

func newMemDB() *memDB {
	return &memDB{accounts: map[int64]*models.Account{}, verifs: map[int64]*models.Verification{}}
}

func (m *memDB) id() int64 {
	m.nextID++
	return m.nextID
}

func cloneAccount(a *models.Account) *models.Account {
	c := *a
	c.PasswordHash = append([]byte(nil), a.PasswordHash...)
	return &c
}

// addAccount seeds an account directly.
func (m *memDB) addAccount(a models.Account) *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.id()
	if a.Role == "" {
		a.Role = common.RoleUser
	}
	m.accounts[a.ID] = &a
	return cloneAccount(&a)
}

func (m *memDB) account(id int64) *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAccount(m.accounts[id])
}

type memUsers struct{ m *memDB }

func (r memUsers) Create(_ context.Context, a *models.Account) (*models.Account, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.createUserErr != nil {
		return nil, r.m.createUserErr
	}
	for _, x := range r.m.accounts {
		if x.Email == a.Email {
			return nil, common.ErrorConflict
		}
	}
	c := cloneAccount(a)
	c.ID = r.m.id()
	r.m.accounts[c.ID] = c
	return cloneAccount(c), nil
}

func (r memUsers) GetByID(_ context.Context, id int64) (*models.Account, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.accounts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneAccount(a), nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, a := range r.m.accounts {
		if a.Email == email {
			return cloneAccount(a), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memUsers) Update(_ context.Context, id int64, upd models.AccountUpdate) (*models.Account, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.accounts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if upd.Email != nil {
		for _, x := range r.m.accounts {
			if x.ID != id && x.Email == *upd.Email {
				return nil, common.ErrorConflict
			}
		}
		a.Email = *upd.Email
	}
	if upd.Verified != nil {
		a.Verified = *upd.Verified
	}
	if upd.PasswordHash != nil {
		a.PasswordHash = upd.PasswordHash
	}
	if upd.State != nil {
		a.State = *upd.State
	}
	if upd.Role != nil {
		a.Role = *upd.Role
	}
	if upd.PasswordHash != nil || upd.State != nil {
		a.TokenVersion++
	}
	return cloneAccount(a), nil
}

func (r memUsers) UpdatePassword(_ context.Context, id int64, hash []byte) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.updatePasswordErr != nil {
		return r.m.updatePasswordErr
	}
	a, ok := r.m.accounts[id]
	if !ok {
		return common.ErrorNotFound
	}
	a.PasswordHash = hash
	a.TokenVersion++
	return nil
}

func (r memUsers) SetVerified(_ context.Context, id int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.accounts[id]
	if !ok {
		return common.ErrorNotFound
	}
	a.Verified = 1
	return nil
}

func (r memUsers) Deactivate(_ context.Context, id int64) (*models.Account, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.accounts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	a.State = common.AccountInactive
	a.TokenVersion++
	return cloneAccount(a), nil
}

func (r memUsers) Search(_ context.Context, email string, limit int) ([]*models.Account, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Account
	for id := int64(1); id <= r.m.nextID && len(out) < limit; id++ {
		if a, ok := r.m.accounts[id]; ok && strings.Contains(a.Email, email) {
			out = append(out, cloneAccount(a))
		}
	}
	return out, nil
}

type memResets struct{ m *memDB }

func (r memResets) Create(_ context.Context, t *models.ResetToken) (*models.ResetToken, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c := *t
	c.ID = r.m.id()
	c.State = common.TokenIssued
	r.m.resets = append(r.m.resets, &c)
	out := c
	return &out, nil
}

func (r memResets) Find(_ context.Context, userID int64, email, token string) (*models.ResetToken, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, t := range r.m.resets {
		if t.UserID == userID && t.Email == email && t.Token == token {
			c := *t
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memResets) Consume(_ context.Context, id int64, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, t := range r.m.resets {
		if t.ID == id && t.State == common.TokenIssued {
			t.State = common.TokenConsumed
			t.ConsumedAt = &at
			return nil
		}
	}
	return common.ErrAlreadyConsumed
}

type memVerifs struct{ m *memDB }

func (r memVerifs) Create(_ context.Context, v *models.Verification) (*models.Verification, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c := *v
	c.ID = r.m.id()
	r.m.verifs[c.UserID] = &c
	out := c
	return &out, nil
}

func (r memVerifs) Reset(_ context.Context, v *models.Verification) (*models.Verification, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c := *v
	if old, ok := r.m.verifs[v.UserID]; ok {
		c.ID = old.ID
	} else {
		c.ID = r.m.id()
	}
	c.VerifiedAt = nil
	r.m.verifs[c.UserID] = &c
	out := c
	return &out, nil
}

func (r memVerifs) FindByUser(_ context.Context, userID int64) (*models.Verification, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	v, ok := r.m.verifs[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *v
	return &c, nil
}

func (r memVerifs) MarkVerified(_ context.Context, userID int64, token string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	v, ok := r.m.verifs[userID]
	if !ok || v.Token != token || v.State != common.TokenIssued {
		return common.ErrAlreadyVerified
	}
	v.State = common.TokenConsumed
	v.VerifiedAt = &at
	return nil
}

type memData struct{ m *memDB }

func (r memData) Create(_ context.Context, d *models.UserData) (*models.UserData, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c := *d
	c.ID = r.m.id()
	r.m.data = append(r.m.data, &c)
	out := c
	return &out, nil
}

func (r memData) Search(_ context.Context, userID int64, f models.UserDataFilter, limit int) ([]*models.UserData, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.UserData
	for _, d := range r.m.data {
		if d.UserID != userID || (f.Filename != "" && !strings.Contains(d.Filename, f.Filename)) {
			continue
		}
		c := *d
		out = append(out, &c)
	}
	return out, nil
}

func (r memData) Update(_ context.Context, userID, dataID int64, upd models.UserDataUpdate) (*models.UserData, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, d := range r.m.data {
		if d.ID == dataID && d.UserID == userID {
			if upd.Filename != nil {
				d.Filename = *upd.Filename
			}
			c := *d
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

type fakeRepoManager struct{ m *memDB }

func (f *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (f *fakeRepoManager) Users(dbx.DBTX) users.Repository              { return memUsers{f.m} }
func (f *fakeRepoManager) ResetTokens(dbx.DBTX) resettokens.Repository  { return memResets{f.m} }
func (f *fakeRepoManager) Verifications(dbx.DBTX) verifications.Repository {
	return memVerifs{f.m}
}
func (f *fakeRepoManager) UserData(dbx.DBTX) userdata.Repository { return memData{f.m} }

// newStore wires a OneTimeTokenStore over the in-memory fakes with a
// controllable clock and predictable tokens.
func newStore(m *memDB, clk *clock) *OneTimeTokenStore {
	rm := &fakeRepoManager{m: m}
	s := NewOneTimeTokenStore(rm, NewAccountGate(rm))
	s.now = clk.now
	var mu sync.Mutex
	n := 0
	s.newToken = func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return strings.Repeat("ab", 16) + string(rune('a'+n%26)), nil
	}
	return s
}
