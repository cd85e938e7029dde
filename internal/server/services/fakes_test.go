package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/common"
	"github.com/dmitrijs2005/zkvault/internal/dbx"
	"github.com/dmitrijs2005/zkvault/internal/server/alerts"
	"github.com/dmitrijs2005/zkvault/internal/server/models"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/canaries"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/duress"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/entries"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/files"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/loginevents"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/secrets"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/sessions"
)

// --- a database/sql driver whose transactions do nothing ---

type txCounter struct {
	begins, commits, rollbacks atomic.Int32
}

type noopDriver struct{ c *txCounter }
type noopConn struct{ c *txCounter }
type noopTx struct{ c *txCounter }

func (d noopDriver) Open(string) (driver.Conn, error)  { return noopConn(d), nil }
func (c noopConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (c noopConn) Close() error                        { return nil }
func (c noopConn) Begin() (driver.Tx, error)           { c.c.begins.Add(1); return noopTx(c), nil }
func (t noopTx) Commit() error                         { t.c.commits.Add(1); return nil }
func (t noopTx) Rollback() error                       { t.c.rollbacks.Add(1); return nil }

var driverSeq atomic.Int32

func newNoopDB(t *testing.T) (*sql.DB, *txCounter) {
	t.Helper()
	c := &txCounter{}
	name := fmt.Sprintf("noop-%d", driverSeq.Add(1))
	sql.Register(name, noopDriver{c: c})
	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open noop db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, c
}

// --- in-memory store behind every repository ---

type fakeStore struct {
	mu sync.Mutex

	accounts   map[string]*models.Account
	events     []models.LoginEvent
	sessions   map[string]*models.Session
	bindings   map[string]string
	secrets    map[string]*models.SharedSecret
	overwrites map[string][][]byte
	traps      map[string]*models.CanaryTrap
	trapEvents []models.TriggerEvent
	entries    map[string]*models.Entry
	files      map[string]*models.File

	entrySelects int

	// fail injects an error for the named repository method.
	fail map[string]error
	// beforeGetForUpdate runs outside the lock before a secret is read.
	beforeGetForUpdate func(id string)

	seq int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:   map[string]*models.Account{},
		sessions:   map[string]*models.Session{},
		bindings:   map[string]string{},
		secrets:    map[string]*models.SharedSecret{},
		overwrites: map[string][][]byte{},
		traps:      map[string]*models.CanaryTrap{},
		entries:    map[string]*models.Entry{},
		files:      map[string]*models.File{},
		fail:       map[string]error{},
	}
}

func (s *fakeStore) err(op string) error {
	return s.fail[op]
}

func (s *fakeStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s%d", prefix, s.seq)
}

type fakeRepoManager struct{ st *fakeStore }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Accounts(dbx.DBTX) accounts.Repository        { return &fakeAccounts{m.st} }
func (m *fakeRepoManager) LoginEvents(dbx.DBTX) loginevents.Repository  { return &fakeLoginEvents{m.st} }
func (m *fakeRepoManager) Sessions(dbx.DBTX) sessions.Repository        { return &fakeSessions{m.st} }
func (m *fakeRepoManager) Duress(dbx.DBTX) duress.Repository            { return &fakeDuress{m.st} }
func (m *fakeRepoManager) Secrets(dbx.DBTX) secrets.Repository          { return &fakeSecrets{m.st} }
func (m *fakeRepoManager) Canaries(dbx.DBTX) canaries.Repository        { return &fakeCanaries{m.st} }
func (m *fakeRepoManager) Entries(dbx.DBTX) entries.Repository          { return &fakeEntries{m.st} }
func (m *fakeRepoManager) Files(dbx.DBTX) files.Repository              { return &fakeFiles{m.st} }

// accounts

type fakeAccounts struct{ st *fakeStore }

func (r *fakeAccounts) Create(_ context.Context, a *models.Account) (*models.Account, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.err("accounts.Create"); err != nil {
		return nil, err
	}
	for _, existing := range r.st.accounts {
		if existing.UserName == a.UserName {
			return nil, common.ErrUsernameTaken
		}
	}
	a.ID = r.st.nextID("acc-")
	a.CreatedAt = time.Now()
	cp := *a
	r.st.accounts[a.ID] = &cp
	return a, nil
}

func (r *fakeAccounts) GetByUserName(_ context.Context, userName string) (*models.Account, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.err("accounts.Get"); err != nil {
		return nil, err
	}
	for _, a := range r.st.accounts {
		if a.UserName == userName {
			cp := *a
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *fakeAccounts) GetByID(_ context.Context, id string) (*models.Account, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.err("accounts.Get"); err != nil {
		return nil, err
	}
	a, ok := r.st.accounts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAccounts) UpdateMaster(_ context.Context, id, hash string, salt []byte) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	a, ok := r.st.accounts[id]
	if !ok {
		return common.ErrorNotFound
	}
	a.MasterAuthHash, a.EncryptionSalt = hash, salt
	a.DuressAuthHash, a.DuressSalt = "", nil
	return nil
}

func (r *fakeAccounts) SetDuress(_ context.Context, id, hash string, salt []byte, sos string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	a, ok := r.st.accounts[id]
	if !ok {
		return common.ErrorNotFound
	}
	a.DuressAuthHash, a.DuressSalt, a.SOSContact = hash, salt, sos
	return nil
}

func (r *fakeAccounts) ClearDuress(_ context.Context, id string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	a, ok := r.st.accounts[id]
	if !ok {
		return common.ErrorNotFound
	}
	a.DuressAuthHash, a.DuressSalt, a.SOSContact = "", nil, ""
	return nil
}

func (r *fakeAccounts) Delete(_ context.Context, id string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.accounts[id]; !ok {
		return common.ErrorNotFound
	}
	for _, sec := range r.st.secrets {
		if sec.OwnerID == id {
			return errors.New("shared_secrets_owner_id_fkey violation")
		}
	}
	for _, e := range r.st.entries {
		if e.UserID == id {
			return errors.New("entries_user_id_fkey violation")
		}
	}
	delete(r.st.accounts, id)
	for sid, s := range r.st.sessions {
		if s.AccountID == id {
			delete(r.st.sessions, sid)
			delete(r.st.bindings, sid)
		}
	}
	return nil
}

// login events

type fakeLoginEvents struct{ st *fakeStore }

func (r *fakeLoginEvents) Create(_ context.Context, e *models.LoginEvent) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.err("loginevents.Create"); err != nil {
		return err
	}
	e.ID = r.st.nextID("ev-")
	r.st.events = append(r.st.events, *e)
	return nil
}

func (r *fakeLoginEvents) ListByAccount(_ context.Context, accountID string, limit int) ([]models.LoginEvent, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.err("loginevents.List"); err != nil {
		return nil, err
	}
	var out []models.LoginEvent
	for i := len(r.st.events) - 1; i >= 0 && len(out) < limit; i-- {
		if e := r.st.events[i]; e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out, nil
}

// sessions

type fakeSessions struct{ st *fakeStore }

func (r *fakeSessions) Create(_ context.Context, s *models.Session) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.err("sessions.Create"); err != nil {
		return err
	}
	now := time.Now()
	s.CreatedAt, s.LastActiveAt = now, now
	cp := *s
	r.st.sessions[s.ID] = &cp
	return nil
}

func (r *fakeSessions) FindByTokenHash(_ context.Context, h []byte) (*models.Session, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, s := range r.st.sessions {
		if string(s.TokenHash) == string(h) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *fakeSessions) ListByAccount(_ context.Context, accountID string) ([]models.Session, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []models.Session
	for _, s := range r.st.sessions {
		if s.AccountID == accountID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeSessions) Touch(_ context.Context, id string, at time.Time) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if s, ok := r.st.sessions[id]; ok {
		s.LastActiveAt = at
	}
	return nil
}

func (r *fakeSessions) Delete(_ context.Context, accountID, id string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	s, ok := r.st.sessions[id]
	if !ok || s.AccountID != accountID {
		return common.ErrorNotFound
	}
	delete(r.st.sessions, id)
	delete(r.st.bindings, id)
	return nil
}

func (r *fakeSessions) DeleteAllExcept(_ context.Context, accountID, keepID string) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var n int64
	for id, s := range r.st.sessions {
		if s.AccountID == accountID && id != keepID {
			delete(r.st.sessions, id)
			delete(r.st.bindings, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeSessions) DeleteIdle(_ context.Context, cutoff time.Time) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var n int64
	for id, s := range r.st.sessions {
		if s.LastActiveAt.Before(cutoff) {
			delete(r.st.sessions, id)
			delete(r.st.bindings, id)
			n++
		}
	}
	return n, nil
}

// duress bindings

type fakeDuress struct{ st *fakeStore }

func (r *fakeDuress) Bind(_ context.Context, sessionID, accountID string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.err("duress.Bind"); err != nil {
		return err
	}
	r.st.bindings[sessionID] = accountID
	return nil
}

func (r *fakeDuress) Unbind(_ context.Context, sessionID string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	delete(r.st.bindings, sessionID)
	return nil
}

func (r *fakeDuress) UnbindAccount(_ context.Context, accountID string) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var n int64
	for sid, acc := range r.st.bindings {
		if acc == accountID {
			delete(r.st.bindings, sid)
			n++
		}
	}
	return n, nil
}

func (r *fakeDuress) IsBound(_ context.Context, sessionID string) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.err("duress.IsBound"); err != nil {
		return false, err
	}
	_, ok := r.st.bindings[sessionID]
	return ok, nil
}

// shared secrets

type fakeSecrets struct{ st *fakeStore }

func (r *fakeSecrets) Create(_ context.Context, s *models.SharedSecret) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.err("secrets.Create"); err != nil {
		return err
	}
	s.CreatedAt = time.Now()
	cp := *s
	cp.EncryptedBlob = append([]byte(nil), s.EncryptedBlob...)
	r.st.secrets[s.ID] = &cp
	return nil
}

func (r *fakeSecrets) Get(_ context.Context, id string) (*models.SharedSecret, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	s, ok := r.st.secrets[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSecrets) GetForUpdate(ctx context.Context, id string) (*models.SharedSecret, error) {
	if hook := r.st.beforeGetForUpdate; hook != nil {
		hook(id)
	}
	if err := r.st.err("secrets.GetForUpdate"); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *fakeSecrets) IncrementViews(_ context.Context, id string) (int, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	s, ok := r.st.secrets[id]
	if !ok {
		return 0, common.ErrorNotFound
	}
	s.ViewCount++
	return s.ViewCount, nil
}

func (r *fakeSecrets) Overwrite(_ context.Context, id string, blob []byte) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.err("secrets.Overwrite"); err != nil {
		return err
	}
	if s, ok := r.st.secrets[id]; ok {
		s.EncryptedBlob = blob
	}
	r.st.overwrites[id] = append(r.st.overwrites[id], blob)
	return nil
}

func (r *fakeSecrets) Delete(_ context.Context, id string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	delete(r.st.secrets, id)
	return nil
}

func (r *fakeSecrets) ListOwned(_ context.Context, ownerID string) ([]models.SharedSecret, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []models.SharedSecret
	for _, s := range r.st.secrets {
		if s.OwnerID == ownerID {
			cp := *s
			cp.EncryptedBlob = nil
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeSecrets) SelectExpired(_ context.Context, now time.Time, limit int) ([]string, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var ids []string
	for id, s := range r.st.secrets {
		if s.Expired(now) && len(ids) < limit {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// canary traps

type fakeCanaries struct{ st *fakeStore }

func (r *fakeCanaries) Create(_ context.Context, t *models.CanaryTrap) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.err("canaries.Create"); err != nil {
		return err
	}
	t.Active = true
	t.CreatedAt = time.Now()
	cp := *t
	r.st.traps[t.ID] = &cp
	return nil
}

func (r *fakeCanaries) FindActiveByTokenForUpdate(_ context.Context, token string) (*models.CanaryTrap, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, t := range r.st.traps {
		if t.Token == token && t.Active {
			cp := *t
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *fakeCanaries) RecordTrigger(_ context.Context, id string, at time.Time) (int, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	t, ok := r.st.traps[id]
	if !ok {
		return 0, common.ErrorNotFound
	}
	t.TriggerCount++
	t.LastTriggeredAt = &at
	return t.TriggerCount, nil
}

func (r *fakeCanaries) AddEvent(_ context.Context, e *models.TriggerEvent) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.err("canaries.AddEvent"); err != nil {
		return err
	}
	r.st.trapEvents = append(r.st.trapEvents, *e)
	return nil
}

func (r *fakeCanaries) ListByOwner(_ context.Context, ownerID string) ([]models.CanaryTrap, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []models.CanaryTrap
	for _, t := range r.st.traps {
		if t.OwnerID == ownerID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *fakeCanaries) Events(_ context.Context, ownerID, trapID string, limit int) ([]models.TriggerEvent, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	t, ok := r.st.traps[trapID]
	if !ok || t.OwnerID != ownerID {
		return nil, common.ErrorNotFound
	}
	var out []models.TriggerEvent
	for _, e := range r.st.trapEvents {
		if e.TrapID == trapID && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeCanaries) Deactivate(_ context.Context, ownerID, trapID string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	t, ok := r.st.traps[trapID]
	if !ok || t.OwnerID != ownerID {
		return common.ErrorNotFound
	}
	t.Active = false
	return nil
}

// entries and files

type fakeEntries struct{ st *fakeStore }

func (r *fakeEntries) SelectShredCandidates(_ context.Context, cutoff time.Time, after models.ShredCandidate, limit int) ([]models.ShredCandidate, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.err("entries.Select"); err != nil {
		return nil, err
	}
	r.st.entrySelects++
	var all []models.ShredCandidate
	for _, e := range r.st.entries {
		if e.DeletedAt != nil && e.DeletedAt.Before(cutoff) {
			all = append(all, models.ShredCandidate{ID: e.ID, UserID: e.UserID, DeletedAt: *e.DeletedAt})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].DeletedAt.Equal(all[j].DeletedAt) {
			return all[i].DeletedAt.Before(all[j].DeletedAt)
		}
		return all[i].ID < all[j].ID
	})
	var out []models.ShredCandidate
	for _, c := range all {
		past := c.DeletedAt.After(after.DeletedAt) || (c.DeletedAt.Equal(after.DeletedAt) && c.ID > after.ID)
		if past && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeEntries) TrashByUser(_ context.Context, userID string, at time.Time) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.err("entries.TrashByUser"); err != nil {
		return 0, err
	}
	var n int64
	for _, e := range r.st.entries {
		if e.UserID == userID && e.DeletedAt == nil {
			t := at
			e.DeletedAt = &t
			n++
		}
	}
	return n, nil
}

func (r *fakeEntries) ListIDsByUser(_ context.Context, userID string) ([]string, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var ids []string
	for _, e := range r.st.entries {
		if e.UserID == userID {
			ids = append(ids, e.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *fakeEntries) GetForShred(_ context.Context, id string) (*models.Entry, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	e, ok := r.st.entries[id]
	if !ok || e.DeletedAt == nil {
		return nil, common.ErrorNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *fakeEntries) Overwrite(_ context.Context, e *models.Entry) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.err("entries.Overwrite:" + e.ID); err != nil {
		return err
	}
	cur, ok := r.st.entries[e.ID]
	if !ok {
		return errors.New("unexpected rows affected: 0")
	}
	cur.Overview, cur.NonceOverview, cur.Details, cur.NonceDetails = e.Overview, e.NonceOverview, e.Details, e.NonceDetails
	return nil
}

func (r *fakeEntries) Delete(_ context.Context, id string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	delete(r.st.entries, id)
	return nil
}

type fakeFiles struct{ st *fakeStore }

func (r *fakeFiles) GetByEntryID(_ context.Context, entryID string) (*models.File, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	f, ok := r.st.files[entryID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *f
	return &cp, nil
}

func (r *fakeFiles) Overwrite(_ context.Context, entryID string, key, nonce []byte) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if f, ok := r.st.files[entryID]; ok {
		f.EncryptedFileKey, f.Nonce = key, nonce
	}
	return nil
}

func (r *fakeFiles) Delete(_ context.Context, entryID string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	delete(r.st.files, entryID)
	return nil
}

// --- collaborators ---

type recordingSubmitter struct {
	mu     sync.Mutex
	alerts []alerts.Alert
	reject bool
}

func (r *recordingSubmitter) Submit(a alerts.Alert) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reject {
		return false
	}
	r.alerts = append(r.alerts, a)
	return true
}

func (r *recordingSubmitter) byKind(k alerts.Kind) []alerts.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []alerts.Alert
	for _, a := range r.alerts {
		if a.Kind == k {
			out = append(out, a)
		}
	}
	return out
}

type staticLocator string

func (l staticLocator) Locate(context.Context, string) string { return string(l) }

type fakeObjects struct {
	mu      sync.Mutex
	deleted []string
	fail    map[string]error
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[key]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, key)
	return nil
}

func fixedClock(t time.Time) clock {
	return func() time.Time { return t }
}
