package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/common"
	"github.com/dmitrijs2005/zkvault/internal/dbx"
	"github.com/dmitrijs2005/zkvault/internal/logging"
	"github.com/dmitrijs2005/zkvault/internal/server/alerts"
	"github.com/dmitrijs2005/zkvault/internal/server/config"
	"github.com/dmitrijs2005/zkvault/internal/server/geo"
	"github.com/dmitrijs2005/zkvault/internal/server/models"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const maxLoginHistory = 100

// LoginResult is returned once per successful login. Token is never stored.
type LoginResult struct {
	Token     string
	SessionID string
	Duress    bool
	Salt      []byte
}

// ModeResult is returned by SwitchMode.
type ModeResult struct {
	Duress bool
	Salt   []byte
}

// OwnedDataEraser securely removes ciphertext an account owns. DeleteAccount
// runs every eraser before the account row goes.
type OwnedDataEraser interface {
	EraseOwned(ctx context.Context, ownerID string) error
}

// AuthService owns accounts and sessions. A session opened with the duress
// credential is bound to a duress flag; everything downstream asks IsDuress
// to pick the data view it serves.
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	verifier    *CredentialVerifier
	alerts      alerts.Submitter
	locator     geo.Locator
	log         logging.Logger
	secretKey   []byte
	idleTimeout time.Duration
	erasers     []OwnedDataEraser
	clock       clock
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config,
	submitter alerts.Submitter, locator geo.Locator, log logging.Logger, erasers ...OwnedDataEraser) *AuthService {
	return &AuthService{
		db:          db,
		repomanager: m,
		verifier:    NewCredentialVerifier(cfg.EvaluateBothHashes),
		alerts:      submitter,
		locator:     locator,
		log:         log.With("module", "auth"),
		secretKey:   []byte(cfg.SecretKey),
		idleTimeout: cfg.SessionIdleTimeout,
		erasers:     erasers,
	}
}

// Register creates the credential record of a new account.
func (s *AuthService) Register(ctx context.Context, userName, masterHash string, salt []byte) (*models.Account, error) {
	userName = strings.TrimSpace(userName)
	if userName == "" {
		return nil, fmt.Errorf("%w: username is required", common.ErrorValidation)
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("%w: salt is required", common.ErrorValidation)
	}
	hash, err := common.NormalizeAuthHash(masterHash)
	if err != nil {
		return nil, err
	}

	account, err := s.repomanager.Accounts(s.db).Create(ctx, &models.Account{
		UserName:       userName,
		MasterAuthHash: hash,
		EncryptionSalt: salt,
	})
	if err != nil {
		if errors.Is(err, common.ErrUsernameTaken) {
			return nil, err
		}
		s.log.Error(ctx, "create account failed", "err", err)
		return nil, common.ErrorInternal
	}
	s.log.Info(ctx, "account registered", "account_id", account.ID)
	return account, nil
}

// GetSalt returns the encryption salt of userName. Unknown users get a
// stable fake salt derived from the server key so that probing usernames
// does not reveal which exist.
func (s *AuthService) GetSalt(ctx context.Context, userName string) ([]byte, error) {
	account, err := s.repomanager.Accounts(s.db).GetByUserName(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return s.fakeSalt(userName), nil
		}
		s.log.Error(ctx, "get salt failed", "err", err)
		return nil, common.ErrorInternal
	}
	return account.EncryptionSalt, nil
}

func (s *AuthService) fakeSalt(userName string) []byte {
	h, err := blake2b.New(fakeSaltSize, s.secretKey)
	if err != nil {
		// key longer than 64 bytes; fall back to an unkeyed digest
		sum := blake2b.Sum256(append([]byte(userName), s.secretKey...))
		return sum[:]
	}
	h.Write([]byte("salt:"))
	h.Write([]byte(userName))
	return h.Sum(nil)
}

// Login checks candidateHash and opens a session. Unknown users and wrong
// hashes fail identically with common.ErrorUnauthorized.
func (s *AuthService) Login(ctx context.Context, userName, candidateHash string, info RequestInfo) (*LoginResult, error) {
	candidate, err := common.NormalizeAuthHash(candidateHash)
	if err != nil {
		return nil, err
	}

	location := s.locator.Locate(ctx, info.IP)
	event := &models.LoginEvent{UserName: userName, IP: info.IP, UserAgent: info.UserAgent, Location: location}

	account, err := s.repomanager.Accounts(s.db).GetByUserName(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.recordFailure(ctx, event)
			return nil, common.ErrorUnauthorized
		}
		s.log.Error(ctx, "login lookup failed", "err", err)
		return nil, common.ErrorInternal
	}
	event.AccountID = account.ID

	outcome := s.verifier.Verify(account, candidate)
	if outcome == OutcomeNone {
		s.recordFailure(ctx, event)
		return nil, common.ErrorUnauthorized
	}
	duress := outcome == OutcomeDuress

	token, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}
	session := &models.Session{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		TokenHash: tokenDigest(token),
		Device:    info.Device,
		UserAgent: info.UserAgent,
		IP:        info.IP,
		Location:  location,
	}
	event.Success = true

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Sessions(tx).Create(ctx, session); err != nil {
			return err
		}
		bindings := s.repomanager.Duress(tx)
		if duress {
			if err := bindings.Bind(ctx, session.ID, account.ID); err != nil {
				return err
			}
		} else {
			if _, err := bindings.UnbindAccount(ctx, account.ID); err != nil {
				return err
			}
		}
		return s.repomanager.LoginEvents(tx).Create(ctx, event)
	})
	if err != nil {
		s.log.Error(ctx, "login transaction failed", "account_id", account.ID, "err", err)
		return nil, common.ErrorInternal
	}

	s.log.Info(ctx, "login", "account_id", account.ID, "session_id", session.ID)
	s.notifyLogin(account, session)

	res := &LoginResult{Token: token, SessionID: session.ID, Duress: duress, Salt: account.EncryptionSalt}
	if duress {
		res.Salt = account.DuressSalt
		s.raiseCoercionAlert(account, session)
	}
	return res, nil
}

func (s *AuthService) recordFailure(ctx context.Context, event *models.LoginEvent) {
	if err := s.repomanager.LoginEvents(s.db).Create(ctx, event); err != nil {
		s.log.Warn(ctx, "record failed login", "err", err)
	}
}

func (s *AuthService) notifyLogin(account *models.Account, session *models.Session) {
	s.alerts.Submit(alerts.Alert{
		Kind:      alerts.KindLogin,
		AccountID: account.ID,
		Recipient: account.UserName,
		Subject:   "New sign-in to your vault",
		Fields: map[string]string{
			"ip":         session.IP,
			"user_agent": session.UserAgent,
			"location":   session.Location,
		},
	})
}

func (s *AuthService) raiseCoercionAlert(account *models.Account, session *models.Session) {
	if account.SOSContact == "" {
		return
	}
	s.alerts.Submit(alerts.Alert{
		Kind:      alerts.KindCoercion,
		AccountID: account.ID,
		Recipient: account.SOSContact,
		Subject:   "Emergency: " + account.UserName + " may be under duress",
		Body:      "A sign-in used the duress password. The person may be acting under coercion.",
		Fields: map[string]string{
			"ip":       session.IP,
			"location": session.Location,
		},
	})
}

// Authenticate resolves a bearer token to its live session and marks it
// active. Idle sessions are removed and rejected.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, common.ErrorUnauthorized
	}
	repo := s.repomanager.Sessions(s.db)

	session, err := repo.FindByTokenHash(ctx, tokenDigest(token))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		s.log.Error(ctx, "session lookup failed", "err", err)
		return nil, common.ErrorInternal
	}

	now := s.clock.now()
	if s.idleTimeout > 0 && now.Sub(session.LastActiveAt) > s.idleTimeout {
		if err := repo.Delete(ctx, session.AccountID, session.ID); err != nil && !errors.Is(err, common.ErrorNotFound) {
			s.log.Warn(ctx, "delete idle session", "session_id", session.ID, "err", err)
		}
		return nil, common.ErrorUnauthorized
	}

	if err := repo.Touch(ctx, session.ID, now); err != nil {
		s.log.Warn(ctx, "touch session", "session_id", session.ID, "err", err)
	}
	session.LastActiveAt = now
	return session, nil
}

// IsDuress reports whether the session was opened, or switched, into duress
// mode. It is the only way the rest of the system learns the mode.
func (s *AuthService) IsDuress(ctx context.Context, sessionID string) (bool, error) {
	bound, err := s.repomanager.Duress(s.db).IsBound(ctx, sessionID)
	if err != nil {
		s.log.Error(ctx, "duress lookup failed", "err", err)
		return false, common.ErrorInternal
	}
	return bound, nil
}

// SwitchMode re-verifies a hash for the current session and rebinds it to
// the matching mode in one transaction.
func (s *AuthService) SwitchMode(ctx context.Context, current *models.Session, candidateHash string) (*ModeResult, error) {
	candidate, err := common.NormalizeAuthHash(candidateHash)
	if err != nil {
		return nil, err
	}
	account, err := s.account(ctx, current.AccountID)
	if err != nil {
		return nil, err
	}

	outcome := s.verifier.Verify(account, candidate)
	if outcome == OutcomeNone {
		return nil, common.ErrorUnauthorized
	}
	duress := outcome == OutcomeDuress

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		bindings := s.repomanager.Duress(tx)
		if err := bindings.Unbind(ctx, current.ID); err != nil {
			return err
		}
		if duress {
			return bindings.Bind(ctx, current.ID, current.AccountID)
		}
		return nil
	})
	if err != nil {
		s.log.Error(ctx, "mode switch failed", "session_id", current.ID, "err", err)
		return nil, common.ErrorInternal
	}

	if duress {
		return &ModeResult{Duress: true, Salt: account.DuressSalt}, nil
	}
	return &ModeResult{Duress: false, Salt: account.EncryptionSalt}, nil
}

// Logout ends the current session.
func (s *AuthService) Logout(ctx context.Context, current *models.Session) error {
	if err := s.repomanager.Sessions(s.db).Delete(ctx, current.AccountID, current.ID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		s.log.Error(ctx, "logout failed", "err", err)
		return common.ErrorInternal
	}
	return nil
}

// ListSessions returns the devices signed in to the account of current.
func (s *AuthService) ListSessions(ctx context.Context, current *models.Session) ([]models.SessionInfo, error) {
	list, err := s.repomanager.Sessions(s.db).ListByAccount(ctx, current.AccountID)
	if err != nil {
		s.log.Error(ctx, "list sessions failed", "err", err)
		return nil, common.ErrorInternal
	}
	out := make([]models.SessionInfo, 0, len(list))
	for _, sess := range list {
		out = append(out, models.SessionInfo{Session: sess, Current: sess.ID == current.ID})
	}
	return out, nil
}

// RevokeSession deletes another session of the same account. The current
// session must use Logout.
func (s *AuthService) RevokeSession(ctx context.Context, current *models.Session, sessionID string) error {
	if sessionID == current.ID {
		return common.ErrCannotRevokeCurrent
	}
	if err := s.repomanager.Sessions(s.db).Delete(ctx, current.AccountID, sessionID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		s.log.Error(ctx, "revoke session failed", "err", err)
		return common.ErrorInternal
	}
	s.log.Info(ctx, "session revoked", "account_id", current.AccountID, "session_id", sessionID)
	return nil
}

// RevokeAllExceptCurrent signs out every other device and reports how many.
func (s *AuthService) RevokeAllExceptCurrent(ctx context.Context, current *models.Session) (int64, error) {
	n, err := s.repomanager.Sessions(s.db).DeleteAllExcept(ctx, current.AccountID, current.ID)
	if err != nil {
		s.log.Error(ctx, "revoke sessions failed", "err", err)
		return 0, common.ErrorInternal
	}
	s.log.Info(ctx, "sessions revoked", "account_id", current.AccountID, "count", n)
	return n, nil
}

// ChangePassword replaces the master credential. The duress credential was
// derived for the old password, so it is cleared together with every
// duress binding of the account.
func (s *AuthService) ChangePassword(ctx context.Context, current *models.Session, oldHash, newHash string, newSalt []byte) error {
	account, err := s.requireMaster(ctx, current, oldHash)
	if err != nil {
		return err
	}
	hash, err := common.NormalizeAuthHash(newHash)
	if err != nil {
		return err
	}
	if len(newSalt) == 0 {
		return fmt.Errorf("%w: salt is required", common.ErrorValidation)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Accounts(tx).UpdateMaster(ctx, account.ID, hash, newSalt); err != nil {
			return err
		}
		_, err := s.repomanager.Duress(tx).UnbindAccount(ctx, account.ID)
		return err
	})
	if err != nil {
		s.log.Error(ctx, "change password failed", "account_id", account.ID, "err", err)
		return common.ErrorInternal
	}
	s.log.Info(ctx, "password changed", "account_id", account.ID)
	return nil
}

// SetDuress configures the duress credential. The master hash is verified
// before the new hash is compared to it, so the comparison cannot be used
// to test guesses of the master hash.
func (s *AuthService) SetDuress(ctx context.Context, current *models.Session, masterHash, duressHash string, duressSalt []byte, sosContact string) error {
	account, err := s.requireMaster(ctx, current, masterHash)
	if err != nil {
		return err
	}
	hash, err := common.NormalizeAuthHash(duressHash)
	if err != nil {
		return err
	}
	if len(duressSalt) == 0 {
		return fmt.Errorf("%w: duress salt is required", common.ErrorValidation)
	}
	if common.HashesEqual(account.MasterAuthHash, hash) {
		return common.ErrDuressEqualsMaster
	}

	if err := s.repomanager.Accounts(s.db).SetDuress(ctx, account.ID, hash, duressSalt, strings.TrimSpace(sosContact)); err != nil {
		s.log.Error(ctx, "set duress failed", "account_id", account.ID, "err", err)
		return common.ErrorInternal
	}
	s.log.Info(ctx, "duress credential updated", "account_id", account.ID)
	return nil
}

// ClearDuress removes the duress credential and all duress bindings.
func (s *AuthService) ClearDuress(ctx context.Context, current *models.Session, masterHash string) error {
	account, err := s.requireMaster(ctx, current, masterHash)
	if err != nil {
		return err
	}
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Accounts(tx).ClearDuress(ctx, account.ID); err != nil {
			return err
		}
		_, err := s.repomanager.Duress(tx).UnbindAccount(ctx, account.ID)
		return err
	})
	if err != nil {
		s.log.Error(ctx, "clear duress failed", "account_id", account.ID, "err", err)
		return common.ErrorInternal
	}
	return nil
}

// DeleteAccount securely erases the account's secrets and vault entries,
// then removes the account; sessions, bindings, audit and traps go with it.
// A secret busy with a reader fails it with common.ErrConflict.
func (s *AuthService) DeleteAccount(ctx context.Context, current *models.Session, masterHash string) error {
	account, err := s.requireMaster(ctx, current, masterHash)
	if err != nil {
		return err
	}
	for _, e := range s.erasers {
		if err := e.EraseOwned(ctx, account.ID); err != nil {
			if errors.Is(err, common.ErrConflict) {
				return common.ErrConflict
			}
			s.log.Error(ctx, "erase account data failed", "account_id", account.ID, "err", err)
			return common.ErrorInternal
		}
	}
	if err := s.repomanager.Accounts(s.db).Delete(ctx, account.ID); err != nil {
		s.log.Error(ctx, "delete account failed", "account_id", account.ID, "err", err)
		return common.ErrorInternal
	}
	s.log.Info(ctx, "account deleted", "account_id", account.ID)
	return nil
}

// LoginHistory returns the account's newest login attempts. Duress logins
// read as plain successes.
func (s *AuthService) LoginHistory(ctx context.Context, current *models.Session, limit int) ([]models.LoginEvent, error) {
	if limit <= 0 || limit > maxLoginHistory {
		limit = maxLoginHistory
	}
	events, err := s.repomanager.LoginEvents(s.db).ListByAccount(ctx, current.AccountID, limit)
	if err != nil {
		s.log.Error(ctx, "list login events failed", "err", err)
		return nil, common.ErrorInternal
	}
	return events, nil
}

// PruneIdleSessions deletes sessions idle past the configured lifetime.
func (s *AuthService) PruneIdleSessions(ctx context.Context) (int64, error) {
	if s.idleTimeout <= 0 {
		return 0, nil
	}
	return s.repomanager.Sessions(s.db).DeleteIdle(ctx, s.clock.now().Add(-s.idleTimeout))
}

// requireMaster gates credential mutations. Duress sessions, unknown
// accounts, malformed and wrong hashes all fail with ErrorUnauthorized.
func (s *AuthService) requireMaster(ctx context.Context, current *models.Session, masterHash string) (*models.Account, error) {
	candidate, err := common.NormalizeAuthHash(masterHash)
	if err != nil {
		return nil, common.ErrorUnauthorized
	}
	account, err := s.account(ctx, current.AccountID)
	if err != nil {
		return nil, err
	}
	outcome := s.verifier.Verify(account, candidate)

	duress, err := s.IsDuress(ctx, current.ID)
	if err != nil {
		return nil, err
	}
	if duress || outcome != OutcomeMaster {
		return nil, common.ErrorUnauthorized
	}
	return account, nil
}

func (s *AuthService) account(ctx context.Context, id string) (*models.Account, error) {
	account, err := s.repomanager.Accounts(s.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		s.log.Error(ctx, "account lookup failed", "err", err)
		return nil, common.ErrorInternal
	}
	return account, nil
}
