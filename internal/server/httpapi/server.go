// Package httpapi exposes the vault services over HTTP/JSON.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/netip"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/logging"
	"github.com/dmitrijs2005/zkvault/internal/server/models"
	"github.com/dmitrijs2005/zkvault/internal/server/services"
	"github.com/gorilla/mux"
)

// Accounts is the subset of services.AuthService the API needs.
type Accounts interface {
	Register(ctx context.Context, userName, masterHash string, salt []byte) (*models.Account, error)
	GetSalt(ctx context.Context, userName string) ([]byte, error)
	Login(ctx context.Context, userName, candidateHash string, info services.RequestInfo) (*services.LoginResult, error)
	Authenticate(ctx context.Context, token string) (*models.Session, error)
	SwitchMode(ctx context.Context, current *models.Session, candidateHash string) (*services.ModeResult, error)
	Logout(ctx context.Context, current *models.Session) error
	ListSessions(ctx context.Context, current *models.Session) ([]models.SessionInfo, error)
	RevokeSession(ctx context.Context, current *models.Session, sessionID string) error
	RevokeAllExceptCurrent(ctx context.Context, current *models.Session) (int64, error)
	ChangePassword(ctx context.Context, current *models.Session, oldHash, newHash string, newSalt []byte) error
	SetDuress(ctx context.Context, current *models.Session, masterHash, duressHash string, duressSalt []byte, sosContact string) error
	ClearDuress(ctx context.Context, current *models.Session, masterHash string) error
	DeleteAccount(ctx context.Context, current *models.Session, masterHash string) error
	LoginHistory(ctx context.Context, current *models.Session, limit int) ([]models.LoginEvent, error)
}

type Secrets interface {
	Create(ctx context.Context, in services.CreateSecretInput) (*services.CreatedSecret, error)
	Metadata(ctx context.Context, id string) (*models.SecretMetadata, error)
	View(ctx context.Context, id, passphraseHash string) (*services.ViewResult, error)
	Revoke(ctx context.Context, id, ownerID string) error
	ListOwned(ctx context.Context, ownerID string) ([]models.SecretMetadata, error)
}

type Canaries interface {
	Create(ctx context.Context, ownerID, label, trapType string) (*models.CanaryTrap, error)
	Trigger(ctx context.Context, token string, info services.RequestInfo) (*services.TriggerResult, error)
	List(ctx context.Context, ownerID string) ([]models.CanaryTrap, error)
	Events(ctx context.Context, ownerID, trapID string, limit int) ([]models.TriggerEvent, error)
	Deactivate(ctx context.Context, ownerID, trapID string) error
}

// Options tunes the public endpoint limiter. Requests arriving from one of
// TrustedProxies take the client address from X-Forwarded-For.
type Options struct {
	RateLimit      float64
	RateBurst      int
	TrustedProxies []netip.Prefix
}

type Server struct {
	address  string
	accounts Accounts
	secrets  Secrets
	canaries Canaries
	limiter  *ipLimiter
	trusted  []netip.Prefix
	logger   logging.Logger
}

func NewServer(address string, a Accounts, s Secrets, c Canaries, opt Options, l logging.Logger) *Server {
	return &Server{
		address:  address,
		accounts: a,
		secrets:  s,
		canaries: c,
		limiter:  newIPLimiter(opt.RateLimit, opt.RateBurst),
		trusted:  opt.TrustedProxies,
		logger:   l.With("module", "http_server"),
	}
}

// Handler builds the router. Public routes sit behind the per-IP limiter;
// the rest require a bearer token.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.recoverPanic, s.logRequest)

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	public := r.NewRoute().Subrouter()
	public.Use(s.rateLimit)
	public.HandleFunc("/api/v1/accounts", s.handleRegister).Methods(http.MethodPost)
	public.HandleFunc("/api/v1/accounts/{username}/salt", s.handleGetSalt).Methods(http.MethodGet)
	public.HandleFunc("/api/v1/sessions", s.handleLogin).Methods(http.MethodPost)
	public.HandleFunc("/s/{id}", s.handleSecretMetadata).Methods(http.MethodGet)
	public.HandleFunc("/s/{id}/view", s.handleSecretView).Methods(http.MethodPost)
	public.HandleFunc("/t/{token}", s.handleTrigger).Methods(http.MethodGet, http.MethodPost)

	private := r.PathPrefix("/api/v1").Subrouter()
	private.Use(s.requireSession)
	private.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	private.HandleFunc("/sessions/current", s.handleLogout).Methods(http.MethodDelete)
	private.HandleFunc("/sessions/current/mode", s.handleSwitchMode).Methods(http.MethodPost)
	private.HandleFunc("/sessions/revoke-others", s.handleRevokeOthers).Methods(http.MethodPost)
	private.HandleFunc("/sessions/{id}", s.handleRevokeSession).Methods(http.MethodDelete)
	private.HandleFunc("/account", s.handleDeleteAccount).Methods(http.MethodDelete)
	private.HandleFunc("/account/logins", s.handleLoginHistory).Methods(http.MethodGet)
	private.HandleFunc("/account/password", s.handleChangePassword).Methods(http.MethodPut)
	private.HandleFunc("/account/duress", s.handleSetDuress).Methods(http.MethodPut)
	private.HandleFunc("/account/duress", s.handleClearDuress).Methods(http.MethodDelete)
	private.HandleFunc("/secrets", s.handleCreateSecret).Methods(http.MethodPost)
	private.HandleFunc("/secrets", s.handleListSecrets).Methods(http.MethodGet)
	private.HandleFunc("/secrets/{id}", s.handleRevokeSecret).Methods(http.MethodDelete)
	private.HandleFunc("/canaries", s.handleCreateTrap).Methods(http.MethodPost)
	private.HandleFunc("/canaries", s.handleListTraps).Methods(http.MethodGet)
	private.HandleFunc("/canaries/{id}/events", s.handleTrapEvents).Methods(http.MethodGet)
	private.HandleFunc("/canaries/{id}", s.handleDeactivateTrap).Methods(http.MethodDelete)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
