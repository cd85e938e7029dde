package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/server/services"
	"github.com/gorilla/mux"
)

type registerRequest struct {
	UserName   string `json:"username"`
	MasterHash string `json:"master_hash"`
	Salt       []byte `json:"salt"`
}

type registerResponse struct {
	ID       string `json:"id"`
	UserName string `json:"username"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	account, err := s.accounts.Register(r.Context(), req.UserName, req.MasterHash, req.Salt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{ID: account.ID, UserName: account.UserName})
}

type saltResponse struct {
	Salt []byte `json:"salt"`
}

func (s *Server) handleGetSalt(w http.ResponseWriter, r *http.Request) {
	salt, err := s.accounts.GetSalt(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saltResponse{Salt: salt})
}

type loginRequest struct {
	UserName string `json:"username"`
	Hash     string `json:"hash"`
	Device   string `json:"device,omitempty"`
}

// loginResponse has the same shape in both modes.
type loginResponse struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Duress    bool   `json:"duress"`
	Salt      []byte `json:"salt"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	info := s.requestInfo(r)
	info.Device = req.Device

	res, err := s.accounts.Login(r.Context(), req.UserName, req.Hash, info)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: res.Token, SessionID: res.SessionID, Duress: res.Duress, Salt: res.Salt})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.accounts.Logout(r.Context(), sessionFrom(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type hashRequest struct {
	Hash string `json:"hash"`
}

type modeResponse struct {
	Duress bool   `json:"duress"`
	Salt   []byte `json:"salt"`
}

func (s *Server) handleSwitchMode(w http.ResponseWriter, r *http.Request) {
	var req hashRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.accounts.SwitchMode(r.Context(), sessionFrom(r.Context()), req.Hash)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, modeResponse{Duress: res.Duress, Salt: res.Salt})
}

type sessionResponse struct {
	ID           string    `json:"id"`
	Device       string    `json:"device"`
	UserAgent    string    `json:"user_agent"`
	IP           string    `json:"ip"`
	Location     string    `json:"location"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	Current      bool      `json:"current"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.accounts.ListSessions(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]sessionResponse, 0, len(list))
	for _, si := range list {
		out = append(out, sessionResponse{
			ID:           si.ID,
			Device:       si.Device,
			UserAgent:    si.UserAgent,
			IP:           si.IP,
			Location:     si.Location,
			CreatedAt:    si.CreatedAt,
			LastActiveAt: si.LastActiveAt,
			Current:      si.Current,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type loginEventResponse struct {
	Success   bool      `json:"success"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleLoginHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := s.accounts.LoginHistory(r.Context(), sessionFrom(r.Context()), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]loginEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, loginEventResponse{
			Success:   e.Success,
			IP:        e.IP,
			UserAgent: e.UserAgent,
			Location:  e.Location,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	if err := s.accounts.RevokeSession(r.Context(), sessionFrom(r.Context()), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type revokedResponse struct {
	Revoked int64 `json:"revoked"`
}

func (s *Server) handleRevokeOthers(w http.ResponseWriter, r *http.Request) {
	n, err := s.accounts.RevokeAllExceptCurrent(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, revokedResponse{Revoked: n})
}

type changePasswordRequest struct {
	OldHash string `json:"old_hash"`
	NewHash string `json:"new_hash"`
	NewSalt []byte `json:"new_salt"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.accounts.ChangePassword(r.Context(), sessionFrom(r.Context()), req.OldHash, req.NewHash, req.NewSalt); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setDuressRequest struct {
	MasterHash string `json:"master_hash"`
	DuressHash string `json:"duress_hash"`
	DuressSalt []byte `json:"duress_salt"`
	SOSContact string `json:"sos_contact,omitempty"`
}

func (s *Server) handleSetDuress(w http.ResponseWriter, r *http.Request) {
	var req setDuressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	err := s.accounts.SetDuress(r.Context(), sessionFrom(r.Context()), req.MasterHash, req.DuressHash, req.DuressSalt, req.SOSContact)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearDuress(w http.ResponseWriter, r *http.Request) {
	var req hashRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.accounts.ClearDuress(r.Context(), sessionFrom(r.Context()), req.Hash); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	var req hashRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.accounts.DeleteAccount(r.Context(), sessionFrom(r.Context()), req.Hash); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) requestInfo(r *http.Request) services.RequestInfo {
	return services.RequestInfo{
		IP:        s.clientIP(r),
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
	}
}
