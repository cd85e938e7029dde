package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/common"
	"github.com/dmitrijs2005/zkvault/internal/server/models"
	"github.com/dmitrijs2005/zkvault/internal/server/services"
	"github.com/gorilla/mux"
)

type createSecretRequest struct {
	Blob           []byte `json:"blob"`
	MaxViews       int    `json:"max_views"`
	TTLHours       int    `json:"ttl_hours"`
	PassphraseHash string `json:"passphrase_hash,omitempty"`
	PassphraseSalt []byte `json:"passphrase_salt,omitempty"`
}

type createSecretResponse struct {
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleCreateSecret(w http.ResponseWriter, r *http.Request) {
	var req createSecretRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.Blob) > common.MaxSecretBlobSize {
		s.writeError(w, r, fmt.Errorf("%w: blob exceeds %d bytes", common.ErrorValidation, common.MaxSecretBlobSize))
		return
	}
	res, err := s.secrets.Create(r.Context(), services.CreateSecretInput{
		OwnerID:        sessionFrom(r.Context()).AccountID,
		Blob:           req.Blob,
		MaxViews:       req.MaxViews,
		TTLHours:       req.TTLHours,
		PassphraseHash: req.PassphraseHash,
		PassphraseSalt: req.PassphraseSalt,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createSecretResponse{ID: res.ID, ExpiresAt: res.ExpiresAt})
}

type secretMetadataResponse struct {
	ID                 string    `json:"id"`
	PassphraseRequired bool      `json:"passphrase_required"`
	PassphraseSalt     []byte    `json:"passphrase_salt,omitempty"`
	ViewsRemaining     int       `json:"views_remaining"`
	ExpiresAt          time.Time `json:"expires_at"`
	CreatedAt          time.Time `json:"created_at"`
}

func metadataResponse(m *models.SecretMetadata) secretMetadataResponse {
	return secretMetadataResponse{
		ID:                 m.ID,
		PassphraseRequired: m.PassphraseRequired,
		PassphraseSalt:     m.PassphraseSalt,
		ViewsRemaining:     m.ViewsRemaining,
		ExpiresAt:          m.ExpiresAt,
		CreatedAt:          m.CreatedAt,
	}
}

func (s *Server) handleSecretMetadata(w http.ResponseWriter, r *http.Request) {
	meta, err := s.secrets.Metadata(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, metadataResponse(meta))
}

type viewSecretRequest struct {
	PassphraseHash string `json:"passphrase_hash,omitempty"`
}

type viewSecretResponse struct {
	Blob           []byte `json:"blob"`
	ViewsRemaining int    `json:"views_remaining"`
}

func (s *Server) handleSecretView(w http.ResponseWriter, r *http.Request) {
	var req viewSecretRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	res, err := s.secrets.View(r.Context(), mux.Vars(r)["id"], req.PassphraseHash)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSecretResponse{Blob: res.Blob, ViewsRemaining: res.ViewsRemaining})
}

func (s *Server) handleListSecrets(w http.ResponseWriter, r *http.Request) {
	list, err := s.secrets.ListOwned(r.Context(), sessionFrom(r.Context()).AccountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]secretMetadataResponse, 0, len(list))
	for i := range list {
		out = append(out, metadataResponse(&list[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRevokeSecret(w http.ResponseWriter, r *http.Request) {
	if err := s.secrets.Revoke(r.Context(), mux.Vars(r)["id"], sessionFrom(r.Context()).AccountID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
