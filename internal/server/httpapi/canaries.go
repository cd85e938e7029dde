package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/common"
	"github.com/dmitrijs2005/zkvault/internal/server/models"
	"github.com/gorilla/mux"
)

type createTrapRequest struct {
	Label string `json:"label"`
	Type  string `json:"type"`
}

type trapResponse struct {
	ID              string     `json:"id"`
	Label           string     `json:"label"`
	Type            string     `json:"type"`
	Token           string     `json:"token"`
	Active          bool       `json:"active"`
	TriggerCount    int        `json:"trigger_count"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toTrapResponse(t *models.CanaryTrap) trapResponse {
	return trapResponse{
		ID:              t.ID,
		Label:           t.Label,
		Type:            t.Type,
		Token:           t.Token,
		Active:          t.Active,
		TriggerCount:    t.TriggerCount,
		LastTriggeredAt: t.LastTriggeredAt,
		CreatedAt:       t.CreatedAt,
	}
}

func (s *Server) handleCreateTrap(w http.ResponseWriter, r *http.Request) {
	var req createTrapRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	trap, err := s.canaries.Create(r.Context(), sessionFrom(r.Context()).AccountID, req.Label, req.Type)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTrapResponse(trap))
}

func (s *Server) handleListTraps(w http.ResponseWriter, r *http.Request) {
	list, err := s.canaries.List(r.Context(), sessionFrom(r.Context()).AccountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]trapResponse, 0, len(list))
	for i := range list {
		out = append(out, toTrapResponse(&list[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

type triggerEventResponse struct {
	ID        string    `json:"id"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Referer   string    `json:"referer"`
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleTrapEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := s.canaries.Events(r.Context(), sessionFrom(r.Context()).AccountID, mux.Vars(r)["id"], limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]triggerEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, triggerEventResponse{
			ID:        e.ID,
			IP:        e.IP,
			UserAgent: e.UserAgent,
			Referer:   e.Referer,
			Location:  e.Location,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeactivateTrap(w http.ResponseWriter, r *http.Request) {
	if err := s.canaries.Deactivate(r.Context(), sessionFrom(r.Context()).AccountID, mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTrigger answers whoever fetched a trap token. The reply mimics what
// the planted artifact would plausibly return and never hints that an alert
// went out.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	res, err := s.canaries.Trigger(r.Context(), mux.Vars(r)["token"], s.requestInfo(r))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			http.NotFound(w, r)
			return
		}
		// the fetcher sees a generic failure either way
		s.logger.Error(r.Context(), "canary trigger failed", "err", err)
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	switch res.TrapType {
	case models.TrapTypeCredential, models.TrapTypeAPIKey:
		writeJSONError(w, http.StatusForbidden, "access_denied", "the provided credentials are not authorized for this resource")
	case models.TrapTypeDocument:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(documentDecoy))
	default:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(pageDecoy))
	}
}

const pageDecoy = `<!doctype html><html><head><title>Loading</title></head><body></body></html>`

const documentDecoy = `<!doctype html><html><head><title>Document</title></head>` +
	`<body><p>This document is no longer available.</p></body></html>`
