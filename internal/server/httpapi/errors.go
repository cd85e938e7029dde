package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/zkvault/internal/common"
	"github.com/gorilla/mux"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusOf maps service errors to HTTP status and a stable error code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrorValidation),
		errors.Is(err, common.ErrDuressEqualsMaster),
		errors.Is(err, common.ErrCannotRevokeCurrent):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, common.ErrUsernameTaken):
		return http.StatusConflict, "username_taken"
	case errors.Is(err, common.ErrPassphraseRequired):
		return http.StatusUnauthorized, "passphrase_required"
	case errors.Is(err, common.ErrPassphraseInvalid):
		return http.StatusUnauthorized, "passphrase_invalid"
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, common.ErrExpired):
		return http.StatusGone, "expired"
	case errors.Is(err, common.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	msg := err.Error()
	switch status {
	case http.StatusUnauthorized:
		if code == "unauthorized" {
			msg = "invalid credentials"
		}
	case http.StatusInternalServerError:
		s.logger.Error(r.Context(), "request failed", "route", routeTemplate(r), "err", err)
		msg = "internal error"
	}
	writeJSONError(w, status, code, msg)
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: code, Message: msg})
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
