// Package httpapi wires the signed HTTP surface (§6.2) onto the
// per-SKU instance actors and durable membership storage.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fieldref/syncore/internal/server/instance"
	"github.com/fieldref/syncore/internal/server/storage"
	"github.com/fieldref/syncore/pkg/api"
)

func writeJSON(w http.ResponseWriter, status int, resp api.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeOk(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, api.Ok(data))
}

// writeErr maps a handler-layer error to the {success:false, reason}
// envelope via errors.Is, never string matching.
func writeErr(logger *slog.Logger, w http.ResponseWriter, err error) {
	status, reason, details := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, api.Fail(reason, details))
}

func classify(err error) (int, api.Reason, string) {
	switch {
	case errors.Is(err, storage.ErrInstanceNotFound):
		return http.StatusNotFound, api.ReasonBadRequest, "instance not found"
	case errors.Is(err, storage.ErrInstanceExists):
		return http.StatusConflict, api.ReasonBadRequest, "instance already exists"
	case errors.Is(err, storage.ErrInvitationNotFound):
		return http.StatusNotFound, api.ReasonBadRequest, "invitation not found"
	case errors.Is(err, storage.ErrIncidentNotFound):
		return http.StatusNotFound, api.ReasonBadRequest, "incident not found"
	case errors.Is(err, storage.ErrRequestCodeExpired):
		return http.StatusBadRequest, api.ReasonIncorrectCode, "code expired or unknown"
	case errors.Is(err, instance.ErrTombstoned):
		return http.StatusConflict, api.ReasonTombstoned, "incident was deleted"
	case errors.Is(err, instance.ErrStale):
		return http.StatusConflict, api.ReasonStale, "write advances nothing the server doesn't already have"
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, api.ReasonForbidden, err.Error()
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, api.ReasonBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, api.ReasonServerError, "internal error"
	}
}
