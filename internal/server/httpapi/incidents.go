package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fieldref/syncore/internal/models"
	"github.com/fieldref/syncore/internal/server/middleware"
	"github.com/fieldref/syncore/pkg/api"
)

func (h *Handlers) sender(r *http.Request) api.Sender {
	peerID := middleware.PeerID(r.Context())
	return api.Sender{Type: "client", ID: peerID, Name: h.displayName(r, peerID)}
}

func incidentID(env *models.Envelope) string {
	if env == nil {
		return ""
	}
	id, _ := env.Immutable["id"].(string)
	return id
}

// AddIncident handles PUT /:sku/incident.
func (h *Handlers) AddIncident(w http.ResponseWriter, r *http.Request) {
	sku := mux.Vars(r)["sku"]
	var body api.AddIncidentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(h.logger, w, badRequestf("malformed body: %v", err))
		return
	}
	id := incidentID(body.Incident)
	if id == "" {
		writeErr(h.logger, w, badRequestf("incident missing immutable id"))
		return
	}

	in := h.registry.Get(sku)
	if err := in.AddIncident(r.Context(), id, body.Incident, h.sender(r)); err != nil {
		writeErr(h.logger, w, err)
		return
	}
	writeOk(w, body.Incident)
}

// UpdateIncident handles PATCH /:sku/incident.
func (h *Handlers) UpdateIncident(w http.ResponseWriter, r *http.Request) {
	sku := mux.Vars(r)["sku"]
	var body api.UpdateIncidentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(h.logger, w, badRequestf("malformed body: %v", err))
		return
	}
	id := incidentID(body.Incident)
	if id == "" {
		writeErr(h.logger, w, badRequestf("incident missing immutable id"))
		return
	}

	in := h.registry.Get(sku)
	if err := in.UpdateIncident(r.Context(), id, body.Incident, h.sender(r)); err != nil {
		writeErr(h.logger, w, err)
		return
	}
	writeOk(w, body.Incident)
}

// RemoveIncident handles DELETE /:sku/incident?id=<id>.
func (h *Handlers) RemoveIncident(w http.ResponseWriter, r *http.Request) {
	sku := mux.Vars(r)["sku"]
	id := r.URL.Query().Get("id")
	if id == "" {
		writeErr(h.logger, w, badRequestf("missing id parameter"))
		return
	}

	in := h.registry.Get(sku)
	if err := in.RemoveIncident(r.Context(), id, h.sender(r)); err != nil {
		writeErr(h.logger, w, err)
		return
	}
	writeOk(w, nil)
}

// GetSnapshot handles GET /:sku/get — the same payload a join/force-sync
// sends as server_share_info.
func (h *Handlers) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	sku := mux.Vars(r)["sku"]
	in := h.registry.Get(sku)
	info, err := in.ShareInfo(r.Context())
	if err != nil {
		writeErr(h.logger, w, err)
		return
	}
	writeOk(w, info)
}
