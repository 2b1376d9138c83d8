package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/fieldref/syncore/internal/models"
	"github.com/fieldref/syncore/internal/server/middleware"
	"github.com/fieldref/syncore/internal/server/storage"
	"github.com/fieldref/syncore/internal/validation"
	"github.com/fieldref/syncore/pkg/api"
)

// requestCodeTTL is how long an out-of-band invite code (§4.7) stays
// resolvable after it was minted.
const requestCodeTTL = 10 * time.Minute

// RegisterUser handles POST /user.
func (h *Handlers) RegisterUser(w http.ResponseWriter, r *http.Request) {
	peerID := middleware.PeerID(r.Context())

	var req api.RegisterUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(h.logger, w, badRequestf("malformed body: %v", err))
		return
	}
	if err := validation.ValidatePeerName(req.Name); err != nil {
		writeErr(h.logger, w, badRequestf("%v", err))
		return
	}
	if err := h.store.SetPeerName(r.Context(), peerID, req.Name); err != nil {
		writeErr(h.logger, w, err)
		return
	}
	writeOk(w, models.Peer{ID: peerID, Name: req.Name})
}

// CreateInstance handles POST /:sku/create.
func (h *Handlers) CreateInstance(w http.ResponseWriter, r *http.Request) {
	peerID := middleware.PeerID(r.Context())
	sku := mux.Vars(r)["sku"]

	if err := validation.ValidateSKU(sku); err != nil {
		writeErr(h.logger, w, badRequestf("%v", err))
		return
	}

	inst, err := h.store.CreateInstance(r.Context(), sku, peerID)
	if err != nil {
		writeErr(h.logger, w, err)
		return
	}

	inv := &models.Invitation{
		ID:             uuid.NewString(),
		SKU:            sku,
		From:           peerID,
		To:             peerID,
		Admin:          true,
		Accepted:       true,
		InstanceSecret: inst.Secret,
	}
	if err := h.store.CreateInvitation(r.Context(), inv); err != nil {
		writeErr(h.logger, w, err)
		return
	}
	writeOk(w, api.CreateInstanceResponse{SKU: sku, Invitation: inv})
}

// GetInvitation handles GET /:sku/invitation.
func (h *Handlers) GetInvitation(w http.ResponseWriter, r *http.Request) {
	peerID := middleware.PeerID(r.Context())
	sku := mux.Vars(r)["sku"]

	inv, err := h.store.GetInvitationForPeer(r.Context(), sku, peerID)
	if errors.Is(err, storage.ErrInvitationNotFound) {
		writeOk(w, nil)
		return
	}
	if err != nil {
		writeErr(h.logger, w, err)
		return
	}
	writeOk(w, inv)
}

// AcceptInvitation handles PUT /:sku/accept?invitation=<id>.
func (h *Handlers) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	peerID := middleware.PeerID(r.Context())
	sku := mux.Vars(r)["sku"]
	id := r.URL.Query().Get("invitation")
	if id == "" {
		writeErr(h.logger, w, badRequestf("missing invitation parameter"))
		return
	}

	pending, err := h.store.GetInvitation(r.Context(), id)
	if err != nil {
		writeErr(h.logger, w, err)
		return
	}
	if pending.SKU != sku || pending.To != peerID {
		writeErr(h.logger, w, forbiddenf("invitation does not belong to caller"))
		return
	}

	accepted, err := h.store.AcceptInvitation(r.Context(), id)
	if err != nil {
		writeErr(h.logger, w, err)
		return
	}
	if err := h.store.AddMember(r.Context(), sku, peerID, accepted.Admin); err != nil {
		writeErr(h.logger, w, err)
		return
	}
	writeOk(w, accepted)
}

// Invite handles PUT /:sku/invite?user=<peerId> (admin only).
func (h *Handlers) Invite(w http.ResponseWriter, r *http.Request) {
	peerID := middleware.PeerID(r.Context())
	sku := mux.Vars(r)["sku"]
	target := r.URL.Query().Get("user")
	if target == "" {
		writeErr(h.logger, w, badRequestf("missing user parameter"))
		return
	}

	inst, err := h.store.GetInstance(r.Context(), sku)
	if err != nil {
		writeErr(h.logger, w, err)
		return
	}
	if !inst.HasAdmin(peerID) {
		writeErr(h.logger, w, forbiddenf("caller is not an admin of %s", sku))
		return
	}

	inv := &models.Invitation{
		ID:             uuid.NewString(),
		SKU:            sku,
		From:           peerID,
		To:             target,
		InstanceSecret: inst.Secret,
	}
	if err := h.store.CreateInvitation(r.Context(), inv); err != nil {
		writeErr(h.logger, w, err)
		return
	}
	writeOk(w, inv)
}

// RevokeInvite handles DELETE /:sku/invite?user=<peerId> — an admin
// may revoke anyone; a non-admin may only revoke themselves.
func (h *Handlers) RevokeInvite(w http.ResponseWriter, r *http.Request) {
	peerID := middleware.PeerID(r.Context())
	sku := mux.Vars(r)["sku"]
	target := r.URL.Query().Get("user")
	if target == "" {
		writeErr(h.logger, w, badRequestf("missing user parameter"))
		return
	}

	inst, err := h.store.GetInstance(r.Context(), sku)
	if err != nil {
		writeErr(h.logger, w, err)
		return
	}
	if !inst.HasAdmin(peerID) && peerID != target {
		writeErr(h.logger, w, forbiddenf("caller may not revoke another peer"))
		return
	}

	if err := h.store.RemoveMember(r.Context(), sku, target); err != nil {
		writeErr(h.logger, w, err)
		return
	}
	h.registry.Get(sku).CloseSession(target)
	writeOk(w, nil)
}

// requestCodeAlphabet avoids visually ambiguous characters (0/O, 1/I)
// in the human-read-aloud invite code.
const requestCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func newRequestCode() (string, error) {
	b := make([]byte, validation.RequestCodeLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = requestCodeAlphabet[int(c)%len(requestCodeAlphabet)]
	}
	return string(out), nil
}

// CreateRequestCode handles PUT /:sku/request.
func (h *Handlers) CreateRequestCode(w http.ResponseWriter, r *http.Request) {
	peerID := middleware.PeerID(r.Context())

	code, err := newRequestCode()
	if err != nil {
		writeErr(h.logger, w, err)
		return
	}
	rc := &models.RequestCode{Code: code, PeerID: peerID, CreatedAt: time.Now().Unix()}
	if err := h.store.SaveRequestCode(r.Context(), rc); err != nil {
		writeErr(h.logger, w, err)
		return
	}
	writeOk(w, api.RequestCodeResponse{Code: code})
}

// ResolveRequestCode handles GET /:sku/request?code=<c> (admin only).
func (h *Handlers) ResolveRequestCode(w http.ResponseWriter, r *http.Request) {
	peerID := middleware.PeerID(r.Context())
	sku := mux.Vars(r)["sku"]
	code := r.URL.Query().Get("code")
	if code == "" {
		writeErr(h.logger, w, badRequestf("missing code parameter"))
		return
	}

	inst, err := h.store.GetInstance(r.Context(), sku)
	if err != nil {
		writeErr(h.logger, w, err)
		return
	}
	if !inst.HasAdmin(peerID) {
		writeErr(h.logger, w, forbiddenf("caller is not an admin of %s", sku))
		return
	}

	resolved, err := h.store.ResolveRequestCode(r.Context(), code, requestCodeTTL, time.Now())
	if err != nil {
		writeErr(h.logger, w, err)
		return
	}
	writeOk(w, api.ResolveCodeResponse{PeerID: resolved})
}
