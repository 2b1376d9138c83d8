// Package instance implements the per-SKU server actor (§4.6): a
// singleton per event that serializes storage access, tracks active
// sockets, and fans out broadcasts.
package instance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldref/syncore/internal/crdt"
	"github.com/fieldref/syncore/internal/models"
	"github.com/fieldref/syncore/internal/server/storage"
	"github.com/fieldref/syncore/pkg/api"
)

// ErrTombstoned is returned by AddIncident/UpdateIncident when id is
// in the deleted set.
var ErrTombstoned = errors.New("tombstoned")

// ErrStale is returned by UpdateIncident when the incoming envelope
// advances nothing the server doesn't already know.
var ErrStale = errors.New("stale")

// Session is the socket-side half of a connected peer, implemented by
// the socket package. Send delivers one outbound frame; Close drops
// the underlying connection.
type Session interface {
	PeerID() string
	Name() string
	Send(frame api.Frame) error
	Close() error
}

// Instance is the actor for one event SKU. All mutation methods take
// the actor's mutex for their full duration, matching the "serialized
// storage operations inside the actor" requirement — even though the
// sqlite storage layer also serializes at the driver level, the actor
// lock additionally protects the in-memory sessions list.
type Instance struct {
	sku    string
	store  storage.Storage
	logger *slog.Logger

	mu           sync.Mutex
	sessions     map[string]Session
	lastActivity time.Time
}

// New constructs an actor for sku backed by store.
func New(sku string, store storage.Storage, logger *slog.Logger) *Instance {
	return &Instance{
		sku:          sku,
		store:        store,
		logger:       logger,
		sessions:     map[string]Session{},
		lastActivity: time.Now(),
	}
}

// SKU returns the instance's event code.
func (in *Instance) SKU() string { return in.sku }

// LastActivity reports the time of the most recent mutation, join, or
// HTTP request handled by this actor, for idle-eviction bookkeeping.
func (in *Instance) LastActivity() time.Time {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.lastActivity
}

func (in *Instance) touch() {
	in.lastActivity = time.Now()
}

// Join registers sess as the active socket for its peer id, dropping
// any prior socket for that peer (§4.6 step 1-2), then returns the
// current share-info snapshot to send it.
func (in *Instance) Join(ctx context.Context, sess Session) (*api.ShareInfo, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.touch()

	if old, ok := in.sessions[sess.PeerID()]; ok {
		_ = old.Close()
	}
	in.sessions[sess.PeerID()] = sess

	info, err := in.shareInfoLocked(ctx)
	if err != nil {
		return nil, err
	}

	in.broadcastLocked(api.Frame{
		Type:   api.FrameServerUserAdd,
		Sender: api.Sender{Type: "server"},
		Date:   time.Now().UTC().Format(time.RFC3339),
		Body: api.ServerUserEventBody{
			User:        api.ActiveUser{ID: sess.PeerID(), Name: sess.Name()},
			ActiveUsers: in.activeUsersLocked(),
			Invitations: info.Invitations,
		},
	})

	return info, nil
}

// Leave removes peerID's session, if it is the one currently
// registered under that id (a newer Join for the same peer must not
// be clobbered by a stale Leave), and broadcasts the departure.
func (in *Instance) Leave(ctx context.Context, peerID string, sess Session) {
	in.mu.Lock()
	defer in.mu.Unlock()

	current, ok := in.sessions[peerID]
	if !ok || current != sess {
		return
	}
	delete(in.sessions, peerID)

	invitations, err := in.invitationPeerIDsLocked(ctx)
	if err != nil {
		in.logger.Warn("failed to load invitations for leave broadcast", "sku", in.sku, "error", err)
		invitations = nil
	}

	in.broadcastLocked(api.Frame{
		Type:   api.FrameServerUserRemove,
		Sender: api.Sender{Type: "server"},
		Date:   time.Now().UTC().Format(time.RFC3339),
		Body: api.ServerUserEventBody{
			User:        api.ActiveUser{ID: peerID, Name: current.Name()},
			ActiveUsers: in.activeUsersLocked(),
			Invitations: invitations,
		},
	})
}

// AddIncident stores a brand-new incident and broadcasts add_incident
// to every connected socket. Returns ErrTombstoned if id is deleted.
func (in *Instance) AddIncident(ctx context.Context, id string, env *models.Envelope, sender api.Sender) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.touch()

	deleted, err := in.store.ListDeletedIncidents(ctx, in.sku)
	if err != nil {
		return fmt.Errorf("list deleted incidents: %w", err)
	}
	for _, d := range deleted {
		if d == id {
			return ErrTombstoned
		}
	}

	if err := in.store.UpsertIncident(ctx, in.sku, id, env); err != nil {
		return fmt.Errorf("upsert incident: %w", err)
	}

	in.broadcastLocked(api.Frame{
		Type:   api.FrameAddIncident,
		Sender: sender,
		Date:   time.Now().UTC().Format(time.RFC3339),
		Body:   api.AddIncidentBody{Incident: env},
	})
	return nil
}

// UpdateIncident merges an incoming envelope with whatever the server
// holds for id. A merge that advances no field is stale: the caller
// already knows everything the write would have told the server.
// Returns ErrTombstoned if id is deleted.
func (in *Instance) UpdateIncident(ctx context.Context, id string, incoming *models.Envelope, sender api.Sender) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.touch()

	deleted, err := in.store.ListDeletedIncidents(ctx, in.sku)
	if err != nil {
		return fmt.Errorf("list deleted incidents: %w", err)
	}
	for _, d := range deleted {
		if d == id {
			return ErrTombstoned
		}
	}

	current, err := in.store.GetIncident(ctx, in.sku, id)
	if errors.Is(err, storage.ErrIncidentNotFound) {
		if err := in.store.UpsertIncident(ctx, in.sku, id, incoming); err != nil {
			return fmt.Errorf("upsert incident: %w", err)
		}
		in.broadcastLocked(api.Frame{
			Type:   api.FrameUpdateIncident,
			Sender: sender,
			Date:   time.Now().UTC().Format(time.RFC3339),
			Body:   api.UpdateIncidentBody{Incident: incoming},
		})
		return nil
	}
	if err != nil {
		return fmt.Errorf("get incident: %w", err)
	}

	merged := crdt.MergeLWW(current, incoming)
	if len(merged.Changed) == 0 {
		return ErrStale
	}

	if err := in.store.UpsertIncident(ctx, in.sku, id, merged.Resolved); err != nil {
		return fmt.Errorf("upsert incident: %w", err)
	}

	in.broadcastLocked(api.Frame{
		Type:   api.FrameUpdateIncident,
		Sender: sender,
		Date:   time.Now().UTC().Format(time.RFC3339),
		Body:   api.UpdateIncidentBody{Incident: merged.Resolved},
	})
	return nil
}

// RemoveIncident tombstones id. Idempotent: a second removal succeeds
// without broadcasting again.
func (in *Instance) RemoveIncident(ctx context.Context, id string, sender api.Sender) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.touch()

	deleted, err := in.store.ListDeletedIncidents(ctx, in.sku)
	if err != nil {
		return fmt.Errorf("list deleted incidents: %w", err)
	}
	for _, d := range deleted {
		if d == id {
			return nil
		}
	}

	if err := in.store.TombstoneIncident(ctx, in.sku, id); err != nil {
		return fmt.Errorf("tombstone incident: %w", err)
	}

	in.broadcastLocked(api.Frame{
		Type:   api.FrameRemoveIncident,
		Sender: sender,
		Date:   time.Now().UTC().Format(time.RFC3339),
		Body:   api.RemoveIncidentBody{ID: id},
	})
	return nil
}

// UpdateScratchpad stores a merged scratchpad envelope and broadcasts
// scratchpad_update.
func (in *Instance) UpdateScratchpad(ctx context.Context, id string, incoming *models.Envelope, sender api.Sender) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.touch()

	pads, err := in.store.ListScratchpads(ctx, in.sku)
	if err != nil {
		return fmt.Errorf("list scratchpads: %w", err)
	}

	resolved := incoming
	if current, ok := pads[id]; ok {
		resolved = crdt.MergeLWW(current, incoming).Resolved
	}

	if err := in.store.UpsertScratchpad(ctx, in.sku, id, resolved); err != nil {
		return fmt.Errorf("upsert scratchpad: %w", err)
	}

	in.broadcastLocked(api.Frame{
		Type:   api.FrameScratchpadUpdate,
		Sender: sender,
		Date:   time.Now().UTC().Format(time.RFC3339),
		Body:   api.ScratchpadUpdateBody{ID: id, Scratchpad: resolved},
	})
	return nil
}

// Broadcast sends an arbitrary frame (e.g. a relayed "message") to
// every active socket.
func (in *Instance) Broadcast(frame api.Frame) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.broadcastLocked(frame)
}

// ShareInfo returns the full snapshot used by GET /get and
// server_share_info.
func (in *Instance) ShareInfo(ctx context.Context) (*api.ShareInfo, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.touch()
	return in.shareInfoLocked(ctx)
}

func (in *Instance) shareInfoLocked(ctx context.Context) (*api.ShareInfo, error) {
	data, err := in.store.ListIncidents(ctx, in.sku)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	deleted, err := in.store.ListDeletedIncidents(ctx, in.sku)
	if err != nil {
		return nil, fmt.Errorf("list deleted incidents: %w", err)
	}
	pads, err := in.store.ListScratchpads(ctx, in.sku)
	if err != nil {
		return nil, fmt.Errorf("list scratchpads: %w", err)
	}
	inst, err := in.store.GetInstance(ctx, in.sku)
	if err != nil {
		return nil, fmt.Errorf("get instance: %w", err)
	}

	invitations := make([]models.Invitation, 0, len(inst.Invitations))
	for _, peerID := range inst.Invitations {
		inv, err := in.store.GetInvitationForPeer(ctx, in.sku, peerID)
		if err != nil {
			continue
		}
		invitations = append(invitations, *inv)
	}

	return &api.ShareInfo{
		ActiveUsers: in.activeUsersLocked(),
		Invitations: invitations,
		Data:        data,
		Deleted:     deleted,
		Scratchpads: pads,
	}, nil
}

func (in *Instance) invitationPeerIDsLocked(ctx context.Context) ([]models.Invitation, error) {
	inst, err := in.store.GetInstance(ctx, in.sku)
	if err != nil {
		return nil, err
	}
	out := make([]models.Invitation, 0, len(inst.Invitations))
	for _, peerID := range inst.Invitations {
		inv, err := in.store.GetInvitationForPeer(ctx, in.sku, peerID)
		if err != nil {
			continue
		}
		out = append(out, *inv)
	}
	return out, nil
}

func (in *Instance) activeUsersLocked() []api.ActiveUser {
	users := make([]api.ActiveUser, 0, len(in.sessions))
	for _, sess := range in.sessions {
		users = append(users, api.ActiveUser{ID: sess.PeerID(), Name: sess.Name()})
	}
	return users
}

// broadcastLocked sends frame to every session, dropping (and
// cascading one broadcast deep for) any that errors.
func (in *Instance) broadcastLocked(frame api.Frame) {
	var failed []string
	for peerID, sess := range in.sessions {
		if err := sess.Send(frame); err != nil {
			in.logger.Warn("dropping unreachable session", "sku", in.sku, "peer_id", peerID, "error", err)
			failed = append(failed, peerID)
		}
	}
	for _, peerID := range failed {
		delete(in.sessions, peerID)
	}
	if len(failed) > 0 {
		activeUsers := in.activeUsersLocked()
		for _, peerID := range failed {
			for _, sess := range in.sessions {
				_ = sess.Send(api.Frame{
					Type:   api.FrameServerUserRemove,
					Sender: api.Sender{Type: "server"},
					Date:   time.Now().UTC().Format(time.RFC3339),
					Body: api.ServerUserEventBody{
						User:        api.ActiveUser{ID: peerID},
						ActiveUsers: activeUsers,
					},
				})
			}
		}
	}
}

// CloseSessions closes every active socket, used when an instance is
// evicted or a peer is removed from the instance.
func (in *Instance) CloseSessions() {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, sess := range in.sessions {
		_ = sess.Close()
	}
	in.sessions = map[string]Session{}
}

// CloseSession closes and drops peerID's socket, if any (used when an
// admin revokes an invitation — §4.7 Remove).
func (in *Instance) CloseSession(peerID string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if sess, ok := in.sessions[peerID]; ok {
		_ = sess.Close()
		delete(in.sessions, peerID)
	}
}
