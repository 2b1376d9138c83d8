// Package storage defines the durable storage contract the server
// instance actor (C6) serializes its reads and writes through.
package storage

import (
	"context"
	"time"

	"github.com/fieldref/syncore/internal/models"
)

// Storage is the full durable-storage surface one per-SKU instance
// actor needs: membership (instances, invitations, request codes,
// display names) and the replicated collections (incidents,
// scratchpads, their tombstones).
type Storage interface {
	// CreateInstance creates a new instance with a fresh secret and
	// records creator as its sole admin and first member. Returns
	// ErrInstanceExists if sku is already registered.
	CreateInstance(ctx context.Context, sku, creatorPeerID string) (*models.Instance, error)

	// GetInstance returns ErrInstanceNotFound if sku is unknown.
	GetInstance(ctx context.Context, sku string) (*models.Instance, error)

	// AddMember records peerID as an accepted member of sku, and as an
	// admin too when admin is true.
	AddMember(ctx context.Context, sku, peerID string, admin bool) error

	// RemoveMember expunges peerID from both the member and admin
	// lists of sku.
	RemoveMember(ctx context.Context, sku, peerID string) error

	// CreateInvitation persists a pending invitation.
	CreateInvitation(ctx context.Context, inv *models.Invitation) error

	// GetInvitation returns ErrInvitationNotFound if id is unknown.
	GetInvitation(ctx context.Context, id string) (*models.Invitation, error)

	// GetInvitationForPeer returns the most recent invitation issued
	// to peerID for sku. Returns ErrInvitationNotFound if none exists.
	GetInvitationForPeer(ctx context.Context, sku, peerID string) (*models.Invitation, error)

	// AcceptInvitation marks id accepted and returns the updated
	// record including its instance secret.
	AcceptInvitation(ctx context.Context, id string) (*models.Invitation, error)

	// SaveRequestCode persists a freshly minted out-of-band request
	// code.
	SaveRequestCode(ctx context.Context, code *models.RequestCode) error

	// ResolveRequestCode returns the peer id bound to code, provided
	// it was created within ttl of now. Returns ErrRequestCodeExpired
	// otherwise (including when the code never existed, to avoid
	// leaking which codes are valid).
	ResolveRequestCode(ctx context.Context, code string, ttl time.Duration, now time.Time) (string, error)

	// SetPeerName records/updates the display name for peerID.
	SetPeerName(ctx context.Context, peerID, name string) error

	// GetPeerName returns "" if peerID has never registered a name.
	GetPeerName(ctx context.Context, peerID string) (string, error)

	// UpsertIncident stores env under (sku, id), replacing whatever
	// was there.
	UpsertIncident(ctx context.Context, sku, id string, env *models.Envelope) error

	// GetIncident returns ErrIncidentNotFound if (sku, id) is unknown.
	GetIncident(ctx context.Context, sku, id string) (*models.Envelope, error)

	// ListIncidents returns every non-tombstoned incident envelope for
	// sku, keyed by id.
	ListIncidents(ctx context.Context, sku string) (map[string]*models.Envelope, error)

	// TombstoneIncident removes (sku, id) from the live set and
	// records it in the tombstone set. Idempotent.
	TombstoneIncident(ctx context.Context, sku, id string) error

	// ListDeletedIncidents returns the tombstone set for sku.
	ListDeletedIncidents(ctx context.Context, sku string) ([]string, error)

	// UpsertScratchpad stores env under (sku, id), replacing whatever
	// was there.
	UpsertScratchpad(ctx context.Context, sku, id string, env *models.Envelope) error

	// ListScratchpads returns every scratchpad envelope for sku, keyed
	// by id.
	ListScratchpads(ctx context.Context, sku string) (map[string]*models.Envelope, error)

	// Close releases the underlying connection.
	Close() error
}
