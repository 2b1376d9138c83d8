// Package storage defines the client's local persistence contract:
// one consistent map per SKU for incidents and for scratchpads, the
// membership record proving admission, and an outbound queue of
// mutations still waiting to reach the server.
package storage

import (
	"context"

	"github.com/fieldref/syncore/internal/crdt"
	"github.com/fieldref/syncore/internal/models"
)

// OutboundKind discriminates the queued mutation types a client may
// still owe the server.
type OutboundKind string

const (
	OutboundAddIncident      OutboundKind = "add_incident"
	OutboundUpdateIncident   OutboundKind = "update_incident"
	OutboundRemoveIncident   OutboundKind = "remove_incident"
	OutboundScratchpadUpdate OutboundKind = "scratchpad_update"
)

// OutboundMutation is one queued push: the frame the client still
// owes the server, with enough attempt bookkeeping to drive
// exponential backoff.
type OutboundMutation struct {
	ID       string       `json:"id"`
	SKU      string       `json:"sku"`
	Kind     OutboundKind `json:"kind"`
	RecordID string       `json:"recordId"`
	Envelope *models.Envelope `json:"envelope,omitempty"`
	Attempts int          `json:"attempts"`
}

// ReplicaStorage is the full durable surface the client replica
// needs: one consistent map per SKU for incidents and scratchpads,
// the membership record proving admission, and the outbound queue.
type ReplicaStorage interface {
	// LoadIncidents returns the consistent map for sku, or an empty one
	// if sku has never been synced locally.
	LoadIncidents(ctx context.Context, sku string) (*crdt.ConsistentMap, error)
	// SaveIncidents persists the full resolved map for sku.
	SaveIncidents(ctx context.Context, sku string, m *crdt.ConsistentMap) error

	// LoadScratchpads/SaveScratchpads mirror LoadIncidents/SaveIncidents
	// for the scratchpad collection.
	LoadScratchpads(ctx context.Context, sku string) (*crdt.ConsistentMap, error)
	SaveScratchpads(ctx context.Context, sku string, m *crdt.ConsistentMap) error

	// SaveMembership records the accepted invitation (including the
	// instance secret) that proves this device's admission to sku.
	SaveMembership(ctx context.Context, sku string, inv *models.Invitation) error
	// GetMembership returns ErrMembershipNotFound if sku was never
	// joined from this device.
	GetMembership(ctx context.Context, sku string) (*models.Invitation, error)
	// ListMemberships returns every SKU this device currently holds a
	// membership record for.
	ListMemberships(ctx context.Context) ([]string, error)

	// EnqueueOutbound appends a mutation to the outbound queue.
	EnqueueOutbound(ctx context.Context, m OutboundMutation) error
	// ListOutbound returns every queued mutation for sku, ordered by
	// mutation id; this is not necessarily the order they were enqueued.
	ListOutbound(ctx context.Context, sku string) ([]OutboundMutation, error)
	// DequeueOutbound removes m after it has been acknowledged.
	DequeueOutbound(ctx context.Context, sku, id string) error
	// TouchOutbound records a failed delivery attempt, incrementing
	// the mutation's attempt counter for backoff purposes.
	TouchOutbound(ctx context.Context, sku, id string) error

	// Close releases the underlying connection.
	Close() error
}
