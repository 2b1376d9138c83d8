package boltdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldref/syncore/internal/client/storage"
	"github.com/fieldref/syncore/internal/crdt"
	"github.com/fieldref/syncore/internal/models"
)

func newTestStore(t *testing.T) *Storage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "replica.db")
	store, err := New(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestIncidents_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m, err := store.LoadIncidents(ctx, "RE-VRC-24-1234")
	require.NoError(t, err)
	assert.Empty(t, m.Values)

	env := &models.Envelope{
		Immutable: map[string]any{"id": "inc-1"},
		Fields:    map[string]any{"team": "1234A"},
	}
	m.Values["inc-1"] = env
	m.Deleted.Add("inc-2")

	require.NoError(t, store.SaveIncidents(ctx, "RE-VRC-24-1234", m))

	reloaded, err := store.LoadIncidents(ctx, "RE-VRC-24-1234")
	require.NoError(t, err)
	assert.Equal(t, "1234A", reloaded.Values["inc-1"].Fields["team"])
	assert.True(t, reloaded.Deleted.Contains("inc-2"))

	other, err := store.LoadScratchpads(ctx, "RE-VRC-24-1234")
	require.NoError(t, err)
	assert.Empty(t, other.Values)
}

func TestScratchpads_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := crdt.NewConsistentMap()
	m.Values["pad-1"] = &models.Envelope{Fields: map[string]any{"notes": "check field perimeter"}}
	require.NoError(t, store.SaveScratchpads(ctx, "RE-VRC-24-1234", m))

	reloaded, err := store.LoadScratchpads(ctx, "RE-VRC-24-1234")
	require.NoError(t, err)
	assert.Equal(t, "check field perimeter", reloaded.Values["pad-1"].Fields["notes"])
}

func TestMembership_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetMembership(ctx, "RE-VRC-24-1234")
	assert.ErrorIs(t, err, storage.ErrMembershipNotFound)

	inv := &models.Invitation{
		ID: "inv-1", SKU: "RE-VRC-24-1234", From: "admin-peer",
		To: "my-peer", Admin: false, Accepted: true, InstanceSecret: "s3cr3t",
	}
	require.NoError(t, store.SaveMembership(ctx, "RE-VRC-24-1234", inv))

	got, err := store.GetMembership(ctx, "RE-VRC-24-1234")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", got.InstanceSecret)

	skus, err := store.ListMemberships(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"RE-VRC-24-1234"}, skus)
}

func TestOutboundQueue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m1 := storage.OutboundMutation{ID: "a", SKU: "RE-VRC-24-1234", Kind: storage.OutboundAddIncident, RecordID: "inc-1"}
	m2 := storage.OutboundMutation{ID: "b", SKU: "RE-VRC-24-1234", Kind: storage.OutboundRemoveIncident, RecordID: "inc-2"}
	otherSKU := storage.OutboundMutation{ID: "a", SKU: "RE-VRC-24-9999", Kind: storage.OutboundAddIncident, RecordID: "inc-9"}

	require.NoError(t, store.EnqueueOutbound(ctx, m1))
	require.NoError(t, store.EnqueueOutbound(ctx, m2))
	require.NoError(t, store.EnqueueOutbound(ctx, otherSKU))

	list, err := store.ListOutbound(ctx, "RE-VRC-24-1234")
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.NoError(t, store.TouchOutbound(ctx, "RE-VRC-24-1234", "a"))
	list, err = store.ListOutbound(ctx, "RE-VRC-24-1234")
	require.NoError(t, err)
	for _, m := range list {
		if m.ID == "a" {
			assert.Equal(t, 1, m.Attempts)
		}
	}

	require.NoError(t, store.DequeueOutbound(ctx, "RE-VRC-24-1234", "a"))
	list, err = store.ListOutbound(ctx, "RE-VRC-24-1234")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].ID)

	otherList, err := store.ListOutbound(ctx, "RE-VRC-24-9999")
	require.NoError(t, err)
	require.Len(t, otherList, 1)
}

func TestReplicaStorage_ClosedReturnsError(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Close())
	ctx := context.Background()

	_, err := store.LoadIncidents(ctx, "RE-VRC-24-1234")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)

	err = store.SaveMembership(ctx, "RE-VRC-24-1234", &models.Invitation{})
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}
