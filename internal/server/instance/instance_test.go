package instance

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldref/syncore/internal/models"
	"github.com/fieldref/syncore/internal/server/storage/sqlite"
	"github.com/fieldref/syncore/pkg/api"
)

type fakeSession struct {
	peerID     string
	name       string
	sent       []api.Frame
	alwaysFail bool
}

func (f *fakeSession) PeerID() string { return f.peerID }
func (f *fakeSession) Name() string   { return f.name }
func (f *fakeSession) Send(frame api.Frame) error {
	if f.alwaysFail {
		return assert.AnError
	}
	f.sent = append(f.sent, frame)
	return nil
}
func (f *fakeSession) Close() error { return nil }

func newTestInstance(t *testing.T, sku string) *Instance {
	t.Helper()
	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	_, err = store.CreateInstance(context.Background(), sku, "admin-peer")
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(sku, store, logger)
}

func TestInstance_AddAndUpdateIncident(t *testing.T) {
	ctx := context.Background()
	in := newTestInstance(t, "SKU1")
	sess := &fakeSession{peerID: "peerA", name: "Field A"}
	_, err := in.Join(ctx, sess)
	require.NoError(t, err)

	env := models.NewEnvelope(map[string]any{"id": "i1", "eventSku": "SKU1"}, map[string]any{"notes": "first"}, "peerA")
	require.NoError(t, in.AddIncident(ctx, "i1", env, api.Sender{Type: "client", ID: "peerA"}))
	require.Len(t, sess.sent, 2) // server_user_add + add_incident
	assert.Equal(t, api.FrameAddIncident, sess.sent[len(sess.sent)-1].Type)

	update := env.Clone()
	update.Update("notes", "revised", "peerA")
	require.NoError(t, in.UpdateIncident(ctx, "i1", update, api.Sender{Type: "client", ID: "peerA"}))
	assert.Equal(t, api.FrameUpdateIncident, sess.sent[len(sess.sent)-1].Type)

	// Replaying the original (stale) envelope advances nothing.
	err = in.UpdateIncident(ctx, "i1", env, api.Sender{Type: "client", ID: "peerA"})
	assert.ErrorIs(t, err, ErrStale)
}

func TestInstance_RemoveIncidentIsIdempotentAndBlocksReAdd(t *testing.T) {
	ctx := context.Background()
	in := newTestInstance(t, "SKU1")

	env := models.NewEnvelope(map[string]any{"id": "i1", "eventSku": "SKU1"}, map[string]any{"notes": "n"}, "peerA")
	require.NoError(t, in.AddIncident(ctx, "i1", env, api.Sender{Type: "client"}))

	require.NoError(t, in.RemoveIncident(ctx, "i1", api.Sender{Type: "client"}))
	require.NoError(t, in.RemoveIncident(ctx, "i1", api.Sender{Type: "client"})) // idempotent

	err := in.AddIncident(ctx, "i1", env, api.Sender{Type: "client"})
	assert.ErrorIs(t, err, ErrTombstoned)
}

func TestInstance_JoinDedupesByPeerAndLeaveRemovesSession(t *testing.T) {
	ctx := context.Background()
	in := newTestInstance(t, "SKU1")

	first := &fakeSession{peerID: "peerA", name: "old"}
	_, err := in.Join(ctx, first)
	require.NoError(t, err)

	second := &fakeSession{peerID: "peerA", name: "new"}
	_, err = in.Join(ctx, second)
	require.NoError(t, err)

	in.mu.Lock()
	active := in.sessions["peerA"]
	in.mu.Unlock()
	assert.Same(t, second, active)

	in.Leave(ctx, "peerA", second)
	in.mu.Lock()
	_, stillPresent := in.sessions["peerA"]
	in.mu.Unlock()
	assert.False(t, stillPresent)
}

func TestInstance_BroadcastDropsFailingSessions(t *testing.T) {
	ctx := context.Background()
	in := newTestInstance(t, "SKU1")

	good := &fakeSession{peerID: "peerA"}
	bad := &fakeSession{peerID: "peerB", alwaysFail: true}
	_, err := in.Join(ctx, good)
	require.NoError(t, err)
	_, err = in.Join(ctx, bad)
	require.NoError(t, err)

	env := models.NewEnvelope(map[string]any{"id": "i1", "eventSku": "SKU1"}, map[string]any{"notes": "n"}, "peerA")
	require.NoError(t, in.AddIncident(ctx, "i1", env, api.Sender{Type: "client"}))

	in.mu.Lock()
	_, stillThere := in.sessions["peerB"]
	in.mu.Unlock()
	assert.False(t, stillThere, "failing session should have been dropped")
}
