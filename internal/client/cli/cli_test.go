package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldref/syncore/internal/client/storage/boltdb"
	"github.com/fieldref/syncore/internal/client/transport"
	"github.com/fieldref/syncore/internal/identity"
	"github.com/fieldref/syncore/pkg/api"
)

// testIO captures everything a command prints instead of touching the
// real terminal, so assertions can check on command output.
type testIO struct {
	lines []string
}

func (t *testIO) Println(a ...any)              { t.lines = append(t.lines, fmt.Sprint(a...)) }
func (t *testIO) Printf(format string, a ...any) { t.lines = append(t.lines, fmt.Sprintf(format, a...)) }
func (t *testIO) ReadInput(string) (string, error)    { return "", nil }
func (t *testIO) ReadPassword(string) (string, error) { return "test-passphrase", nil }
func (t *testIO) Write(p []byte) (int, error) {
	t.lines = append(t.lines, string(p))
	return len(p), nil
}

func newTestApp(t *testing.T, handler http.HandlerFunc) (*App, *testIO) {
	t.Helper()
	key, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "replica.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var baseURL string
	if handler != nil {
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		baseURL = srv.URL
	}

	io := &testIO{}
	app := &App{
		Store:     store,
		Key:       key,
		Client:    transport.New(baseURL, key, key.PeerID()),
		Logger:    slog.New(slog.NewTextHandler(io, nil)),
		IO:        io,
		ServerURL: baseURL,
	}
	return app, io
}

func withApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appContextKey{}, app)
}

func TestIncidentAddThenList_RoundTripsThroughLocalStorage(t *testing.T) {
	app, io := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.Ok(nil))
	})
	ctx := withApp(context.Background(), app)

	add := newIncidentAddCmd()
	add.SetContext(ctx)
	require.NoError(t, add.Flags().Set("team", "1234A"))
	require.NoError(t, add.Flags().Set("notes", "pinning violation"))
	require.NoError(t, add.RunE(add, []string{"RE-VRC-24-1234"}))

	list := newIncidentListCmd()
	list.SetContext(ctx)
	require.NoError(t, list.RunE(list, []string{"RE-VRC-24-1234"}))

	joined := strings.Join(io.lines, "")
	assert.Contains(t, joined, "1234A")
	assert.Contains(t, joined, "pinning violation")
}

func TestIncidentAdd_QueuesOnNetworkFailure(t *testing.T) {
	// No handler/server at all: the client's requests fail at the
	// transport level (not a {success:false} response), which is the
	// case pushOrQueue retries instead of surfacing immediately.
	app, _ := newTestApp(t, nil)
	ctx := withApp(context.Background(), app)

	add := newIncidentAddCmd()
	add.SetContext(ctx)
	require.NoError(t, add.Flags().Set("team", "5678B"))
	require.NoError(t, add.RunE(add, []string{"RE-VRC-24-1234"}))

	pending, err := app.Store.ListOutbound(ctx, "RE-VRC-24-1234")
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestSplitKV(t *testing.T) {
	k, v, ok := splitKV("division=3")
	assert.True(t, ok)
	assert.Equal(t, "division", k)
	assert.Equal(t, "3", v)

	_, _, ok = splitKV("no-equals-sign")
	assert.False(t, ok)
}
