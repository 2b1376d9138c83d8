package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/fieldref/syncore/internal/server/instance"
	"github.com/fieldref/syncore/internal/server/storage"
)

// errForbidden/errBadRequest are base sentinels wrapped with a
// specific message so classify can route them without string
// matching while still surfacing the detail.
var (
	errForbidden  = errors.New("forbidden")
	errBadRequest = errors.New("bad request")
)

func forbiddenf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errForbidden, fmt.Sprintf(format, args...))
}

func badRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// Handlers implements every route in the HTTP surface (§6.2). It is
// deliberately thin: membership decisions and incident mutation both
// delegate to storage/instance, which already own the invariants.
type Handlers struct {
	store    storage.Storage
	registry *instance.Registry
	logger   *slog.Logger
}

// New builds the HTTP handler set backed by store and registry.
func New(store storage.Storage, registry *instance.Registry, logger *slog.Logger) *Handlers {
	return &Handlers{store: store, registry: registry, logger: logger}
}

// displayName resolves peerID's registered name, falling back to the
// bare id when the peer never called POST /user.
func (h *Handlers) displayName(r *http.Request, peerID string) string {
	name, err := h.store.GetPeerName(r.Context(), peerID)
	if err != nil || name == "" {
		return peerID
	}
	return name
}
