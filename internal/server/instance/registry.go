package instance

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fieldref/syncore/internal/server/storage"
)

// DefaultIdleWindow is the time of inactivity after which an actor is
// evicted from memory (§5). Eviction drops in-memory session state
// only; everything already committed to storage survives.
const DefaultIdleWindow = 24 * time.Hour

// Registry lazily creates and caches one Instance per sku, and
// evicts actors that have been idle past IdleWindow.
type Registry struct {
	store      storage.Storage
	logger     *slog.Logger
	idleWindow time.Duration

	mu        sync.Mutex
	instances map[string]*Instance
	stopC     chan struct{}
}

// NewRegistry creates a registry and starts its eviction sweep.
func NewRegistry(store storage.Storage, logger *slog.Logger) *Registry {
	r := &Registry{
		store:      store,
		logger:     logger,
		idleWindow: DefaultIdleWindow,
		instances:  map[string]*Instance{},
		stopC:      make(chan struct{}),
	}
	go r.sweep()
	return r
}

// Get returns the actor for sku, creating it on first access.
func (r *Registry) Get(sku string) *Instance {
	r.mu.Lock()
	defer r.mu.Unlock()

	if in, ok := r.instances[sku]; ok {
		return in
	}
	in := New(sku, r.store, r.logger)
	r.instances[sku] = in
	return in
}

// Stop halts the eviction sweep.
func (r *Registry) Stop() {
	close(r.stopC)
}

func (r *Registry) sweep() {
	ticker := time.NewTicker(r.idleWindow / 24)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.evictIdle()
		case <-r.stopC:
			return
		}
	}
}

func (r *Registry) evictIdle() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for sku, in := range r.instances {
		if now.Sub(in.LastActivity()) < r.idleWindow {
			continue
		}
		in.CloseSessions()
		delete(r.instances, sku)
		r.logger.Info("evicted idle instance", "sku", sku)
	}
}
