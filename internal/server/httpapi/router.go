package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fieldref/syncore/internal/server/instance"
	"github.com/fieldref/syncore/internal/server/middleware"
	"github.com/fieldref/syncore/internal/server/socket"
	"github.com/fieldref/syncore/internal/server/storage"
)

// NewRouter builds the complete /api surface: signed membership and
// incident routes, the unauthenticated read-only exports, and the
// socket join endpoint (which authenticates via its own signed query
// parameters rather than AuthMiddleware).
func NewRouter(store storage.Storage, registry *instance.Registry, logger *slog.Logger) *mux.Router {
	h := New(store, registry, logger)
	sockets := socket.NewHandler(registry, logger)

	root := mux.NewRouter()
	root.Use(middleware.RecoveryMiddleware(logger))
	root.Use(middleware.LoggingMiddleware(logger))

	root.Use(middleware.RateLimitMiddleware(60, time.Minute, logger))

	api := root.PathPrefix("/api").Subrouter()

	api.HandleFunc("/{sku}/join", sockets.ServeJoin).Methods(http.MethodGet)
	api.HandleFunc("/{sku}/csv", h.ExportCSV).Methods(http.MethodGet)
	api.HandleFunc("/{sku}/json", h.ExportJSON).Methods(http.MethodGet)

	signed := api.NewRoute().Subrouter()
	signed.Use(middleware.AuthMiddleware(logger))

	signed.HandleFunc("/user", h.RegisterUser).Methods(http.MethodPost)
	signed.HandleFunc("/{sku}/create", h.CreateInstance).Methods(http.MethodPost)
	signed.HandleFunc("/{sku}/invitation", h.GetInvitation).Methods(http.MethodGet)
	signed.HandleFunc("/{sku}/accept", h.AcceptInvitation).Methods(http.MethodPut)
	signed.HandleFunc("/{sku}/invite", h.Invite).Methods(http.MethodPut)
	signed.HandleFunc("/{sku}/invite", h.RevokeInvite).Methods(http.MethodDelete)
	signed.HandleFunc("/{sku}/request", h.CreateRequestCode).Methods(http.MethodPut)
	signed.HandleFunc("/{sku}/request", h.ResolveRequestCode).Methods(http.MethodGet)
	signed.HandleFunc("/{sku}/incident", h.AddIncident).Methods(http.MethodPut)
	signed.HandleFunc("/{sku}/incident", h.UpdateIncident).Methods(http.MethodPatch)
	signed.HandleFunc("/{sku}/incident", h.RemoveIncident).Methods(http.MethodDelete)
	signed.HandleFunc("/{sku}/get", h.GetSnapshot).Methods(http.MethodGet)

	return root
}
