package socket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/fieldref/syncore/internal/identity"
	"github.com/fieldref/syncore/internal/models"
	"github.com/fieldref/syncore/internal/server/instance"
	"github.com/fieldref/syncore/pkg/api"
)

// PingInterval is how often the server pings an open socket; two
// missed pongs force-close the connection (§5).
const PingInterval = 30 * time.Second

const maxMissedPongs = 2

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades GET /api/:sku/join and runs the per-connection
// read loop.
type Handler struct {
	registry *instance.Registry
	logger   *slog.Logger
}

// NewHandler builds a join handler backed by registry.
func NewHandler(registry *instance.Registry, logger *slog.Logger) *Handler {
	return &Handler{registry: registry, logger: logger}
}

// ServeJoin verifies the handshake's signed query parameters, upgrades
// the connection, and drives the session until it closes.
func (h *Handler) ServeJoin(w http.ResponseWriter, r *http.Request) {
	sku := mux.Vars(r)["sku"]
	q := r.URL.Query()
	peerID := q.Get("id")
	name := q.Get("name")
	sig := q.Get("signature")
	date := q.Get("date")

	if peerID == "" || sig == "" || date == "" {
		http.Error(w, "missing handshake parameters", http.StatusBadRequest)
		return
	}

	canonicalPath := handshakeCanonicalPath(r.URL.Path, peerID, name)
	if err := identity.VerifyRequest(peerID, http.MethodGet, canonicalPath, date, nil, sig, time.Now()); err != nil {
		h.logger.Warn("socket handshake rejected", "sku", sku, "peer_id", peerID, "error", err)
		http.Error(w, "unauthorized: bad signature", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "sku", sku, "peer_id", peerID, "error", err)
		return
	}

	sess := NewSession(conn, peerID, name)
	in := h.registry.Get(sku)
	ctx := r.Context()

	info, err := in.Join(ctx, sess)
	if err != nil {
		h.logger.Error("join failed", "sku", sku, "peer_id", peerID, "error", err)
		_ = sess.Close()
		return
	}
	_ = sess.Send(api.Frame{
		Type:   api.FrameServerShareInfo,
		Sender: api.Sender{Type: "server"},
		Date:   time.Now().UTC().Format(time.RFC3339),
		Body:   info,
	})

	go h.pingLoop(sess)
	h.readLoop(ctx, in, sess)
	in.Leave(ctx, peerID, sess)
}

// handshakeCanonicalPath rebuilds the path+query string the handshake
// signature covers: the join path plus its id/name parameters, sorted
// for determinism, excluding the signature and date parameters
// themselves (they are carried as separate CanonicalString inputs,
// mirroring how the HTTP signature check carries date as a header
// rather than folding it into the path).
func handshakeCanonicalPath(path, peerID, name string) string {
	v := url.Values{}
	v.Set("id", peerID)
	if name != "" {
		v.Set("name", name)
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(path)
	b.WriteByte('?')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v.Get(k))
	}
	return b.String()
}

func (h *Handler) pingLoop(sess *Session) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	missed := 0
	sess.conn.SetPongHandler(func(string) error {
		missed = 0
		return nil
	})

	for range ticker.C {
		sess.mu.Lock()
		alive := sess.alive
		sess.mu.Unlock()
		if !alive {
			return
		}

		sess.mu.Lock()
		err := sess.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		sess.mu.Unlock()
		if err != nil {
			_ = sess.Close()
			return
		}

		missed++
		if missed > maxMissedPongs {
			_ = sess.Close()
			return
		}
	}
}

type inboundFrame struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

func (h *Handler) readLoop(ctx context.Context, in *instance.Instance, sess *Session) {
	for {
		var frame inboundFrame
		if err := sess.conn.ReadJSON(&frame); err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) {
				h.logger.Debug("socket read loop ended", "peer_id", sess.PeerID(), "error", err)
			}
			return
		}

		sender := api.Sender{Type: "client", ID: sess.PeerID(), Name: sess.Name()}
		if err := h.dispatch(ctx, in, frame, sender); err != nil {
			h.logger.Warn("dropping malformed frame", "peer_id", sess.PeerID(), "type", frame.Type, "error", err)
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, in *instance.Instance, frame inboundFrame, sender api.Sender) error {
	switch frame.Type {
	case api.FrameAddIncident:
		var body api.AddIncidentBody
		if err := json.Unmarshal(frame.Body, &body); err != nil {
			return err
		}
		return ignoreTombstoned(in.AddIncident(ctx, incidentID(body.Incident), body.Incident, sender))

	case api.FrameUpdateIncident:
		var body api.UpdateIncidentBody
		if err := json.Unmarshal(frame.Body, &body); err != nil {
			return err
		}
		return ignoreStale(ignoreTombstoned(in.UpdateIncident(ctx, incidentID(body.Incident), body.Incident, sender)))

	case api.FrameRemoveIncident:
		var body api.RemoveIncidentBody
		if err := json.Unmarshal(frame.Body, &body); err != nil {
			return err
		}
		return in.RemoveIncident(ctx, body.ID, sender)

	case api.FrameScratchpadUpdate:
		var body api.ScratchpadUpdateBody
		if err := json.Unmarshal(frame.Body, &body); err != nil {
			return err
		}
		return in.UpdateScratchpad(ctx, body.ID, body.Scratchpad, sender)

	case api.FrameMessage:
		var body api.MessageBody
		if err := json.Unmarshal(frame.Body, &body); err != nil {
			return err
		}
		in.Broadcast(api.Frame{
			Type:   api.FrameMessage,
			Sender: sender,
			Date:   time.Now().UTC().Format(time.RFC3339),
			Body:   body,
		})
		return nil

	default:
		return nil
	}
}

func incidentID(env *models.Envelope) string {
	if env == nil {
		return ""
	}
	id, _ := env.Immutable["id"].(string)
	return id
}

// ignoreTombstoned treats a refused tombstoned write as a client-side
// no-op rather than a connection error (§7: the client is expected to
// accept the refusal silently).
func ignoreTombstoned(err error) error {
	if errors.Is(err, instance.ErrTombstoned) {
		return nil
	}
	return err
}

// ignoreStale treats a stale write the same way (§7: "client treats
// as success").
func ignoreStale(err error) error {
	if errors.Is(err, instance.ErrStale) {
		return nil
	}
	return err
}
