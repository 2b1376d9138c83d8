// Package socket implements the bidirectional frame protocol (§6.3)
// that a server instance actor speaks with connected peers.
package socket

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/fieldref/syncore/pkg/api"
)

// Session wraps one upgraded websocket connection. It satisfies
// instance.Session: Send/Close may be called concurrently with the
// read loop that owns conn, so writes take a dedicated mutex.
type Session struct {
	conn   *websocket.Conn
	peerID string
	name   string

	mu    sync.Mutex
	alive bool
}

// NewSession wraps conn for peerID/name, both already verified by the
// handshake signature check.
func NewSession(conn *websocket.Conn, peerID, name string) *Session {
	return &Session{conn: conn, peerID: peerID, name: name, alive: true}
}

// PeerID returns the verified peer id this socket was opened for.
func (s *Session) PeerID() string { return s.peerID }

// Name returns the display name supplied at handshake time.
func (s *Session) Name() string { return s.name }

// Send writes one frame as JSON. Concurrent-safe with Close and other
// Sends; after Close it writes nothing and returns
// websocket.ErrCloseSent.
func (s *Session) Send(frame api.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive {
		return websocket.ErrCloseSent
	}
	return s.conn.WriteJSON(frame)
}

// Close marks the session dead and closes the underlying connection.
// Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive {
		return nil
	}
	s.alive = false
	return s.conn.Close()
}
