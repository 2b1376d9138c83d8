package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fieldref/syncore/internal/identity"
	"github.com/fieldref/syncore/pkg/api"
)

// reconnectDelay is the flat backoff between dropped-socket retries.
// Unlike the outbound mutation queue's exponential backoff, a dropped
// join session just keeps trying at a fixed interval until it's back.
const reconnectDelay = 5 * time.Second

// Socket is one live (or reconnecting) join session to a server
// instance. Inbound frames are delivered on Frames; the caller is
// responsible for draining it.
type Socket struct {
	baseURL string
	sku     string
	key     *identity.KeyPair
	name    string
	logger  func(format string, args ...any)

	Frames chan api.Frame

	conn   *websocket.Conn
	cancel context.CancelFunc
}

// Dial opens a join session for sku and starts its read/reconnect
// loop in the background. Call Close to stop it.
func Dial(ctx context.Context, baseURL, sku string, key *identity.KeyPair, name string) (*Socket, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &Socket{
		baseURL: baseURL,
		sku:     sku,
		key:     key,
		name:    name,
		Frames:  make(chan api.Frame, 64),
		cancel:  cancel,
	}
	if err := s.connect(ctx); err != nil {
		cancel()
		return nil, err
	}
	go s.run(ctx)
	return s, nil
}

func (s *Socket) joinURL() (string, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + fmt.Sprintf("/api/%s/join", s.sku)

	date := time.Now().UTC().Format(identity.DateLayout)
	canonical := handshakeCanonicalPath(u.Path, s.key.PeerID(), s.name)
	sig, err := s.key.Sign(identity.CanonicalString("GET", canonical, date, nil))
	if err != nil {
		return "", fmt.Errorf("sign handshake: %w", err)
	}

	q := url.Values{}
	q.Set("id", s.key.PeerID())
	if s.name != "" {
		q.Set("name", s.name)
	}
	q.Set("signature", sig)
	q.Set("date", date)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// handshakeCanonicalPath mirrors the server's reconstruction: the
// join path plus its id/name parameters, sorted, excluding signature
// and date.
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

func (s *Socket) connect(ctx context.Context) error {
	target, err := s.joinURL()
	if err != nil {
		return err
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial join: status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial join: %w", err)
	}
	s.conn = conn
	return nil
}

func (s *Socket) run(ctx context.Context) {
	defer close(s.Frames)
	for {
		s.readLoop(ctx)
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
		if err := s.connect(ctx); err != nil {
			continue
		}
	}
}

func (s *Socket) readLoop(ctx context.Context) {
	for {
		var frame api.Frame
		if err := s.conn.ReadJSON(&frame); err != nil {
			_ = s.conn.Close()
			return
		}
		select {
		case s.Frames <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// Send writes a frame to the currently connected socket. It does not
// queue across reconnects; callers that need delivery guarantees
// should drive writes through the outbound mutation queue instead.
func (s *Socket) Send(frameType string, body any) error {
	if s.conn == nil {
		return fmt.Errorf("socket not connected")
	}
	frame := api.Frame{
		Type:   frameType,
		Sender: api.Sender{Type: "client", ID: s.key.PeerID(), Name: s.name},
		Date:   time.Now().UTC().Format(time.RFC3339),
		Body:   body,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close stops the reconnect loop and closes the underlying connection.
func (s *Socket) Close() error {
	s.cancel()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
