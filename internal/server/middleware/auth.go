package middleware

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fieldref/syncore/internal/identity"
)

type contextKey int

const (
	peerIDKey contextKey = iota
	sessionIDKey
)

// PeerID returns the verified peer id attached by AuthMiddleware, or
// "" if the request context carries none.
func PeerID(ctx context.Context) string {
	id, _ := ctx.Value(peerIDKey).(string)
	return id
}

// SessionID returns the session id attached by AuthMiddleware, or ""
// if the request carried no X-Session-Id header.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

// AuthMiddleware verifies the signed-request headers (§4.4): the
// declared peer id, date, and signature must check out against the
// exact method, path-with-query, and body of the request. There is no
// bearer token anywhere in this module — the declared public key is
// the identity, and verification is its own proof of authentication.
func AuthMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			peerID := r.Header.Get(identity.HeaderPeerID)
			date := r.Header.Get(identity.HeaderDate)
			sig := r.Header.Get(identity.HeaderSignature)
			sessionID := r.Header.Get(identity.HeaderSessionID)

			if peerID == "" || date == "" || sig == "" {
				logger.Warn("missing signed-request headers", "path", r.URL.Path)
				http.Error(w, "unauthorized: missing signature headers", http.StatusUnauthorized)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Warn("failed to read request body for signature check", "error", err)
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			pathWithQuery := r.URL.RequestURI()
			if err := identity.VerifyRequest(peerID, r.Method, pathWithQuery, date, body, sig, time.Now()); err != nil {
				logger.Warn("signature verification failed", "peer_id", peerID, "path", r.URL.Path, "error", err)
				http.Error(w, "unauthorized: bad signature", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), peerIDKey, peerID)
			ctx = context.WithValue(ctx, sessionIDKey, sessionID)

			logger.Debug("request authenticated", "peer_id", peerID, "session_id", sessionID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
