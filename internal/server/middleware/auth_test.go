package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldref/syncore/internal/identity"
)

func signedRequest(t *testing.T, k *identity.KeyPair, method, target string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	date := time.Now().UTC().Format(identity.DateLayout)
	canonical := identity.CanonicalString(method, req.URL.RequestURI(), date, body)
	sig, err := k.Sign(canonical)
	require.NoError(t, err)

	req.Header.Set(identity.HeaderPeerID, k.PeerID())
	req.Header.Set(identity.HeaderDate, date)
	req.Header.Set(identity.HeaderSignature, sig)
	req.Header.Set(identity.HeaderSessionID, "session-1")
	return req
}

func TestAuthMiddleware_Success(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	k, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	var seenPeer, seenSession string
	handler := AuthMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenPeer = PeerID(r.Context())
		seenSession = SessionID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := signedRequest(t, k, http.MethodGet, "/api/SKU1/get", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, k.PeerID(), seenPeer)
	assert.Equal(t, "session-1", seenSession)
}

func TestAuthMiddleware_MissingHeaders(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := AuthMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/SKU1/get", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_BadSignature(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	k, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	handler := AuthMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := signedRequest(t, k, http.MethodGet, "/api/SKU1/get", nil)
	req.Header.Set(identity.HeaderSignature, "tampered")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_StaleDate(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	k, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	method, target := http.MethodGet, "/api/SKU1/get"
	req := httptest.NewRequest(method, target, nil)
	date := time.Now().Add(-10 * time.Minute).UTC().Format(identity.DateLayout)
	canonical := identity.CanonicalString(method, req.URL.RequestURI(), date, nil)
	sig, err := k.Sign(canonical)
	require.NoError(t, err)

	req.Header.Set(identity.HeaderPeerID, k.PeerID())
	req.Header.Set(identity.HeaderDate, date)
	req.Header.Set(identity.HeaderSignature, sig)

	handler := AuthMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_BodyTamperDetected(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	k, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	req := signedRequest(t, k, http.MethodPut, "/api/SKU1/incident", []byte(`{"notes":"original"}`))
	req.Body = io.NopCloser(bytes.NewReader([]byte(`{"notes":"tampered"}`)))

	handler := AuthMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
