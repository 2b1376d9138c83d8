// Package transport is the client's signed link to a server instance:
// a REST client for membership/export/mutation calls, and a
// websocket dialer for the live socket session.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fieldref/syncore/internal/identity"
	"github.com/fieldref/syncore/pkg/api"
)

// ErrServer wraps a {success:false} response returned by the server,
// carrying its reason for callers that branch on it (e.g. to treat
// tombstoned/stale as a local no-op rather than a hard failure).
type ErrServer struct {
	StatusCode int
	Reason     api.Reason
	Details    string
}

func (e *ErrServer) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("server refused (%s): %s", e.Reason, e.Details)
	}
	return fmt.Sprintf("server refused (%s)", e.Reason)
}

// Client is the signed HTTP client for one peer identity talking to
// one server base URL.
type Client struct {
	httpClient *http.Client
	baseURL    string
	key        *identity.KeyPair
	sessionID  string
}

// New builds a Client that signs every request with key and tags it
// with sessionID for rate-limit/log correlation.
func New(baseURL string, key *identity.KeyPair, sessionID string) *Client {
	return &Client{
		baseURL: baseURL,
		key:     key,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		sessionID: sessionID,
	}
}

// Do performs a signed request against path (no query string baked
// in separately — pass it already appended to path) and decodes the
// {success,data}/{success:false,reason} envelope into result.
func (c *Client) Do(ctx context.Context, method, path string, body, result any) error {
	var raw []byte
	var err error
	if body != nil {
		raw, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if raw != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.key != nil {
		date := time.Now().UTC().Format(identity.DateLayout)
		canonical := identity.CanonicalString(method, pathWithQuery(req.URL), date, raw)
		sig, err := c.key.Sign(canonical)
		if err != nil {
			return fmt.Errorf("sign request: %w", err)
		}
		req.Header.Set(identity.HeaderPeerID, c.key.PeerID())
		req.Header.Set(identity.HeaderSignature, sig)
		req.Header.Set(identity.HeaderDate, date)
		if c.sessionID != "" {
			req.Header.Set(identity.HeaderSessionID, c.sessionID)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	var envelope api.Response
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &envelope); err != nil {
			return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
		}
	}

	if !envelope.Success {
		return &ErrServer{StatusCode: resp.StatusCode, Reason: envelope.Reason, Details: envelope.Details}
	}

	if result != nil && envelope.Data != nil {
		data, err := json.Marshal(envelope.Data)
		if err != nil {
			return fmt.Errorf("re-marshal response data: %w", err)
		}
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}

	return nil
}

// downloadRaw performs an unsigned GET and returns the raw response
// body, for the public export routes that don't carry the
// {success,data} envelope.
func (c *Client) downloadRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("export failed with status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// pathWithQuery reconstructs the exact string VerifyRequest expects:
// the request path plus its RawQuery, matching what net/http parses
// server-side from r.URL.
func pathWithQuery(u *url.URL) string {
	if u.RawQuery == "" {
		return u.Path
	}
	return u.Path + "?" + u.RawQuery
}

// PeerID returns the identity this client signs requests with, or
// empty if the client is unauthenticated (export-only usage).
func (c *Client) PeerID() string {
	if c.key == nil {
		return ""
	}
	return c.key.PeerID()
}

// withQuery appends query parameters to path, url-escaping values.
func withQuery(path string, params map[string]string) string {
	if len(params) == 0 {
		return path
	}
	v := url.Values{}
	for k, val := range params {
		v.Set(k, val)
	}
	return path + "?" + v.Encode()
}
