package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fieldref/syncore/internal/models"
	"github.com/fieldref/syncore/pkg/api"
)

// RegisterUser announces this peer's display name to the server.
func (c *Client) RegisterUser(ctx context.Context, name string) error {
	return c.Do(ctx, http.MethodPost, "/api/user", api.RegisterUserRequest{Name: name}, nil)
}

// CreateInstance provisions sku with this peer as its sole admin,
// returning the self-accepted admin invitation.
func (c *Client) CreateInstance(ctx context.Context, sku string) (*models.Invitation, error) {
	var resp struct {
		SKU        string             `json:"sku"`
		Invitation *models.Invitation `json:"invitation"`
	}
	if err := c.Do(ctx, http.MethodPost, fmt.Sprintf("/api/%s/create", sku), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Invitation, nil
}

// GetInvitation fetches the caller's own pending or accepted
// invitation for sku.
func (c *Client) GetInvitation(ctx context.Context, sku string) (*models.Invitation, error) {
	var inv models.Invitation
	if err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/api/%s/invitation", sku), nil, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// AcceptInvitation consumes the caller's pending invitation id for sku.
func (c *Client) AcceptInvitation(ctx context.Context, sku, invitationID string) (*models.Invitation, error) {
	var inv models.Invitation
	path := withQuery(fmt.Sprintf("/api/%s/accept", sku), map[string]string{"invitation": invitationID})
	if err := c.Do(ctx, http.MethodPut, path, nil, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// Invite grants targetPeerID access to sku.
func (c *Client) Invite(ctx context.Context, sku, targetPeerID string) (*models.Invitation, error) {
	var inv models.Invitation
	path := withQuery(fmt.Sprintf("/api/%s/invite", sku), map[string]string{"user": targetPeerID})
	if err := c.Do(ctx, http.MethodPut, path, nil, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// RevokeInvite withdraws targetPeerID's access to sku.
func (c *Client) RevokeInvite(ctx context.Context, sku, targetPeerID string) error {
	path := withQuery(fmt.Sprintf("/api/%s/invite", sku), map[string]string{"user": targetPeerID})
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// CreateRequestCode issues a short out-of-band code admitting the
// caller's own peer id to sku once an admin resolves it.
func (c *Client) CreateRequestCode(ctx context.Context, sku string) (string, error) {
	var resp api.RequestCodeResponse
	if err := c.Do(ctx, http.MethodPut, fmt.Sprintf("/api/%s/request", sku), nil, &resp); err != nil {
		return "", err
	}
	return resp.Code, nil
}

// ResolveRequestCode looks up the peer id that requested code.
func (c *Client) ResolveRequestCode(ctx context.Context, sku, code string) (string, error) {
	var resp api.ResolveCodeResponse
	path := withQuery(fmt.Sprintf("/api/%s/request", sku), map[string]string{"code": code})
	if err := c.Do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.PeerID, nil
}
