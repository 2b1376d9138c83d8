package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fieldref/syncore/internal/models"
	"github.com/fieldref/syncore/pkg/api"
)

// AddIncident pushes a brand-new incident envelope to sku.
func (c *Client) AddIncident(ctx context.Context, sku string, env *models.Envelope) error {
	return c.Do(ctx, http.MethodPut, fmt.Sprintf("/api/%s/incident", sku), api.AddIncidentBody{Incident: env}, nil)
}

// UpdateIncident pushes field changes to an existing incident on sku.
func (c *Client) UpdateIncident(ctx context.Context, sku string, env *models.Envelope) error {
	return c.Do(ctx, http.MethodPatch, fmt.Sprintf("/api/%s/incident", sku), api.UpdateIncidentBody{Incident: env}, nil)
}

// RemoveIncident tombstones id on sku.
func (c *Client) RemoveIncident(ctx context.Context, sku, id string) error {
	path := withQuery(fmt.Sprintf("/api/%s/incident", sku), map[string]string{"id": id})
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// GetSnapshot force-syncs: fetches the full current server state for
// sku, the same payload a join/server_share_info frame carries.
func (c *Client) GetSnapshot(ctx context.Context, sku string) (*api.ShareInfo, error) {
	var info api.ShareInfo
	if err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/api/%s/get", sku), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ExportCSV downloads the raw CSV export for sku. This is a public
// route (§6.2) and does not require a signed client.
func (c *Client) ExportCSV(ctx context.Context, sku string) ([]byte, error) {
	return c.downloadRaw(ctx, fmt.Sprintf("/api/%s/csv", sku))
}

// ExportJSON fetches the exported incident list for sku.
func (c *Client) ExportJSON(ctx context.Context, sku string) ([]models.Incident, error) {
	var incidents []models.Incident
	if err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/api/%s/json", sku), nil, &incidents); err != nil {
		return nil, err
	}
	return incidents, nil
}
