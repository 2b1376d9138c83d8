package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fieldref/syncore/internal/models"
	"github.com/fieldref/syncore/internal/server/storage"
)

// UpsertIncident stores env under (sku, id), replacing whatever was
// there.
func (s *Storage) UpsertIncident(ctx context.Context, sku, id string, env *models.Envelope) error {
	return s.upsertEnvelope(ctx, "incidents", sku, id, env)
}

// GetIncident returns storage.ErrIncidentNotFound if (sku, id) is
// unknown.
func (s *Storage) GetIncident(ctx context.Context, sku, id string) (*models.Envelope, error) {
	env, err := s.getEnvelope(ctx, "incidents", sku, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrIncidentNotFound
	}
	return env, err
}

// ListIncidents returns every stored incident envelope for sku, keyed
// by id. Tombstoned ids are pruned by the caller's merge pass, not
// here — the row is deleted from this table by TombstoneIncident.
func (s *Storage) ListIncidents(ctx context.Context, sku string) (map[string]*models.Envelope, error) {
	return s.listEnvelopes(ctx, "incidents", sku)
}

// TombstoneIncident removes (sku, id) from the live incidents table
// and records it in incident_tombstones. Idempotent.
func (s *Storage) TombstoneIncident(ctx context.Context, sku, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM incidents WHERE sku = ? AND id = ?`, sku, id); err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO incident_tombstones (sku, id) VALUES (?, ?) ON CONFLICT (sku, id) DO NOTHING`,
		sku, id,
	); err != nil {
		return fmt.Errorf("insert tombstone: %w", err)
	}
	return tx.Commit()
}

// ListDeletedIncidents returns the tombstone set for sku.
func (s *Storage) ListDeletedIncidents(ctx context.Context, sku string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM incident_tombstones WHERE sku = ?`, sku)
	if err != nil {
		return nil, fmt.Errorf("select tombstones: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tombstone: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertScratchpad stores env under (sku, id), replacing whatever was
// there.
func (s *Storage) UpsertScratchpad(ctx context.Context, sku, id string, env *models.Envelope) error {
	return s.upsertEnvelope(ctx, "scratchpads", sku, id, env)
}

// ListScratchpads returns every scratchpad envelope for sku, keyed by
// id.
func (s *Storage) ListScratchpads(ctx context.Context, sku string) (map[string]*models.Envelope, error) {
	return s.listEnvelopes(ctx, "scratchpads", sku)
}

func (s *Storage) upsertEnvelope(ctx context.Context, table, sku, id string, env *models.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (sku, id, envelope) VALUES (?, ?, ?)
		 ON CONFLICT (sku, id) DO UPDATE SET envelope = excluded.envelope`, table)
	if _, err := s.db.ExecContext(ctx, query, sku, id, string(raw)); err != nil {
		return fmt.Errorf("upsert into %s: %w", table, err)
	}
	return nil
}

func (s *Storage) getEnvelope(ctx context.Context, table, sku, id string) (*models.Envelope, error) {
	query := fmt.Sprintf(`SELECT envelope FROM %s WHERE sku = ? AND id = ?`, table)
	var raw string
	if err := s.db.QueryRowContext(ctx, query, sku, id).Scan(&raw); err != nil {
		return nil, err
	}
	env := &models.Envelope{}
	if err := json.Unmarshal([]byte(raw), env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return env, nil
}

func (s *Storage) listEnvelopes(ctx context.Context, table, sku string) (map[string]*models.Envelope, error) {
	query := fmt.Sprintf(`SELECT id, envelope FROM %s WHERE sku = ?`, table)
	rows, err := s.db.QueryContext(ctx, query, sku)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", table, err)
	}
	defer rows.Close()

	out := map[string]*models.Envelope{}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		env := &models.Envelope{}
		if err := json.Unmarshal([]byte(raw), env); err != nil {
			return nil, fmt.Errorf("unmarshal envelope: %w", err)
		}
		out[id] = env
	}
	return out, rows.Err()
}
