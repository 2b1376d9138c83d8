package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fieldref/syncore/internal/models"
	"github.com/fieldref/syncore/internal/server/storage"
)

func newSecret() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate instance secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// CreateInstance creates sku with a fresh secret and records
// creatorPeerID as its sole admin and first member.
func (s *Storage) CreateInstance(ctx context.Context, sku, creatorPeerID string) (*models.Instance, error) {
	secret, err := newSecret()
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO instances (sku, secret, created_at) VALUES (?, ?, ?)`,
		sku, secret, time.Now().Unix(),
	); err != nil {
		if isUniqueViolation(err) {
			return nil, storage.ErrInstanceExists
		}
		return nil, fmt.Errorf("insert instance: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO instance_members (sku, peer_id, admin) VALUES (?, ?, 1)`,
		sku, creatorPeerID,
	); err != nil {
		return nil, fmt.Errorf("insert creator membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &models.Instance{SKU: sku, Secret: secret, Admins: []string{creatorPeerID}, Invitations: []string{creatorPeerID}}, nil
}

// GetInstance loads sku along with its admin and member lists.
func (s *Storage) GetInstance(ctx context.Context, sku string) (*models.Instance, error) {
	var secret string
	err := s.db.QueryRowContext(ctx, `SELECT secret FROM instances WHERE sku = ?`, sku).Scan(&secret)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrInstanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select instance: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT peer_id, admin FROM instance_members WHERE sku = ?`, sku)
	if err != nil {
		return nil, fmt.Errorf("select members: %w", err)
	}
	defer rows.Close()

	inst := &models.Instance{SKU: sku, Secret: secret}
	for rows.Next() {
		var peerID string
		var admin int
		if err := rows.Scan(&peerID, &admin); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		inst.Invitations = append(inst.Invitations, peerID)
		if admin != 0 {
			inst.Admins = append(inst.Admins, peerID)
		}
	}
	return inst, rows.Err()
}

// AddMember upserts peerID's membership row for sku.
func (s *Storage) AddMember(ctx context.Context, sku, peerID string, admin bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO instance_members (sku, peer_id, admin) VALUES (?, ?, ?)
		 ON CONFLICT (sku, peer_id) DO UPDATE SET admin = excluded.admin`,
		sku, peerID, boolToInt(admin),
	)
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

// RemoveMember deletes peerID's membership row for sku.
func (s *Storage) RemoveMember(ctx context.Context, sku, peerID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM instance_members WHERE sku = ? AND peer_id = ?`, sku, peerID)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}

// CreateInvitation persists a pending invitation.
func (s *Storage) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invitations (id, sku, from_peer, to_peer, admin, accepted, instance_secret, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.SKU, inv.From, inv.To, boolToInt(inv.Admin), boolToInt(inv.Accepted), inv.InstanceSecret, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert invitation: %w", err)
	}
	return nil
}

// GetInvitation loads an invitation by id.
func (s *Storage) GetInvitation(ctx context.Context, id string) (*models.Invitation, error) {
	return s.scanInvitation(ctx, `SELECT id, sku, from_peer, to_peer, admin, accepted, instance_secret FROM invitations WHERE id = ?`, id)
}

// GetInvitationForPeer returns the most recently created invitation
// issued to peerID for sku.
func (s *Storage) GetInvitationForPeer(ctx context.Context, sku, peerID string) (*models.Invitation, error) {
	return s.scanInvitation(ctx,
		`SELECT id, sku, from_peer, to_peer, admin, accepted, instance_secret FROM invitations
		 WHERE sku = ? AND to_peer = ? ORDER BY created_at DESC LIMIT 1`,
		sku, peerID,
	)
}

func (s *Storage) scanInvitation(ctx context.Context, query string, args ...any) (*models.Invitation, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	inv := &models.Invitation{}
	var admin, accepted int
	err := row.Scan(&inv.ID, &inv.SKU, &inv.From, &inv.To, &admin, &accepted, &inv.InstanceSecret)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan invitation: %w", err)
	}
	inv.Admin = admin != 0
	inv.Accepted = accepted != 0
	return inv, nil
}

// AcceptInvitation flips the accepted flag and returns the updated
// record.
func (s *Storage) AcceptInvitation(ctx context.Context, id string) (*models.Invitation, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE invitations SET accepted = 1 WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("update invitation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, storage.ErrInvitationNotFound
	}
	return s.GetInvitation(ctx, id)
}

// SaveRequestCode persists a freshly minted out-of-band request code.
func (s *Storage) SaveRequestCode(ctx context.Context, code *models.RequestCode) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO request_codes (code, peer_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (code) DO UPDATE SET peer_id = excluded.peer_id, created_at = excluded.created_at`,
		code.Code, code.PeerID, code.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert request code: %w", err)
	}
	return nil
}

// ResolveRequestCode returns the peer id bound to code if it was
// created within ttl of now.
func (s *Storage) ResolveRequestCode(ctx context.Context, code string, ttl time.Duration, now time.Time) (string, error) {
	var peerID string
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `SELECT peer_id, created_at FROM request_codes WHERE code = ?`, code).Scan(&peerID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrRequestCodeExpired
	}
	if err != nil {
		return "", fmt.Errorf("select request code: %w", err)
	}
	if now.Sub(time.Unix(createdAt, 0)) > ttl {
		return "", storage.ErrRequestCodeExpired
	}
	return peerID, nil
}

// SetPeerName records/updates the display name for peerID.
func (s *Storage) SetPeerName(ctx context.Context, peerID, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO peers (id, name) VALUES (?, ?) ON CONFLICT (id) DO UPDATE SET name = excluded.name`,
		peerID, name,
	)
	if err != nil {
		return fmt.Errorf("upsert peer name: %w", err)
	}
	return nil
}

// GetPeerName returns "" if peerID has never registered a name.
func (s *Storage) GetPeerName(ctx context.Context, peerID string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM peers WHERE id = ?`, peerID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("select peer name: %w", err)
	}
	return name, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "constraint failed"))
}
