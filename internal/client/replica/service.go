// Package replica drives one SKU's local consistent maps: applying
// local mutations, queueing them for delivery when the link is down,
// and reconciling against the server's snapshot on join/force-sync.
package replica

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/fieldref/syncore/internal/client/storage"
	"github.com/fieldref/syncore/internal/client/transport"
	"github.com/fieldref/syncore/internal/crdt"
	"github.com/fieldref/syncore/internal/models"
)

// outboundBackoff is the delivery retry policy for queued mutations:
// 1s start, doubling, capped at 30s, with 20% jitter so that many
// clients reconnecting after an outage don't hammer the server in
// lockstep.
func outboundBackoff() (retry.Backoff, error) {
	b := retry.NewExponential(1 * time.Second)
	b = retry.WithCappedDuration(30*time.Second, b)
	b = retry.WithJitterPercent(20, b)
	return b, nil
}

// Service is the client-side replica for one server instance: it owns
// the local consistent maps, the outbound queue, the http client used
// for mutation/export calls, and (once joined) the live socket used
// for scratchpad updates.
type Service struct {
	sku    string
	store  storage.ReplicaStorage
	client *transport.Client
	socket *transport.Socket
	logger *slog.Logger
}

// New builds a Service for sku backed by store and client.
func New(sku string, store storage.ReplicaStorage, client *transport.Client, logger *slog.Logger) *Service {
	return &Service{sku: sku, store: store, client: client, logger: logger}
}

// SetSocket attaches the live join session this service should use
// for scratchpad_update frames. Pass nil to mark the socket
// as disconnected; scratchpad writes then stay in the outbound queue.
func (s *Service) SetSocket(sock *transport.Socket) {
	s.socket = sock
}

// AddIncident records a brand-new incident locally and attempts an
// immediate push, falling back to the outbound queue on failure.
func (s *Service) AddIncident(ctx context.Context, inc models.Incident) error {
	env, err := s.toEnvelope(inc, models.IncidentImmutableKeys)
	if err != nil {
		return err
	}
	if err := s.upsertLocal(ctx, s.store.LoadIncidents, s.store.SaveIncidents, inc.ID, env); err != nil {
		return err
	}
	return s.pushOrQueue(ctx, storage.OutboundAddIncident, inc.ID, env, func() error {
		return s.client.AddIncident(ctx, s.sku, env)
	})
}

// UpdateIncident applies field changes to an existing incident
// envelope and attempts an immediate push.
func (s *Service) UpdateIncident(ctx context.Context, id string, mutate func(env *models.Envelope)) error {
	m, err := s.store.LoadIncidents(ctx, s.sku)
	if err != nil {
		return fmt.Errorf("load incidents: %w", err)
	}
	env, ok := m.Values[id]
	if !ok {
		return fmt.Errorf("incident %s not found locally", id)
	}
	mutate(env)
	if err := s.store.SaveIncidents(ctx, s.sku, m); err != nil {
		return fmt.Errorf("save incidents: %w", err)
	}
	return s.pushOrQueue(ctx, storage.OutboundUpdateIncident, id, env, func() error {
		return s.client.UpdateIncident(ctx, s.sku, env)
	})
}

// RemoveIncident tombstones id locally and attempts an immediate push.
func (s *Service) RemoveIncident(ctx context.Context, id string) error {
	m, err := s.store.LoadIncidents(ctx, s.sku)
	if err != nil {
		return fmt.Errorf("load incidents: %w", err)
	}
	delete(m.Values, id)
	m.Deleted.Add(id)
	if err := s.store.SaveIncidents(ctx, s.sku, m); err != nil {
		return fmt.Errorf("save incidents: %w", err)
	}
	return s.pushOrQueue(ctx, storage.OutboundRemoveIncident, id, nil, func() error {
		return s.client.RemoveIncident(ctx, s.sku, id)
	})
}

// UpdateScratchpad merges a free-form annotation into the local
// scratchpad map and attempts an immediate push.
func (s *Service) UpdateScratchpad(ctx context.Context, pad models.Scratchpad) error {
	env, err := s.toEnvelope(pad, models.ScratchpadImmutableKeys)
	if err != nil {
		return err
	}
	if err := s.upsertLocal(ctx, s.store.LoadScratchpads, s.store.SaveScratchpads, pad.ID, env); err != nil {
		return err
	}
	return s.pushOrQueue(ctx, storage.OutboundScratchpadUpdate, pad.ID, env, func() error {
		return s.sendScratchpad(pad.ID, env)
	})
}

func (s *Service) sendScratchpad(id string, env *models.Envelope) error {
	if s.socket == nil {
		return errSocketDisconnected
	}
	return s.socket.Send(scratchpadFrameType, scratchpadBody{ID: id, Scratchpad: env})
}

const scratchpadFrameType = "scratchpad_update"

type scratchpadBody struct {
	ID         string           `json:"id"`
	Scratchpad *models.Envelope `json:"scratchpad"`
}

var errSocketDisconnected = errors.New("socket not connected")

func (s *Service) toEnvelope(v any, immutableKeys []string) (*models.Envelope, error) {
	immutable, fields, err := models.ToFieldMap(v, immutableKeys)
	if err != nil {
		return nil, fmt.Errorf("build envelope: %w", err)
	}
	return models.NewEnvelope(immutable, fields, s.client.PeerID()), nil
}

func (s *Service) upsertLocal(
	ctx context.Context,
	load func(context.Context, string) (*crdt.ConsistentMap, error),
	save func(context.Context, string, *crdt.ConsistentMap) error,
	id string,
	env *models.Envelope,
) error {
	m, err := load(ctx, s.sku)
	if err != nil {
		return fmt.Errorf("load local state: %w", err)
	}
	m.Values[id] = env
	if err := save(ctx, s.sku, m); err != nil {
		return fmt.Errorf("save local state: %w", err)
	}
	return nil
}

// pushOrQueue attempts send once. A *transport.ErrServer refusal is
// returned to the caller as-is; any other failure enqueues the mutation
// for FlushOutbound to retry later rather than surfacing the error to
// the caller, since the write already landed in local storage.
func (s *Service) pushOrQueue(ctx context.Context, kind storage.OutboundKind, recordID string, env *models.Envelope, send func() error) error {
	if err := send(); err != nil {
		var serverErr *transport.ErrServer
		if errors.As(err, &serverErr) {
			return err
		}
		s.logger.Warn("push failed, queueing for retry", "sku", s.sku, "record_id", recordID, "kind", kind, "error", err)
		return s.store.EnqueueOutbound(ctx, storage.OutboundMutation{
			ID:       uuid.NewString(),
			SKU:      s.sku,
			Kind:     kind,
			RecordID: recordID,
			Envelope: env,
		})
	}
	return nil
}

// FlushOutbound retries every queued mutation for sku, dequeuing each
// on success and recording a failed attempt (for backoff bookkeeping)
// otherwise.
func (s *Service) FlushOutbound(ctx context.Context) error {
	pending, err := s.store.ListOutbound(ctx, s.sku)
	if err != nil {
		return fmt.Errorf("list outbound: %w", err)
	}

	for _, m := range pending {
		backoff, err := outboundBackoff()
		if err != nil {
			return err
		}
		backoff = retry.WithMaxRetries(3, backoff)

		sendErr := retry.Do(ctx, backoff, func(ctx context.Context) error {
			err := s.deliver(ctx, m)
			if err != nil {
				var serverErr *transport.ErrServer
				if errors.As(err, &serverErr) {
					return err
				}
				return retry.RetryableError(err)
			}
			return nil
		})

		if sendErr != nil {
			s.logger.Warn("outbound mutation still failing", "sku", s.sku, "record_id", m.RecordID, "kind", m.Kind, "error", sendErr)
			if err := s.store.TouchOutbound(ctx, s.sku, m.ID); err != nil {
				return fmt.Errorf("touch outbound: %w", err)
			}
			continue
		}
		if err := s.store.DequeueOutbound(ctx, s.sku, m.ID); err != nil {
			return fmt.Errorf("dequeue outbound: %w", err)
		}
	}
	return nil
}

func (s *Service) deliver(ctx context.Context, m storage.OutboundMutation) error {
	switch m.Kind {
	case storage.OutboundAddIncident:
		return s.client.AddIncident(ctx, s.sku, m.Envelope)
	case storage.OutboundUpdateIncident:
		return s.client.UpdateIncident(ctx, s.sku, m.Envelope)
	case storage.OutboundRemoveIncident:
		return s.client.RemoveIncident(ctx, s.sku, m.RecordID)
	case storage.OutboundScratchpadUpdate:
		return s.sendScratchpad(m.RecordID, m.Envelope)
	default:
		return fmt.Errorf("unknown outbound mutation kind %q", m.Kind)
	}
}
