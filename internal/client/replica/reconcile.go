package replica

import (
	"context"
	"fmt"

	"github.com/fieldref/syncore/internal/client/storage"
	"github.com/fieldref/syncore/internal/crdt"
	"github.com/fieldref/syncore/pkg/api"
)

// ReconcileResult summarizes one join/force-sync reconciliation pass.
type ReconcileResult struct {
	IncidentsApplied   int
	IncidentsPushed    int
	ScratchpadsApplied int
}

// Reconcile fetches the server's full snapshot for sku, three-way
// merges it against the local consistent maps, persists the resolved
// state locally, and pushes whatever the server is missing (queueing
// any push that fails immediately).
func (s *Service) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	snapshot, err := s.client.GetSnapshot(ctx, s.sku)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}

	result := &ReconcileResult{}

	if err := s.reconcileIncidents(ctx, snapshot, result); err != nil {
		return nil, err
	}
	if err := s.reconcileScratchpads(ctx, snapshot, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) reconcileIncidents(ctx context.Context, snapshot *api.ShareInfo, result *ReconcileResult) error {
	local, err := s.store.LoadIncidents(ctx, s.sku)
	if err != nil {
		return fmt.Errorf("load local incidents: %w", err)
	}
	remote := &crdt.ConsistentMap{Values: snapshot.Data, Deleted: crdt.NewGrowSet(snapshot.Deleted...)}

	merge := crdt.MergeMap(local, remote)
	if err := s.store.SaveIncidents(ctx, s.sku, merge.Resolved); err != nil {
		return fmt.Errorf("save resolved incidents: %w", err)
	}
	result.IncidentsApplied = len(merge.Local.Values) + len(merge.Local.Deleted)

	for _, id := range merge.Remote.Values {
		id := id
		env := merge.Resolved.Values[id]
		if env == nil {
			continue
		}
		_, knownRemote := snapshot.Data[id]
		kind := storage.OutboundAddIncident
		if knownRemote {
			kind = storage.OutboundUpdateIncident
		}
		if err := s.pushOrQueue(ctx, kind, id, env, func() error {
			if knownRemote {
				return s.client.UpdateIncident(ctx, s.sku, env)
			}
			return s.client.AddIncident(ctx, s.sku, env)
		}); err != nil {
			return err
		}
		result.IncidentsPushed++
	}
	for _, id := range merge.Remote.Deleted {
		id := id
		if err := s.pushOrQueue(ctx, storage.OutboundRemoveIncident, id, nil, func() error {
			return s.client.RemoveIncident(ctx, s.sku, id)
		}); err != nil {
			return err
		}
		result.IncidentsPushed++
	}
	return nil
}

func (s *Service) reconcileScratchpads(ctx context.Context, snapshot *api.ShareInfo, result *ReconcileResult) error {
	local, err := s.store.LoadScratchpads(ctx, s.sku)
	if err != nil {
		return fmt.Errorf("load local scratchpads: %w", err)
	}
	remote := &crdt.ConsistentMap{Values: snapshot.Scratchpads, Deleted: crdt.NewGrowSet()}

	merge := crdt.MergeMap(local, remote)
	if err := s.store.SaveScratchpads(ctx, s.sku, merge.Resolved); err != nil {
		return fmt.Errorf("save resolved scratchpads: %w", err)
	}
	result.ScratchpadsApplied = len(merge.Local.Values)

	for _, id := range merge.Remote.Values {
		id := id
		env := merge.Resolved.Values[id]
		if env == nil {
			continue
		}
		if err := s.pushOrQueue(ctx, storage.OutboundScratchpadUpdate, id, env, func() error {
			return s.sendScratchpad(id, env)
		}); err != nil {
			return err
		}
	}
	return nil
}
