package crdt

import (
	"sort"

	"github.com/fieldref/syncore/internal/models"
)

// ConsistentMap is a keyed collection of envelopes paired with a
// tombstone grow-set. An id present in Deleted must never appear in
// Values in any resolved state.
type ConsistentMap struct {
	Values  map[string]*models.Envelope
	Deleted GrowSet
}

// NewConsistentMap returns an empty map.
func NewConsistentMap() *ConsistentMap {
	return &ConsistentMap{Values: map[string]*models.Envelope{}, Deleted: NewGrowSet()}
}

// Side is the set of ids a three-way merge asks one replica to apply
// (Values to upsert, Deleted to hard-delete).
type Side struct {
	Values  []string
	Deleted []string
}

// ConsistentMapMergeResult is the full three-way merge output: the
// canonical resolved state plus the two push directions.
type ConsistentMapMergeResult struct {
	Resolved *ConsistentMap
	Local    Side // apply to local store
	Remote   Side // push to / notify remote
}

// MergeMap runs the three-way merge described for the consistent map:
// partition ids, merge shared envelopes field-by-field, union the
// tombstone sets, then apply tombstone dominance.
func MergeMap(local, remote *ConsistentMap) ConsistentMapMergeResult {
	if local == nil {
		local = NewConsistentMap()
	}
	if remote == nil {
		remote = NewConsistentMap()
	}

	resolvedValues := map[string]*models.Envelope{}
	var remotePushValues, localPushValues []string

	shared := map[string]bool{}
	for id := range local.Values {
		if _, ok := remote.Values[id]; ok {
			shared[id] = true
		}
	}

	for id, env := range local.Values {
		if _, inRemote := remote.Values[id]; !inRemote {
			resolvedValues[id] = env.Clone()
			remotePushValues = append(remotePushValues, id) // LO: remote lacks it
		}
	}
	for id, env := range remote.Values {
		if _, inLocal := local.Values[id]; !inLocal {
			resolvedValues[id] = env.Clone()
			localPushValues = append(localPushValues, id) // RO: local lacks it
		}
	}
	for id := range shared {
		m := MergeLWW(local.Values[id], remote.Values[id])
		resolvedValues[id] = m.Resolved
		if len(m.Rejected) > 0 {
			remotePushValues = append(remotePushValues, id)
		}
		if len(m.Changed) > 0 {
			localPushValues = append(localPushValues, id)
		}
	}

	deletedMerge := MergeGrowSet(local.Deleted, remote.Deleted)

	// Tombstone dominance: remove every tombstoned id from resolved
	// values regardless of envelope state, permanently.
	for id := range deletedMerge.Resolved {
		delete(resolvedValues, id)
	}
	remotePushValues = filterOut(remotePushValues, deletedMerge.Resolved)
	localPushValues = filterOut(localPushValues, deletedMerge.Resolved)

	sort.Strings(remotePushValues)
	sort.Strings(localPushValues)
	localDeleted := append([]string{}, deletedMerge.LocalOnly...)
	remoteDeleted := append([]string{}, deletedMerge.RemoteOnly...)
	sort.Strings(localDeleted)
	sort.Strings(remoteDeleted)

	return ConsistentMapMergeResult{
		Resolved: &ConsistentMap{Values: resolvedValues, Deleted: deletedMerge.Resolved},
		Local:    Side{Values: localPushValues, Deleted: localDeleted},
		Remote:   Side{Values: remotePushValues, Deleted: remoteDeleted},
	}
}

func filterOut(ids []string, tombstoned GrowSet) []string {
	if len(tombstoned) == 0 {
		return ids
	}
	out := ids[:0:0]
	for _, id := range ids {
		if !tombstoned.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}
