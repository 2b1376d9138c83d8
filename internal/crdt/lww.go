// Package crdt implements the conflict-free merge primitives the rest
// of the module builds on: a per-field last-writer-wins envelope
// merge, a grow-only tombstone set, and a consistent map that
// composes the two into a three-way mergeable keyed collection.
package crdt

import (
	"sort"

	"github.com/fieldref/syncore/internal/models"
)

// LWWMergeResult is the outcome of merging two envelopes for the same
// id: the resolved envelope plus which keys changed in favor of the
// remote side and which were rejected in favor of the local side.
type LWWMergeResult struct {
	Resolved *models.Envelope
	Changed  []string
	Rejected []string
}

// MergeLWW merges local and remote envelopes for the same record id,
// field by field. Either side may be nil.
func MergeLWW(local, remote *models.Envelope) LWWMergeResult {
	if local == nil && remote == nil {
		return LWWMergeResult{Resolved: nil}
	}
	if remote == nil {
		return LWWMergeResult{Resolved: local.Clone()}
	}
	if local == nil {
		return LWWMergeResult{Resolved: remote.Clone(), Changed: sortedKeys(remote.Fields)}
	}

	resolved := &models.Envelope{
		Immutable:   mergeImmutable(local.Immutable, remote.Immutable),
		Fields:      map[string]any{},
		Consistency: map[string]*models.FieldMeta{},
	}

	var changed, rejected []string

	keys := unionKeys(local.Fields, remote.Fields)
	for _, k := range keys {
		lMeta := local.Consistency[k]
		rMeta := remote.Consistency[k]
		lCount, rCount := metaCount(lMeta), metaCount(rMeta)

		switch {
		case lMeta == nil && rMeta == nil:
			continue
		case lMeta == nil:
			resolved.Fields[k] = remote.Fields[k]
			resolved.Consistency[k] = cloneMeta(rMeta)
			changed = append(changed, k)
		case rMeta == nil:
			resolved.Fields[k] = local.Fields[k]
			resolved.Consistency[k] = cloneMeta(lMeta)
		case lCount > rCount:
			resolved.Fields[k] = local.Fields[k]
			resolved.Consistency[k] = cloneMeta(lMeta)
			if remoteHasUnseenHistory(lMeta, rMeta) {
				rejected = append(rejected, k)
			}
		case lCount < rCount:
			resolved.Fields[k] = remote.Fields[k]
			resolved.Consistency[k] = cloneMeta(rMeta)
			changed = append(changed, k)
		default: // lCount == rCount
			if models.ValuesEqual(local.Fields[k], remote.Fields[k]) {
				resolved.Fields[k] = local.Fields[k]
				resolved.Consistency[k] = cloneMeta(lMeta)
				continue
			}
			if rMeta.Peer > lMeta.Peer {
				resolved.Fields[k] = remote.Fields[k]
				resolved.Consistency[k] = cloneMeta(rMeta)
				changed = append(changed, k)
			} else {
				resolved.Fields[k] = local.Fields[k]
				resolved.Consistency[k] = cloneMeta(lMeta)
				rejected = append(rejected, k)
			}
		}
	}

	sort.Strings(changed)
	sort.Strings(rejected)
	return LWWMergeResult{Resolved: resolved, Changed: changed, Rejected: rejected}
}

// remoteHasUnseenHistory reports whether remote recorded an edit (via
// its history) that local's history for the same field does not
// contain, used only to flag the rejection for observability — the
// resolved value is unaffected either way since local already won on
// count.
func remoteHasUnseenHistory(lMeta, rMeta *models.FieldMeta) bool {
	if len(rMeta.History) == 0 {
		return false
	}
	if len(rMeta.History) > len(lMeta.History) {
		return true
	}
	for i, h := range rMeta.History {
		if i >= len(lMeta.History) {
			return true
		}
		if lMeta.History[i].Peer != h.Peer {
			return true
		}
	}
	return false
}

func metaCount(m *models.FieldMeta) int64 {
	if m == nil {
		return -1
	}
	return int64(m.Count)
}

func cloneMeta(m *models.FieldMeta) *models.FieldMeta {
	if m == nil {
		return nil
	}
	history := make([]models.HistoryEntry, len(m.History))
	copy(history, m.History)
	return &models.FieldMeta{Count: m.Count, Peer: m.Peer, History: history}
}

func mergeImmutable(local, remote map[string]any) map[string]any {
	out := make(map[string]any, len(local)+len(remote))
	for k, v := range local {
		out[k] = v
	}
	for k, v := range remote {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

func unionKeys(a, b map[string]any) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var keys []string
	for k := range a {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for k := range b {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
