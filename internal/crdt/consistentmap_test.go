package crdt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldref/syncore/internal/crdt"
	"github.com/fieldref/syncore/internal/models"
)

func basicIncidentEnvelope(id, peer string) *models.Envelope {
	return models.NewEnvelope(
		map[string]any{"id": id, "eventSku": "RE-VRC-24-0001"},
		map[string]any{"notes": "", "rules": []string{}},
		peer,
	)
}

// Scenario A: local add then remote delete wins nothing back.
func TestMergeMap_ScenarioA_DeleteWins(t *testing.T) {
	local := crdt.NewConsistentMap()
	local.Values["i1"] = basicIncidentEnvelope("i1", "P")

	remote := crdt.NewConsistentMap()
	remote.Deleted.Add("i1")

	r := crdt.MergeMap(local, remote)
	assert.True(t, r.Resolved.Deleted.Contains("i1"))
	assert.NotContains(t, r.Resolved.Values, "i1")
	assert.Contains(t, r.Local.Deleted, "i1")
	assert.Empty(t, r.Local.Values)
}

func TestMergeMap_TombstonePermanence(t *testing.T) {
	local := crdt.NewConsistentMap()
	local.Deleted.Add("i1")

	remote := crdt.NewConsistentMap()
	env := basicIncidentEnvelope("i1", "Q")
	env.Update("notes", "resurrected", "Q")
	remote.Values["i1"] = env

	r := crdt.MergeMap(local, remote)
	assert.NotContains(t, r.Resolved.Values, "i1")
	assert.True(t, r.Resolved.Deleted.Contains("i1"))
}

func TestMergeMap_Idempotent(t *testing.T) {
	m := crdt.NewConsistentMap()
	m.Values["i1"] = basicIncidentEnvelope("i1", "P")
	m.Deleted.Add("i2")

	r := crdt.MergeMap(m, m)
	require.Contains(t, r.Resolved.Values, "i1")
	assert.True(t, r.Resolved.Deleted.Contains("i2"))
	assert.Empty(t, r.Local.Values)
	assert.Empty(t, r.Remote.Values)
}

func TestMergeMap_Commutative(t *testing.T) {
	local := crdt.NewConsistentMap()
	local.Values["i1"] = basicIncidentEnvelope("i1", "P")

	remote := crdt.NewConsistentMap()
	remote.Values["i2"] = basicIncidentEnvelope("i2", "Q")

	ab := crdt.MergeMap(local, remote)
	ba := crdt.MergeMap(remote, local)
	assert.Equal(t, len(ab.Resolved.Values), len(ba.Resolved.Values))
	assert.Contains(t, ab.Resolved.Values, "i1")
	assert.Contains(t, ba.Resolved.Values, "i1")
}

// Driving property: applying a round's local/remote outputs and
// merging again yields no further pushes.
func TestMergeMap_Driving(t *testing.T) {
	local := crdt.NewConsistentMap()
	local.Values["i1"] = basicIncidentEnvelope("i1", "P")

	remote := crdt.NewConsistentMap()
	remote.Values["i2"] = basicIncidentEnvelope("i2", "Q")

	r := crdt.MergeMap(local, remote)

	for _, id := range r.Local.Values {
		local.Values[id] = remote.Values[id].Clone()
	}
	for _, id := range r.Remote.Values {
		remote.Values[id] = local.Values[id].Clone()
	}

	r2 := crdt.MergeMap(local, remote)
	assert.Empty(t, r2.Local.Values)
	assert.Empty(t, r2.Remote.Values)
	assert.Empty(t, r2.Local.Deleted)
	assert.Empty(t, r2.Remote.Deleted)
}
