package crdt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fieldref/syncore/internal/crdt"
)

func TestMergeGrowSet_Union(t *testing.T) {
	local := crdt.NewGrowSet("a", "b")
	remote := crdt.NewGrowSet("b", "c")

	r := crdt.MergeGrowSet(local, remote)
	assert.True(t, r.Resolved.Contains("a"))
	assert.True(t, r.Resolved.Contains("b"))
	assert.True(t, r.Resolved.Contains("c"))
	assert.ElementsMatch(t, []string{"c"}, r.LocalOnly)
	assert.ElementsMatch(t, []string{"a"}, r.RemoteOnly)
}

func TestMergeGrowSet_Idempotent(t *testing.T) {
	s := crdt.NewGrowSet("a", "b")
	r := crdt.MergeGrowSet(s, s)
	assert.ElementsMatch(t, s.Ids(), r.Resolved.Ids())
	assert.Empty(t, r.LocalOnly)
	assert.Empty(t, r.RemoteOnly)
}

func TestMergeGrowSet_Commutative(t *testing.T) {
	local := crdt.NewGrowSet("a")
	remote := crdt.NewGrowSet("b")

	ab := crdt.MergeGrowSet(local, remote)
	ba := crdt.MergeGrowSet(remote, local)
	assert.ElementsMatch(t, ab.Resolved.Ids(), ba.Resolved.Ids())
}
