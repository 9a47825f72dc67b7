package tree

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trajexplore/trajexplore/errs"
	"github.com/trajexplore/trajexplore/leaf"
)

func TestGroup_AddGroupCreatesSubgroupWithFullName(t *testing.T) {
	root := NewGroup("")
	sub, err := root.AddGroup("parameters")
	require.NoError(t, err)
	assert.Equal(t, "parameters", sub.FullName())

	nested, err := sub.AddGroup("sim")
	require.NoError(t, err)
	assert.Equal(t, "parameters.sim", nested.FullName())
}

func TestGroup_AddLeafSetsFullNameAndEnforcesUniqueness(t *testing.T) {
	g := NewGroup("parameters")
	p, err := leaf.NewScalarParameter("x", 1)
	require.NoError(t, err)
	require.NoError(t, g.AddLeaf("x", p))
	assert.Equal(t, "parameters.x", p.FullName())

	dup, _ := leaf.NewScalarParameter("x", 2)
	err = g.AddLeaf("x", dup)
	assert.True(t, errors.Is(err, errs.ErrSchema))
}

func TestGroup_IterLeavesRecursesThroughSubgroups(t *testing.T) {
	root := NewGroup("")
	params, _ := root.AddGroup("parameters")
	p1, _ := leaf.NewScalarParameter("a", 1)
	p2, _ := leaf.NewScalarParameter("b", 2)
	require.NoError(t, params.AddLeaf("a", p1))
	require.NoError(t, params.AddLeaf("b", p2))

	results, _ := root.AddGroup("results")
	r := leaf.NewResult("trial_0")
	require.NoError(t, results.AddLeaf("trial_0", r))

	leaves := root.IterLeaves(nil)
	assert.Len(t, leaves, 3)
}

func TestGroup_IterNodesAvoidsRevisitingLinkedNode(t *testing.T) {
	root := NewGroup("")
	a, _ := root.AddGroup("a")
	b, _ := root.AddGroup("b")
	require.NoError(t, b.AddLink("to_a", a))

	visits := 0
	root.IterNodes(true, func(n Node) bool {
		visits++
		return true
	})
	// a, b, b.to_a link itself are each visited exactly once; the link's
	// target (a) must not be descended into a second time via the link.
	assert.Equal(t, 3, visits)
}

func TestGroup_RemoveChildDetachesFromOrderAndMap(t *testing.T) {
	g := NewGroup("parameters")
	p, _ := leaf.NewScalarParameter("x", 1)
	require.NoError(t, g.AddLeaf("x", p))
	g.RemoveChild("x", true)

	_, ok := g.Child("x")
	assert.False(t, ok)
	assert.Empty(t, g.ChildNames())
}
