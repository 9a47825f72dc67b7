package naming

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trajexplore/trajexplore/errs"
	"github.com/trajexplore/trajexplore/leaf"
	"github.com/trajexplore/trajexplore/tree"
)

func buildTestTree(t *testing.T) *tree.Group {
	t.Helper()
	root := tree.NewGroup("")
	params, err := root.AddGroup("parameters")
	require.NoError(t, err)
	sub, err := params.AddGroup("engine")
	require.NoError(t, err)

	x, err := leaf.NewScalarParameter("x", 1.0)
	require.NoError(t, err)
	require.NoError(t, sub.AddLeaf("x", x))

	y, err := leaf.NewScalarParameter("y", 2.0)
	require.NoError(t, err)
	require.NoError(t, params.AddLeaf("y", y))

	other, err := params.AddGroup("other")
	require.NoError(t, err)
	x2, err := leaf.NewScalarParameter("x", 9.0)
	require.NoError(t, err)
	require.NoError(t, other.AddLeaf("x", x2))

	res, err := root.AddGroup("results")
	require.NoError(t, err)
	runs, err := res.AddGroup("runs")
	require.NoError(t, err)
	run0, err := runs.AddGroup("run_00000000")
	require.NoError(t, err)
	r, err := leaf.NewScalarParameter("metric", 3.0)
	require.NoError(t, err)
	require.NoError(t, run0.AddLeaf("metric", r))

	return root
}

func TestSplit_ExpandsAliases(t *testing.T) {
	assert.Equal(t, []string{"parameters", "engine", "x"}, Split("par.engine.x"))
	assert.Equal(t, []string{"results"}, Split("res"))
	assert.Equal(t, []string{"a", "b"}, Split("a..b."))
}

func TestResolve_DirectPath(t *testing.T) {
	root := buildTestTree(t)
	n, err := Resolve(root, "parameters.engine.x", Options{})
	require.NoError(t, err)
	p, ok := n.(leaf.Parameter)
	require.True(t, ok)
	assert.Equal(t, "x", p.Name())
}

func TestResolve_DirectPathMissingWithoutShortcutsFails(t *testing.T) {
	root := buildTestTree(t)
	_, err := Resolve(root, "engine.x", Options{})
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestResolve_ShortcutFindsUniqueDescendant(t *testing.T) {
	root := buildTestTree(t)
	n, err := Resolve(root, "engine.x", Options{Shortcuts: true})
	require.NoError(t, err)
	p, ok := n.(leaf.Parameter)
	require.True(t, ok)
	assert.Equal(t, "x", p.Name())
}

func TestResolve_ShortcutAmbiguousFails(t *testing.T) {
	root := buildTestTree(t)
	_, err := Resolve(root, "x", Options{Shortcuts: true})
	assert.True(t, errors.Is(err, errs.ErrNotUnique))

	n, err := Resolve(root, "y", Options{Shortcuts: true})
	require.NoError(t, err)
	assert.NotNil(t, n)
}

func TestResolve_BackwardsSearch(t *testing.T) {
	root := buildTestTree(t)
	n, err := Resolve(root, "engine.x", Options{Backwards: true})
	require.NoError(t, err)
	p, ok := n.(leaf.Parameter)
	require.True(t, ok)
	assert.Equal(t, "x", p.Name())
}

func TestResolve_FastAccessUnwrapsScalar(t *testing.T) {
	root := buildTestTree(t)
	v, err := Resolve(root, "parameters.engine.x", Options{FastAccess: true})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}

func TestResolve_PinnedRunHidesOtherRuns(t *testing.T) {
	root := buildTestTree(t)
	_, err := Resolve(root, "results.runs.run_00000000.metric", Options{PinnedRun: 1})
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	n, err := Resolve(root, "results.runs.run_00000000.metric", Options{PinnedRun: 0})
	require.NoError(t, err)
	assert.NotNil(t, n)

	n, err = Resolve(root, "results.runs.run_00000000.metric", Options{PinnedRun: NoPin})
	require.NoError(t, err)
	assert.NotNil(t, n)
}

func TestVisibleUnderRun(t *testing.T) {
	assert.True(t, VisibleUnderRun("results.runs.run_00000001.x", NoPin))
	assert.True(t, VisibleUnderRun("results.runs.run_00000001.x", 1))
	assert.False(t, VisibleUnderRun("results.runs.run_00000001.x", 2))
	assert.True(t, VisibleUnderRun("results.runs.run_ALL.x", 2))
	assert.True(t, VisibleUnderRun("results.runs.run_set_00001.x", 2))
}

func TestResolve_RunShorthandTokens(t *testing.T) {
	root := buildTestTree(t)

	n, err := Resolve(root, "results.runs.r_0.metric", Options{PinnedRun: NoPin})
	require.NoError(t, err)
	assert.NotNil(t, n)

	n, err = Resolve(root, "results.runs.run_0.metric", Options{PinnedRun: NoPin})
	require.NoError(t, err)
	assert.NotNil(t, n)

	// crun names the pinned run's canonical subtree
	n, err = Resolve(root, "results.runs.crun.metric", Options{PinnedRun: 0})
	require.NoError(t, err)
	assert.NotNil(t, n)

	_, err = Resolve(root, "results.runs.crun.metric", Options{PinnedRun: 5})
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}
