package runctx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trajexplore/trajexplore/errs"
	"github.com/trajexplore/trajexplore/leaf"
	"github.com/trajexplore/trajexplore/naming"
	"github.com/trajexplore/trajexplore/trajectory"
)

func exploredTraj(t *testing.T) *trajectory.Trajectory {
	t.Helper()
	traj := trajectory.New("ctx")
	x, err := leaf.NewScalarParameter("x", 0.0)
	require.NoError(t, err)
	require.NoError(t, traj.AddParameter(trajectory.BranchParameters, "x", x))
	require.NoError(t, traj.Explore(map[string][]any{"parameters.x": {1.0, 2.0, 3.0}}))
	require.NoError(t, traj.StartRunPhase())
	return traj
}

func TestNew_PinsRunAndResolvesRangeValue(t *testing.T) {
	traj := exploredTraj(t)
	ctx := New(traj, 1)
	assert.Equal(t, 1, ctx.Index)

	v, err := ctx.Resolve("parameters.x", naming.Options{FastAccess: true})
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)
}

func TestContext_AddParameterRejected(t *testing.T) {
	traj := exploredTraj(t)
	ctx := New(traj, 0)

	p, err := leaf.NewScalarParameter("extra", 1.0)
	require.NoError(t, err)
	err = ctx.AddParameter(trajectory.BranchParameters, "extra", p)
	assert.True(t, errors.Is(err, errs.ErrSchema))

	err = ctx.AddParameter(trajectory.BranchConfig, "extra", p)
	assert.True(t, errors.Is(err, errs.ErrSchema))
}

func TestContext_RunSubtreePathsAndDiscard(t *testing.T) {
	traj := exploredTraj(t)
	ctx := New(traj, 0)

	_, err := ctx.AddResult("square", leaf.Item{Value: 1.0})
	require.NoError(t, err)

	paths := ctx.RunSubtreePaths()
	require.Len(t, paths, 1)
	assert.Contains(t, paths[0], "run_00000000")
	assert.Contains(t, paths[0], "square")

	ctx.Discard()
	assert.Empty(t, ctx.RunSubtreePaths())
}
