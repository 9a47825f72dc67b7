// Package runctx implements the run context: the view of
// a trajectory handed to the user's run function for a single index.
package runctx

import (
	"fmt"

	"github.com/trajexplore/trajexplore/errs"
	"github.com/trajexplore/trajexplore/leaf"
	"github.com/trajexplore/trajexplore/trajectory"
	"github.com/trajexplore/trajexplore/tree"
)

// Context is the trajectory view passed to a run function: explored
// parameters advertise range[Index] through their normal Resolve path,
// names added during the run are rewritten under the run's subtree, and
// attempts to add config/parameters are rejected.
type Context struct {
	*trajectory.Trajectory
	Index int
}

// New pins traj to run idx and wraps it as a run context. traj should
// already have had StartRunPhase called; New itself
// does not check this, matching ViewForRun's cheap-copy contract.
func New(traj *trajectory.Trajectory, idx int) *Context {
	return &Context{Trajectory: traj.ViewForRun(idx), Index: idx}
}

// Repin retargets an existing context at a different run index, reusing
// the worker's trajectory view instead of building a fresh one. Used by
// pooled workers in freeze-input mode, where each worker receives its
// inputs once and only the index varies between runs.
func (c *Context) Repin(idx int) {
	c.Index = idx
	c.PinRun(idx)
}

// AddParameter rejects any attempt to add config or parameters during
// a run. The trajectory's own pre-run-only gate already refuses this
// once StartRunPhase has run; this check gives the boundary the user
// function actually calls through its own error message.
func (c *Context) AddParameter(branch trajectory.Branch, name string, p leaf.Parameter) error {
	if branch == trajectory.BranchConfig || branch == trajectory.BranchParameters {
		return fmt.Errorf("%w: run context cannot add %s", errs.ErrSchema, branch)
	}
	return c.Trajectory.AddParameter(branch, name, p)
}

// RunSubtreePaths returns the full dotted path of every result and
// derived-parameter leaf produced so far under this run's subtree, for
// the environment to persist as a single atomic unit at run end.
func (c *Context) RunSubtreePaths() []string {
	var out []string
	runName := trajectory.CanonicalRunName(c.Index)
	for _, root := range []*tree.Group{c.Results(), c.DerivedParameters()} {
		runs, ok := root.Child("runs")
		if !ok {
			continue
		}
		runsGroup, ok := tree.Unwrap(runs).(*tree.Group)
		if !ok {
			continue
		}
		runNode, ok := runsGroup.Child(runName)
		if !ok {
			continue
		}
		runGroup, ok := tree.Unwrap(runNode).(*tree.Group)
		if !ok {
			continue
		}
		for _, l := range runGroup.IterLeaves(nil) {
			out = append(out, l.FullName())
		}
	}
	return out
}

// Discard drops this run's in-memory subtree without persisting it.
func (c *Context) Discard() {
	runName := trajectory.CanonicalRunName(c.Index)
	for _, root := range []*tree.Group{c.Results(), c.DerivedParameters()} {
		runs, ok := root.Child("runs")
		if !ok {
			continue
		}
		runsGroup, ok := tree.Unwrap(runs).(*tree.Group)
		if !ok {
			continue
		}
		runsGroup.RemoveChild(runName, true)
	}
}
