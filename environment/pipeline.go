package environment

import (
	"fmt"

	"github.com/trajexplore/trajexplore/errs"
	"github.com/trajexplore/trajexplore/runctx"
	"github.com/trajexplore/trajexplore/trajectory"
)

// RunSpec bundles a run function with the extra arguments it is invoked
// with at every index.
type RunSpec struct {
	Fn   func(rc *runctx.Context, args ...any) error
	Args []any
}

// PostprocSpec bundles a post-processing function with its extra
// arguments. A zero value means no post-processing.
type PostprocSpec struct {
	Fn   func(traj *trajectory.Trajectory, completed []int, args ...any) error
	Args []any
}

// PipelineFunc bundles pre-processing, run choice and post-processing
// under one environment-managed call: it receives the trajectory before
// the run phase starts (add parameters, install the exploration) and
// returns the specs Run dispatches with.
type PipelineFunc func(traj *trajectory.Trajectory) (RunSpec, PostprocSpec, error)

// RunPipeline invokes pipeline against the environment's trajectory,
// then enters the run phase with the returned specs.
func (e *Environment) RunPipeline(pipeline PipelineFunc) (int, error) {
	runSpec, ppSpec, err := pipeline(e.traj)
	if err != nil {
		return ExitFailure, err
	}
	if runSpec.Fn == nil {
		return ExitFailure, fmt.Errorf("%w: pipeline returned no run function", errs.ErrConfigError)
	}
	runFn := func(rc *runctx.Context) error {
		return runSpec.Fn(rc, runSpec.Args...)
	}
	var postprocFn PostprocFunc
	if ppSpec.Fn != nil {
		postprocFn = func(traj *trajectory.Trajectory, completed []int) error {
			return ppSpec.Fn(traj, completed, ppSpec.Args...)
		}
	}
	return e.Run(runFn, postprocFn)
}
