package cli

import (
	"fmt"

	"github.com/trajexplore/trajexplore/leaf"
	"github.com/trajexplore/trajexplore/naming"
	"github.com/trajexplore/trajexplore/runctx"
	"github.com/trajexplore/trajexplore/trajectory"
)

// seedDemoTrajectory installs a single explored scalar parameter "x" on
// a freshly created trajectory, standing in for a user's own setup
// script. Library consumers wire environment.New against
// their own trajectory and run/postproc functions directly; run/resume
// exercise this demo so the subcommands have something to drive end to end.
func seedDemoTrajectory(name string) (*trajectory.Trajectory, error) {
	traj := trajectory.New(name)
	x, err := leaf.NewScalarParameter("x", 0.0)
	if err != nil {
		return nil, err
	}
	if err := traj.AddParameter(trajectory.BranchParameters, "x", x); err != nil {
		return nil, err
	}
	if err := traj.Explore(map[string][]any{"parameters.x": {0.0, 1.0, 2.0, 3.0, 4.0}}); err != nil {
		return nil, err
	}
	return traj, nil
}

// demoRunFunc computes x*x for the run's pinned value of x and stores it
// as the run's result, the reference run function for the run/resume
// subcommands.
func demoRunFunc(ctx *runctx.Context) error {
	v, err := ctx.Resolve("x", naming.Options{Shortcuts: true, FastAccess: true})
	if err != nil {
		return err
	}
	x, ok := v.(float64)
	if !ok {
		return fmt.Errorf("cli: parameters.x resolved to %T, want float64", v)
	}
	_, err = ctx.AddResult("square", leaf.Item{Value: x * x})
	return err
}

// demoPostprocFunc reports which run indices this invocation completed,
// the reference post-processing function.
func demoPostprocFunc(traj *trajectory.Trajectory, completed []int) error {
	fmt.Printf("post-processing %d run(s) of %s: %v\n", len(completed), traj.Name, completed)
	return nil
}
