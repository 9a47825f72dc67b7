package environment

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trajexplore/trajexplore/config"
	"github.com/trajexplore/trajexplore/errs"
	"github.com/trajexplore/trajexplore/leaf"
	"github.com/trajexplore/trajexplore/naming"
	"github.com/trajexplore/trajexplore/runctx"
	"github.com/trajexplore/trajexplore/storage"
	"github.com/trajexplore/trajexplore/trajectory"
)

func squareTrajectory(t *testing.T, name string) *trajectory.Trajectory {
	t.Helper()
	traj := trajectory.New(name)
	x, err := leaf.NewScalarParameter("x", 0.0)
	require.NoError(t, err)
	require.NoError(t, traj.AddParameter(trajectory.BranchParameters, "x", x))
	require.NoError(t, traj.Explore(map[string][]any{"parameters.x": {1.0, 2.0, 3.0, 4.0}}))
	return traj
}

func squareRunFunc(ctx *runctx.Context) error {
	v, err := ctx.Resolve("x", naming.Options{Shortcuts: true, FastAccess: true})
	if err != nil {
		return err
	}
	x := v.(float64)
	_, err = ctx.AddResult("square", leaf.Item{Value: x * x})
	return err
}

func TestEnvironment_RunCompletesEveryIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	svc, err := storage.Open(path)
	require.NoError(t, err)
	defer svc.Finalize()

	traj := squareTrajectory(t, "sq")
	require.NoError(t, svc.StoreTrajectory(traj, storage.StoreInit))

	cfg := config.DefaultEnvironmentConfig()
	cfg.WorkerCount = 2
	cfg.GracefulExit = false

	var postprocMu sync.Mutex
	var postprocSeen []int

	env, err := New(cfg, traj, svc)
	require.NoError(t, err)

	code, err := env.Run(squareRunFunc, func(_ *trajectory.Trajectory, completed []int) error {
		postprocMu.Lock()
		postprocSeen = append(postprocSeen, completed...)
		postprocMu.Unlock()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, ExitSuccess, code)
	assert.ElementsMatch(t, []int{0, 1, 2, 3}, postprocSeen)

	ov, err := svc.Overview("sq")
	require.NoError(t, err)
	stored := 0
	for _, r := range ov.Runs {
		if r.Status == "STORED" {
			stored++
		}
	}
	assert.Equal(t, 4, stored)
}

func TestEnvironment_RunFreshModeCompletesEveryIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	svc, err := storage.Open(path)
	require.NoError(t, err)
	defer svc.Finalize()

	traj := squareTrajectory(t, "sq-fresh")
	require.NoError(t, svc.StoreTrajectory(traj, storage.StoreInit))

	cfg := config.DefaultEnvironmentConfig()
	cfg.WorkerCount = 3
	cfg.Pool = false
	cfg.GracefulExit = false

	env, err := New(cfg, traj, svc)
	require.NoError(t, err)

	code, err := env.Run(squareRunFunc, nil)
	require.NoError(t, err)
	assert.Equal(t, ExitSuccess, code)
}

func TestEnvironment_RunPropagatesRunFuncFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	svc, err := storage.Open(path)
	require.NoError(t, err)
	defer svc.Finalize()

	traj := squareTrajectory(t, "sq-fail")
	require.NoError(t, svc.StoreTrajectory(traj, storage.StoreInit))

	cfg := config.DefaultEnvironmentConfig()
	cfg.WorkerCount = 1
	cfg.GracefulExit = false

	env, err := New(cfg, traj, svc)
	require.NoError(t, err)

	boom := assert.AnError
	code, err := env.Run(func(ctx *runctx.Context) error {
		return boom
	}, nil)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, code)
}

func TestEnvironment_PostprocExpandReentersRunPhase(t *testing.T) {
	// N0=10; g expands by 3 once, then leaves the length alone.
	path := filepath.Join(t.TempDir(), "archive.db")
	svc, err := storage.Open(path)
	require.NoError(t, err)
	defer svc.Finalize()

	traj := trajectory.New("expand-postproc")
	x, err := leaf.NewScalarParameter("x", 0.0)
	require.NoError(t, err)
	require.NoError(t, traj.AddParameter(trajectory.BranchParameters, "x", x))
	initial := make([]any, 10)
	for i := range initial {
		initial[i] = float64(i)
	}
	require.NoError(t, traj.Explore(map[string][]any{"parameters.x": initial}))
	require.NoError(t, svc.StoreTrajectory(traj, storage.StoreInit))

	cfg := config.DefaultEnvironmentConfig()
	cfg.WorkerCount = 2
	cfg.GracefulExit = false

	env, err := New(cfg, traj, svc)
	require.NoError(t, err)

	expandedOnce := false
	var postprocCalls [][]int
	var mu sync.Mutex

	code, err := env.Run(squareRunFunc, func(tr *trajectory.Trajectory, completed []int) error {
		mu.Lock()
		postprocCalls = append(postprocCalls, append([]int(nil), completed...))
		mu.Unlock()
		if !expandedOnce {
			expandedOnce = true
			return tr.Expand(map[string][]any{"parameters.x": {11.0, 12.0, 13.0}})
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, ExitSuccess, code)
	assert.Equal(t, 13, traj.ExplorationLength())
	require.Len(t, postprocCalls, 2)
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, postprocCalls[0])
	assert.ElementsMatch(t, []int{10, 11, 12}, postprocCalls[1])

	ov, err := svc.Overview("expand-postproc")
	require.NoError(t, err)
	stored := 0
	for _, r := range ov.Runs {
		if r.Status == "STORED" {
			stored++
		}
	}
	assert.Equal(t, 13, stored)
}

func TestEnvironment_RunTimeoutFailsSlowRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	svc, err := storage.Open(path)
	require.NoError(t, err)
	defer svc.Finalize()

	traj := trajectory.New("sq-timeout")
	x, err := leaf.NewScalarParameter("x", 0.0)
	require.NoError(t, err)
	require.NoError(t, traj.AddParameter(trajectory.BranchParameters, "x", x))
	require.NoError(t, traj.Explore(map[string][]any{"parameters.x": {1.0}}))
	require.NoError(t, svc.StoreTrajectory(traj, storage.StoreInit))

	cfg := config.DefaultEnvironmentConfig()
	cfg.WorkerCount = 1
	cfg.GracefulExit = false
	cfg.RunTimeout = 10 * time.Millisecond

	env, err := New(cfg, traj, svc)
	require.NoError(t, err)

	code, err := env.Run(func(ctx *runctx.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrRunTimeout)
	assert.Equal(t, ExitFailure, code)

	ov, err := svc.Overview("sq-timeout")
	require.NoError(t, err)
	require.Len(t, ov.Runs, 1)
	assert.Equal(t, "FAILED", ov.Runs[0].Status)
	assert.Contains(t, ov.Runs[0].Reason, "timeout")
}

func TestEnvironment_DefaultContinuesPastRunFailure(t *testing.T) {
	// Per-run errors don't abort the experiment unless fail_fast is
	// set. A single worker means indices dispatch in
	// order, so a failure at index 1 must not prevent 2 and 3 from
	// running.
	path := filepath.Join(t.TempDir(), "archive.db")
	svc, err := storage.Open(path)
	require.NoError(t, err)
	defer svc.Finalize()

	traj := squareTrajectory(t, "sq-continue")
	require.NoError(t, svc.StoreTrajectory(traj, storage.StoreInit))

	cfg := config.DefaultEnvironmentConfig()
	cfg.WorkerCount = 1
	cfg.GracefulExit = false

	env, err := New(cfg, traj, svc)
	require.NoError(t, err)

	var seen []int
	var mu sync.Mutex
	code, err := env.Run(func(ctx *runctx.Context) error {
		mu.Lock()
		seen = append(seen, ctx.Index)
		mu.Unlock()
		if ctx.Index == 1 {
			return assert.AnError
		}
		return squareRunFunc(ctx)
	}, nil)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, code)
	assert.ElementsMatch(t, []int{0, 1, 2, 3}, seen)

	ov, err := svc.Overview("sq-continue")
	require.NoError(t, err)
	byIdx := map[int]string{}
	for _, r := range ov.Runs {
		byIdx[r.Index] = r.Status
	}
	assert.Equal(t, "FAILED", byIdx[1])
	assert.Equal(t, "STORED", byIdx[0])
	assert.Equal(t, "STORED", byIdx[2])
	assert.Equal(t, "STORED", byIdx[3])
}

func TestEnvironment_FailFastStopsDispatchAfterFirstFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	svc, err := storage.Open(path)
	require.NoError(t, err)
	defer svc.Finalize()

	traj := squareTrajectory(t, "sq-failfast")
	require.NoError(t, svc.StoreTrajectory(traj, storage.StoreInit))

	cfg := config.DefaultEnvironmentConfig()
	cfg.WorkerCount = 1
	cfg.GracefulExit = false
	cfg.FailFast = true

	env, err := New(cfg, traj, svc)
	require.NoError(t, err)

	var seen []int
	var mu sync.Mutex
	code, err := env.Run(func(ctx *runctx.Context) error {
		mu.Lock()
		seen = append(seen, ctx.Index)
		mu.Unlock()
		if ctx.Index == 1 {
			return assert.AnError
		}
		return squareRunFunc(ctx)
	}, nil)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, code)
	assert.ElementsMatch(t, []int{0, 1}, seen)
}

func TestEnvironment_ResumeSkipsCompletedIndices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	svc, err := storage.Open(path)
	require.NoError(t, err)
	defer svc.Finalize()

	traj := squareTrajectory(t, "sq-resume")
	require.NoError(t, svc.StoreTrajectory(traj, storage.StoreInit))
	require.NoError(t, svc.UpsertRunRow("sq-resume", storage.RunRow{Index: 0, Status: "STORED"}))
	require.NoError(t, svc.UpsertRunRow("sq-resume", storage.RunRow{Index: 1, Status: "STORED"}))

	cfg := config.DefaultEnvironmentConfig()
	cfg.WorkerCount = 1
	cfg.GracefulExit = false
	cfg.Resumable = true

	var seen []int
	var mu sync.Mutex

	env, err := New(cfg, traj, svc)
	require.NoError(t, err)

	code, err := env.Run(func(ctx *runctx.Context) error {
		mu.Lock()
		seen = append(seen, ctx.Index)
		mu.Unlock()
		return squareRunFunc(ctx)
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, ExitSuccess, code)
	assert.ElementsMatch(t, []int{2, 3}, seen)
}

func TestEnvironment_RunPipelineBundlesSpecs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	svc, err := storage.Open(path)
	require.NoError(t, err)
	defer svc.Finalize()

	traj := squareTrajectory(t, "pipe")
	require.NoError(t, svc.StoreTrajectory(traj, storage.StoreInit))

	cfg := config.DefaultEnvironmentConfig()
	cfg.GracefulExit = false

	env, err := New(cfg, traj, svc)
	require.NoError(t, err)

	var postprocMu sync.Mutex
	var postprocArgs []any
	var postprocSeen []int

	pipeline := func(tr *trajectory.Trajectory) (RunSpec, PostprocSpec, error) {
		require.Equal(t, 4, tr.ExplorationLength())
		run := RunSpec{
			Fn: func(rc *runctx.Context, args ...any) error {
				require.Equal(t, []any{"offset", 10.0}, args)
				return squareRunFunc(rc)
			},
			Args: []any{"offset", 10.0},
		}
		postproc := PostprocSpec{
			Fn: func(_ *trajectory.Trajectory, completed []int, args ...any) error {
				postprocMu.Lock()
				defer postprocMu.Unlock()
				postprocArgs = args
				postprocSeen = append(postprocSeen, completed...)
				return nil
			},
			Args: []any{"tag"},
		}
		return run, postproc, nil
	}

	code, err := env.RunPipeline(pipeline)
	require.NoError(t, err)
	assert.Equal(t, ExitSuccess, code)
	assert.Equal(t, []any{"tag"}, postprocArgs)
	assert.Len(t, postprocSeen, 4)
}

func TestEnvironment_RunPipelineWithoutRunFuncFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	svc, err := storage.Open(path)
	require.NoError(t, err)
	defer svc.Finalize()

	traj := squareTrajectory(t, "pipe-empty")
	env, err := New(config.DefaultEnvironmentConfig(), traj, svc)
	require.NoError(t, err)

	code, err := env.RunPipeline(func(_ *trajectory.Trajectory) (RunSpec, PostprocSpec, error) {
		return RunSpec{}, PostprocSpec{}, nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConfigError))
	assert.Equal(t, ExitFailure, code)
}

func TestEnvironment_FreezeInputReusesWorkerContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	svc, err := storage.Open(path)
	require.NoError(t, err)
	defer svc.Finalize()

	traj := squareTrajectory(t, "frozen")
	require.NoError(t, svc.StoreTrajectory(traj, storage.StoreInit))

	cfg := config.DefaultEnvironmentConfig()
	cfg.WorkerCount = 1
	cfg.FreezeInput = true
	cfg.GracefulExit = false

	env, err := New(cfg, traj, svc)
	require.NoError(t, err)

	code, err := env.Run(squareRunFunc, nil)
	require.NoError(t, err)
	assert.Equal(t, ExitSuccess, code)

	loaded, err := svc.LoadTrajectory("frozen", storage.LoadData)
	require.NoError(t, err)
	for k := 0; k < 4; k++ {
		v, err := loaded.Resolve("results.runs."+trajectory.CanonicalRunName(k)+".square", naming.Options{FastAccess: true})
		require.NoError(t, err)
		want := float64(k+1) * float64(k+1)
		assert.Equal(t, want, v)
	}
}
