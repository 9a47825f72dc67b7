// Package environment drives a trajectory's exploration:
// it dispatches one run per explored index through a worker pool,
// persists each run's subtree as it completes, runs post-processing,
// and exits gracefully on interrupt. The run state machine lives in
// state.go, resume bookkeeping in resume.go.
package environment

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/trajexplore/trajexplore/common"
	"github.com/trajexplore/trajexplore/config"
	"github.com/trajexplore/trajexplore/storage"
	"github.com/trajexplore/trajexplore/storagewrap"
	"github.com/trajexplore/trajexplore/trajectory"
)

// Exit codes returned by Run: 0 success, 1 generic failure, and a
// distinguished code for a graceful interrupt. A post-processing
// failure supersedes an otherwise-successful run.
const (
	ExitSuccess           = 0
	ExitFailure           = 1
	ExitGracefulInterrupt = 130 // 128 + SIGINT, the shell convention
)

// Environment is the constructed runner for one trajectory.
type Environment struct {
	cfg       config.EnvironmentConfig
	traj      *trajectory.Trajectory
	archive   *storage.Service
	writer    storagewrap.Writer
	logger    *common.ContextLogger
	state     *stateTracker
	admission *admission

	runFn      RunFunc
	postprocFn PostprocFunc

	// stopDispatch, when non-nil, closes Run's stop channel. Set each
	// time Run starts; used by runOne so that per-run errors abort the
	// experiment only when fail_fast is set, while storage errors
	// always do.
	stopDispatch func()

	completedMu sync.Mutex
	completed   []int
}

// New builds an Environment over traj, persisting through archive via
// the wrap mode cfg selects.
func New(cfg config.EnvironmentConfig, traj *trajectory.Trajectory, archive *storage.Service) (*Environment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	writer, err := storagewrap.New(cfg.WrapMode, archive, storagewrap.Options{
		QueueName: traj.Name,
		RedisURL:  cfg.RedisURL,
		AMQPURL:   cfg.AMQPURL,
	})
	if err != nil {
		return nil, fmt.Errorf("environment: build storage wrapper: %w", err)
	}
	return &Environment{
		cfg:       cfg,
		traj:      traj,
		archive:   archive,
		writer:    writer,
		logger:    common.ServiceLogger("environment"),
		state:     newStateTracker(archive, traj.Name),
		admission: newAdmission(cfg.CPUCap, cfg.MemCap, cfg.SwapCap),
	}, nil
}

// onRunComplete records idx as finished and, in immediate-postproc mode,
// invokes the post-processing function for it right away.
func (e *Environment) onRunComplete(idx int) {
	e.completedMu.Lock()
	e.completed = append(e.completed, idx)
	e.completedMu.Unlock()

	if e.cfg.ImmediatePostproc && e.postprocFn != nil {
		if err := e.postprocFn(e.traj, []int{idx}); err != nil {
			e.logger.WithField("run", idx).WithError(err).Error("immediate post-processing failed")
		}
	}
}

func (e *Environment) snapshotCompleted() []int {
	e.completedMu.Lock()
	defer e.completedMu.Unlock()
	out := make([]int, len(e.completed))
	copy(out, e.completed)
	return out
}

// Run dispatches every explored run index not already completed through the configured
// worker mode, persists results as they land, runs post-processing, and
// returns a process exit code. runFn must be non-nil; postprocFn may
// be nil when the caller has no post-processing step.
//
// The dispatch/postproc sequence runs in batches: a batch covers every
// index in [dispatchFrom, ExplorationLength()) at the time it starts.
// Once a
// batch's runs all settle, postprocFn is invoked with that batch's
// completed indices; if it expanded the trajectory (by calling Expand
// on the trajectory it is handed), ExplorationLength() grows past the batch's end and
// the loop dispatches a new batch over the newly appended tail and
// eventually re-invokes postprocFn. The loop ends once a batch leaves
// ExplorationLength() unchanged.
func (e *Environment) Run(runFn RunFunc, postprocFn PostprocFunc) (int, error) {
	e.runFn = runFn
	e.postprocFn = postprocFn

	if err := e.traj.StartRunPhase(); err != nil {
		return ExitFailure, err
	}

	skip, err := e.prepareResume()
	if err != nil {
		return ExitFailure, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	graceful := false
	var stopOnce sync.Once
	stopDispatch := func() { stopOnce.Do(func() { close(stop) }) }
	defer close(done)

	if e.cfg.GracefulExit {
		sigCh := make(chan os.Signal, 2)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			select {
			case <-sigCh:
				e.logger.Warn("interrupt received, draining in-flight runs before exit")
				graceful = true
				stopDispatch()
				select {
				case <-sigCh:
					e.logger.Error("second interrupt received, forcing immediate exit")
					os.Exit(ExitGracefulInterrupt)
				case <-done:
				}
			case <-done:
			}
		}()
	}
	e.stopDispatch = stopDispatch

	ctx := context.Background()
	var dispatchErr error
	dispatchFrom := 0

batches:
	for {
		total := e.traj.ExplorationLength()
		if total <= dispatchFrom || graceful {
			break
		}

		batchOffset := len(e.snapshotCompleted())
		ix := newIndexerFrom(dispatchFrom, total, skip)
		skip = nil // resume skip applies only to the first batch

		if e.cfg.Pool {
			dispatchErr = e.runPool(ctx, ix, stop)
		} else {
			dispatchErr = e.runFresh(ctx, ix, stop)
		}
		dispatchFrom = total

		if dispatchErr != nil || graceful {
			break batches
		}

		if !e.cfg.ImmediatePostproc && e.postprocFn != nil {
			batchCompleted := e.snapshotCompleted()[batchOffset:]
			if len(batchCompleted) > 0 {
				if err := e.postprocFn(e.traj, batchCompleted); err != nil {
					if writeErr := e.writer.StoreTrajectory(e.traj, storage.StoreAppend); writeErr != nil {
						e.logger.WithError(writeErr).Error("final store after postproc failure also failed")
					}
					return ExitFailure, fmt.Errorf("post-processing failed: %w", err)
				}
			}
		}

		if e.traj.ExplorationLength() <= dispatchFrom {
			break batches
		}
		e.logger.WithField("new_length", e.traj.ExplorationLength()).Info("post-processing expanded the trajectory, re-entering run phase")
	}

	if err := e.writer.StoreTrajectory(e.traj, storage.StoreAppend); err != nil {
		return ExitFailure, fmt.Errorf("final overview store failed: %w", err)
	}
	if err := e.writer.Close(); err != nil {
		e.logger.WithError(err).Warn("error closing storage wrapper")
	}

	if graceful {
		return ExitGracefulInterrupt, nil
	}
	if dispatchErr != nil {
		return ExitFailure, dispatchErr
	}
	return ExitSuccess, nil
}
