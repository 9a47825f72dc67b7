package environment

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/trajexplore/trajexplore/common"
	"github.com/trajexplore/trajexplore/errs"
	"github.com/trajexplore/trajexplore/runctx"
	"github.com/trajexplore/trajexplore/storage"
	"github.com/trajexplore/trajexplore/trajectory"
)

// RunFunc is the user run function, invoked once per run index with a
// context pinned to that index's parameter values.
type RunFunc func(ctx *runctx.Context) error

// PostprocFunc is the user post-processing function, invoked with the
// run indices this invocation of Run completed. It may call Expand on
// traj to schedule further runs.
type PostprocFunc func(traj *trajectory.Trajectory, completed []int) error

// indexer hands out run indices 0..total-1 exactly once each, skipping
// any index already marked complete (resume).
type indexer struct {
	mu     sync.Mutex
	cursor int
	total  int
	skip   map[int]bool
}

func newIndexer(total int, skip map[int]bool) *indexer {
	return newIndexerFrom(0, total, skip)
}

// newIndexerFrom is newIndexer starting at an arbitrary cursor, used by
// Run's post-processing-expand loop to dispatch only the
// newly appended tail of a batch instead of redispatching indices an
// earlier batch already completed.
func newIndexerFrom(start, total int, skip map[int]bool) *indexer {
	return &indexer{cursor: start, total: total, skip: skip}
}

func (ix *indexer) next() (int, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for ix.cursor < ix.total {
		idx := ix.cursor
		ix.cursor++
		if ix.skip[idx] {
			continue
		}
		return idx, true
	}
	return 0, false
}

// runOne drives a single run index through DISPATCHED -> RUNNING ->
// {STORED, FAILED}, persisting its subtree through e.writer on success
// and discarding it on failure.
// rc may be a reusable per-worker context (freeze-input mode); nil
// builds a fresh one for this index.
func (e *Environment) runOne(idx int, workerID string, rc *runctx.Context) (err error) {
	e.state.register(idx)
	if err := e.state.transition(idx, RunDispatched, workerID, ""); err != nil {
		return err
	}
	if rc == nil {
		rc = runctx.New(e.traj, idx)
	} else {
		rc.Repin(idx)
	}
	if err := e.state.transition(idx, RunRunning, workerID, ""); err != nil {
		return err
	}

	err = e.runWithTimeout(rc, idx)

	if err != nil {
		rc.Discard()
		reason := err.Error()
		_ = e.state.transition(idx, RunFailed, workerID, reason)
		if e.cfg.FailFast && e.stopDispatch != nil {
			e.stopDispatch()
		}
		return err
	}

	for _, path := range rc.RunSubtreePaths() {
		if err := e.writer.StoreItem(e.traj, path, storage.StoreAppend); err != nil {
			rc.Discard()
			_ = e.state.transition(idx, RunFailed, workerID, err.Error())
			// Storage errors are never caught-and-continued: unlike a
			// run-function failure, this always
			// stops dispatch, independent of fail_fast.
			if e.stopDispatch != nil {
				e.stopDispatch()
			}
			return err
		}
	}
	if err := e.state.transition(idx, RunStored, workerID, ""); err != nil {
		return err
	}
	if err := writeResumeMarker(e.cfg.ResumeDir, idx); err != nil {
		e.logger.WithError(err).Warn("failed to write resume marker")
	}
	return nil
}

// runWithTimeout invokes e.runFn for idx, recovering panics and enforcing
// cfg.RunTimeout when it is set. A run function that has not returned by the deadline
// fails the run with ErrRunTimeout; its goroutine is abandoned since
// RunFunc carries no cancellation signal to deliver to user code.
func (e *Environment) runWithTimeout(rc *runctx.Context, idx int) error {
	result := make(chan error, 1)
	go func() {
		var runErr error
		func() {
			defer func() {
				if r := recover(); r != nil {
					buf := make([]byte, 4096)
					n := runtime.Stack(buf, false)
					e.logger.WithFields(map[string]interface{}{
						"run": idx, "panic": fmt.Sprintf("%v", r), "stacktrace": string(buf[:n]),
					}).Error("run function panicked")
					runErr = fmt.Errorf("run %d panicked: %v", idx, r)
				}
			}()
			runErr = e.runFn(rc)
		}()
		result <- runErr
	}()

	if e.cfg.RunTimeout <= 0 {
		return <-result
	}
	select {
	case err := <-result:
		return err
	case <-time.After(e.cfg.RunTimeout):
		return fmt.Errorf("%w: run %d exceeded %s", errs.ErrRunTimeout, idx, e.cfg.RunTimeout)
	}
}

// runPool runs a fixed set of persistent worker goroutines that each
// loop over the indexer until it is exhausted or stop fires.
func (e *Environment) runPool(ctx context.Context, ix *indexer, stop <-chan struct{}) error {
	n := e.workerCount()
	var wg sync.WaitGroup
	errs := make(chan error, 1)
	for w := 0; w < n; w++ {
		workerID := fmt.Sprintf("pool-%d", w)
		wg.Add(1)
		go func(workerID string) {
			defer wg.Done()
			defer common.LogPanic(e.logger.WithField("worker", workerID))
			var frozen *runctx.Context
			if e.cfg.FreezeInput {
				frozen = runctx.New(e.traj, 0)
			}
			for {
				select {
				case <-stop:
					return
				default:
				}
				if !e.admission.admit(ctx, stop) {
					return
				}
				idx, ok := ix.next()
				if !ok {
					e.admission.release()
					return
				}
				err := e.runOne(idx, workerID, frozen)
				e.admission.release()
				if err != nil {
					select {
					case errs <- err:
					default:
					}
					continue
				}
				e.onRunComplete(idx)
			}
		}(workerID)
	}
	wg.Wait()
	close(errs)
	var first error
	for err := range errs {
		if first == nil {
			first = err
		}
	}
	return first
}

// runFresh spawns one goroutine per dispatched index with no persistent
// worker identity, modeling the fresh-process-per-run mode; a true
// re-exec per run has no Go-idiomatic equivalent for an
// in-process user callable, so this is the closest honest model:
// concurrency is still bounded, but no worker loops or is reused across
// runs.
//
// Errors are collected on a plain WaitGroup rather than errgroup.Group:
// errgroup cancels its shared context on the first non-nil return, which
// would abort dispatch of every remaining index on any run failure,
// but a single failed run must not sink the remaining indices. Only the
// writer/storage path and an explicit fail_fast configuration are
// allowed to halt dispatch (via e.stopDispatch, same as runPool).
func (e *Environment) runFresh(ctx context.Context, ix *indexer, stop <-chan struct{}) error {
	n := e.workerCount()
	sem := semaphore.NewWeighted(int64(n))
	var wg sync.WaitGroup
	errCh := make(chan error, 1)
	recordErr := func(err error) {
		select {
		case errCh <- err:
		default:
		}
	}

dispatch:
	for {
		select {
		case <-stop:
			break dispatch
		default:
		}
		idx, ok := ix.next()
		if !ok {
			break dispatch
		}
		if !e.admission.admit(ctx, stop) {
			break dispatch
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			e.admission.release()
			break dispatch
		}
		workerID := uuid.NewString()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			defer e.admission.release()
			defer common.LogPanic(e.logger.WithField("worker", workerID))
			if err := e.runOne(idx, workerID, nil); err != nil {
				recordErr(err)
				return
			}
			e.onRunComplete(idx)
		}()
	}
	wg.Wait()
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func (e *Environment) workerCount() int {
	if e.cfg.WorkerCount > 0 {
		return e.cfg.WorkerCount
	}
	return runtime.NumCPU()
}
