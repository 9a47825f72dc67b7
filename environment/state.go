package environment

import (
	"fmt"
	"sync"
	"time"

	"github.com/trajexplore/trajexplore/storage"
)

// RunState is one state of the per-run state machine:
// PENDING -> DISPATCHED -> RUNNING -> {STORED, FAILED, CANCELLED}.
type RunState string

const (
	RunPending    RunState = "PENDING"
	RunDispatched RunState = "DISPATCHED"
	RunRunning    RunState = "RUNNING"
	RunStored     RunState = "STORED"
	RunFailed     RunState = "FAILED"
	RunCancelled  RunState = "CANCELLED"
)

// IsTerminal reports whether no further transition is possible.
func (s RunState) IsTerminal() bool {
	return s == RunStored || s == RunFailed || s == RunCancelled
}

// validTransitions is the per-run lifecycle's allowed edges.
var validTransitions = map[RunState][]RunState{
	RunPending:    {RunDispatched, RunCancelled},
	RunDispatched: {RunRunning, RunFailed, RunCancelled},
	RunRunning:    {RunStored, RunFailed, RunCancelled},
}

func (s RunState) canTransitionTo(target RunState) bool {
	for _, valid := range validTransitions[s] {
		if valid == target {
			return true
		}
	}
	return false
}

// runStatus is one run's tracked state plus bookkeeping needed to write
// its RunRow on a terminal transition.
type runStatus struct {
	Index     int
	State     RunState
	WorkerID  string
	StartedAt time.Time
	Reason    string
}

// stateTracker holds every run's current state in memory and mirrors
// the DISPATCHED, RUNNING and terminal transitions into the archive's
// `runs` overview table.
type stateTracker struct {
	mu      sync.Mutex
	runs    map[int]*runStatus
	archive *storage.Service
	trajName string
}

func newStateTracker(archive *storage.Service, trajName string) *stateTracker {
	return &stateTracker{runs: make(map[int]*runStatus), archive: archive, trajName: trajName}
}

func (t *stateTracker) register(idx int) *runStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := &runStatus{Index: idx, State: RunPending}
	t.runs[idx] = st
	return st
}

func (t *stateTracker) transition(idx int, target RunState, workerID, reason string) error {
	t.mu.Lock()
	st, ok := t.runs[idx]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("environment: run %d was never registered", idx)
	}
	if !st.State.canTransitionTo(target) {
		cur := st.State
		t.mu.Unlock()
		return fmt.Errorf("environment: invalid run %d transition %s -> %s", idx, cur, target)
	}
	st.State = target
	if workerID != "" {
		st.WorkerID = workerID
	}
	if reason != "" {
		st.Reason = reason
	}
	if target == RunRunning {
		st.StartedAt = time.Now()
	}
	var wallTime time.Duration
	if target.IsTerminal() && !st.StartedAt.IsZero() {
		wallTime = time.Since(st.StartedAt)
	}
	row := storage.RunRow{Index: st.Index, Status: string(st.State), WallTime: wallTime, WorkerID: st.WorkerID, Reason: st.Reason}
	t.mu.Unlock()

	if target.IsTerminal() || target == RunDispatched || target == RunRunning {
		return t.archive.UpsertRunRow(t.trajName, row)
	}
	return nil
}

func (t *stateTracker) snapshot(idx int) (RunState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.runs[idx]
	if !ok {
		return "", false
	}
	return st.State, true
}
