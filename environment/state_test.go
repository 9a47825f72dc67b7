package environment

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trajexplore/trajexplore/storage"
)

func newTestStateTracker(t *testing.T) *stateTracker {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.db")
	svc, err := storage.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Finalize() })
	require.NoError(t, svc.UpsertRunRow("demo", storage.RunRow{Index: 0, Status: "PENDING"}))
	return newStateTracker(svc, "demo")
}

func TestStateTracker_ValidLifecycle(t *testing.T) {
	tr := newTestStateTracker(t)
	tr.register(0)

	require.NoError(t, tr.transition(0, RunDispatched, "w1", ""))
	require.NoError(t, tr.transition(0, RunRunning, "w1", ""))
	require.NoError(t, tr.transition(0, RunStored, "w1", ""))

	state, ok := tr.snapshot(0)
	require.True(t, ok)
	assert.Equal(t, RunStored, state)
	assert.True(t, state.IsTerminal())
}

func TestStateTracker_RejectsInvalidTransition(t *testing.T) {
	tr := newTestStateTracker(t)
	tr.register(0)

	err := tr.transition(0, RunStored, "w1", "")
	require.Error(t, err)
}

func TestStateTracker_UnregisteredRunErrors(t *testing.T) {
	tr := newTestStateTracker(t)
	err := tr.transition(99, RunDispatched, "w1", "")
	require.Error(t, err)
}

func TestRunState_IsTerminal(t *testing.T) {
	assert.True(t, RunStored.IsTerminal())
	assert.True(t, RunFailed.IsTerminal())
	assert.True(t, RunCancelled.IsTerminal())
	assert.False(t, RunPending.IsTerminal())
	assert.False(t, RunDispatched.IsTerminal())
	assert.False(t, RunRunning.IsTerminal())
}
