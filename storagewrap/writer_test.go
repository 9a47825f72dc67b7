package storagewrap

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trajexplore/trajexplore/config"
	"github.com/trajexplore/trajexplore/leaf"
	"github.com/trajexplore/trajexplore/storage"
	"github.com/trajexplore/trajexplore/trajectory"
)

func openTestArchive(t *testing.T) *storage.Service {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.db")
	svc, err := storage.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Finalize() })
	return svc
}

func testTrajectory(t *testing.T, name string) *trajectory.Trajectory {
	t.Helper()
	traj := trajectory.New(name)
	x, err := leaf.NewScalarParameter("x", 1.0)
	require.NoError(t, err)
	require.NoError(t, traj.AddParameter(trajectory.BranchParameters, "x", x))
	return traj
}

func TestNew_NoneModeWritesDirectly(t *testing.T) {
	archive := openTestArchive(t)
	w, err := New(config.WrapNone, archive, Options{})
	require.NoError(t, err)
	defer w.Close()

	traj := testTrajectory(t, "none")
	require.NoError(t, w.StoreTrajectory(traj, storage.StoreInit))

	_, err = archive.Overview("none")
	require.NoError(t, err)
}

func TestNew_LockModeSerializesConcurrentWriters(t *testing.T) {
	archive := openTestArchive(t)
	w, err := New(config.WrapLock, archive, Options{})
	require.NoError(t, err)
	defer w.Close()

	traj := testTrajectory(t, "lock")
	require.NoError(t, archive.StoreTrajectory(traj, storage.StoreInit))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.StoreTrajectory(traj, storage.StoreAppend))
		}()
	}
	wg.Wait()
}

func TestNew_PipeModeAdmitsOneAtATime(t *testing.T) {
	archive := openTestArchive(t)
	w, err := New(config.WrapPipe, archive, Options{})
	require.NoError(t, err)
	defer w.Close()

	traj := testTrajectory(t, "pipe")
	require.NoError(t, archive.StoreTrajectory(traj, storage.StoreInit))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.StoreTrajectory(traj, storage.StoreAppend))
		}()
	}
	wg.Wait()
}

func TestNew_QueueModeRoutesThroughInProcQueue(t *testing.T) {
	archive := openTestArchive(t)
	w, err := New(config.WrapQueue, archive, Options{QueueName: "q"})
	require.NoError(t, err)
	defer w.Close()

	traj := testTrajectory(t, "queue")
	require.NoError(t, w.StoreTrajectory(traj, storage.StoreInit))

	ov, err := archive.Overview("queue")
	require.NoError(t, err)
	assert.Equal(t, "queue", ov.Info.Name)
}

func TestNew_UnknownModeErrors(t *testing.T) {
	archive := openTestArchive(t)
	_, err := New(config.WrapMode("bogus"), archive, Options{})
	require.Error(t, err)
}

func TestInProcQueue_EnqueueDequeueRoundTrip(t *testing.T) {
	q := newInProcQueue()
	job := Job{ID: "1", Queue: "work"}
	require.NoError(t, q.Enqueue(job))

	got, err := q.Dequeue("work", time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "1", got.ID)
}

func TestInProcQueue_DequeueTimesOutWhenEmpty(t *testing.T) {
	q := newInProcQueue()
	got, err := q.Dequeue("empty", time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)
}
