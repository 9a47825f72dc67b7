package storagewrap

import (
	"fmt"
	"os"

	"github.com/trajexplore/trajexplore/errs"
	"github.com/trajexplore/trajexplore/storage"
	"github.com/trajexplore/trajexplore/trajectory"
)

// pipeWriter is the pipe mode: writers admit themselves one at a time by
// reading a single token out of an os.Pipe and returning it when done,
// the classic self-pipe trick used as a cross-goroutine (and, since it
// is a real file descriptor, cross-process-within-the-same-parent)
// counting semaphore of size one.
type pipeWriter struct {
	archive  *storage.Service
	readEnd  *os.File
	writeEnd *os.File
}

func newPipeWriter(archive *storage.Service, _ Options) (*pipeWriter, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: pipe wrap mode: %v", errs.ErrConfigError, err)
	}
	if _, err := w.Write([]byte{0}); err != nil {
		r.Close()
		w.Close()
		return nil, err
	}
	return &pipeWriter{archive: archive, readEnd: r, writeEnd: w}, nil
}

func (w *pipeWriter) acquire() error {
	buf := make([]byte, 1)
	_, err := w.readEnd.Read(buf)
	return err
}

func (w *pipeWriter) release() {
	w.writeEnd.Write([]byte{0})
}

func (w *pipeWriter) StoreTrajectory(traj *trajectory.Trajectory, mode storage.StoreMode) error {
	if err := w.acquire(); err != nil {
		return err
	}
	defer w.release()
	return w.archive.StoreTrajectory(traj, mode)
}

func (w *pipeWriter) StoreItem(traj *trajectory.Trajectory, path string, mode storage.StoreMode) error {
	if err := w.acquire(); err != nil {
		return err
	}
	defer w.release()
	return w.archive.StoreItem(traj, path, mode)
}

func (w *pipeWriter) Close() error {
	w.readEnd.Close()
	w.writeEnd.Close()
	return nil
}
