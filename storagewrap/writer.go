// Package storagewrap serializes concurrent archive access across
// workers. All four wrap modes sit behind the Writer interface, so
// an environment can swap modes without touching call sites.
package storagewrap

import (
	"fmt"
	"sync"

	"github.com/trajexplore/trajexplore/config"
	"github.com/trajexplore/trajexplore/storage"
	"github.com/trajexplore/trajexplore/trajectory"
)

// Writer is the subset of storage.Service's write surface a wrap mode
// must serialize. Read operations (LoadTrajectory, LoadItem, Overview)
// bypass wrapping; only writes need ordering guarantees.
type Writer interface {
	StoreTrajectory(traj *trajectory.Trajectory, mode storage.StoreMode) error
	StoreItem(traj *trajectory.Trajectory, path string, mode storage.StoreMode) error
	Close() error
}

// Options configures a wrap mode's backing resources beyond the archive
// itself.
type Options struct {
	// RedisURL backs the queue wrap mode with a durable Redis list.
	RedisURL string
	// AMQPURL backs the queue wrap mode with a durable RabbitMQ queue
	// instead, taking precedence over RedisURL when both are set.
	// Empty for both falls back to an in-process queue (see queue.go).
	AMQPURL string
	// QueueName namespaces queue jobs, typically the trajectory name. The
	// pipe mode does not use it.
	QueueName string
}

// New builds the Writer for mode over archive.
func New(mode config.WrapMode, archive *storage.Service, opts Options) (Writer, error) {
	switch mode {
	case config.WrapNone, "":
		return &directWriter{archive: archive}, nil
	case config.WrapLock:
		return &lockWriter{archive: archive}, nil
	case config.WrapQueue:
		return newQueueWriter(archive, opts)
	case config.WrapPipe:
		return newPipeWriter(archive, opts)
	default:
		return nil, fmt.Errorf("storagewrap: unknown wrap mode %q", mode)
	}
}

// directWriter is the none mode: every call reaches the archive
// immediately, with no ordering guarantee beyond the caller's own
// goroutine.
type directWriter struct {
	archive *storage.Service
}

func (w *directWriter) StoreTrajectory(traj *trajectory.Trajectory, mode storage.StoreMode) error {
	return w.archive.StoreTrajectory(traj, mode)
}

func (w *directWriter) StoreItem(traj *trajectory.Trajectory, path string, mode storage.StoreMode) error {
	return w.archive.StoreItem(traj, path, mode)
}

func (w *directWriter) Close() error { return nil }

// lockWriter is the lock mode: a single mutex around every write, the
// simplest way to hold archive access to one writer at a time.
type lockWriter struct {
	mu      sync.Mutex
	archive *storage.Service
}

func (w *lockWriter) StoreTrajectory(traj *trajectory.Trajectory, mode storage.StoreMode) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.archive.StoreTrajectory(traj, mode)
}

func (w *lockWriter) StoreItem(traj *trajectory.Trajectory, path string, mode storage.StoreMode) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.archive.StoreItem(traj, path, mode)
}

func (w *lockWriter) Close() error { return nil }
