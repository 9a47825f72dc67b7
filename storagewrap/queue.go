package storagewrap

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/streadway/amqp"

	"github.com/trajexplore/trajexplore/storage"
	"github.com/trajexplore/trajexplore/trajectory"
)

// Job is one queued archive write. Only identifying metadata crosses
// the queue, never the payload itself, since a *trajectory.Trajectory
// cannot be serialized across a network boundary.
type Job struct {
	ID         string            `json:"id"`
	Queue      string            `json:"queue"`
	TrajName   string            `json:"trajName"`
	Path       string            `json:"path"` // empty for a StoreTrajectory job
	Mode       storage.StoreMode `json:"mode"`
	EnqueuedAt time.Time         `json:"enqueuedAt"`
}

// Queue is the FIFO sequencing primitive behind the queue wrap mode.
type Queue interface {
	Enqueue(job Job) error
	Dequeue(queueName string, timeout time.Duration) (*Job, error)
	Close() error
}

// queueWriter drains jobs off q in strict FIFO order on a single
// goroutine; commit order follows the queue, not the run-index order.
// Payloads never leave the process: q carries
// only the Job's identifying fields (including path and mode); the live
// trajectory pointer is recovered from pending, keyed by job ID.
type queueWriter struct {
	archive   *storage.Service
	q         Queue
	queueName string

	mu      sync.Mutex
	pending map[string]queueEntry

	stop chan struct{}
	done chan struct{}
}

type queueEntry struct {
	traj   *trajectory.Trajectory
	result chan error
}

func newQueueWriter(archive *storage.Service, opts Options) (*queueWriter, error) {
	var q Queue
	switch {
	case opts.AMQPURL != "":
		aq, err := newAMQPQueue(opts.AMQPURL)
		if err != nil {
			return nil, err
		}
		q = aq
	case opts.RedisURL != "":
		rq, err := newRedisQueue(opts.RedisURL)
		if err != nil {
			return nil, err
		}
		q = rq
	default:
		q = newInProcQueue()
	}
	name := opts.QueueName
	if name == "" {
		name = "default"
	}
	w := &queueWriter{
		archive:   archive,
		q:         q,
		queueName: name,
		pending:   make(map[string]queueEntry),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go w.drain()
	return w, nil
}

func (w *queueWriter) drain() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		default:
		}
		job, err := w.q.Dequeue(w.queueName, time.Second)
		if err != nil || job == nil {
			continue
		}
		w.mu.Lock()
		entry, ok := w.pending[job.ID]
		delete(w.pending, job.ID)
		w.mu.Unlock()
		if !ok {
			continue
		}
		var storeErr error
		if job.Path == "" {
			storeErr = w.archive.StoreTrajectory(entry.traj, job.Mode)
		} else {
			storeErr = w.archive.StoreItem(entry.traj, job.Path, job.Mode)
		}
		entry.result <- storeErr
	}
}

func (w *queueWriter) submit(traj *trajectory.Trajectory, path string, mode storage.StoreMode) error {
	job := Job{ID: uuid.NewString(), Queue: w.queueName, TrajName: traj.Name, Path: path, Mode: mode, EnqueuedAt: time.Now()}
	result := make(chan error, 1)
	w.mu.Lock()
	w.pending[job.ID] = queueEntry{traj: traj, result: result}
	w.mu.Unlock()
	if err := w.q.Enqueue(job); err != nil {
		w.mu.Lock()
		delete(w.pending, job.ID)
		w.mu.Unlock()
		return err
	}
	return <-result
}

func (w *queueWriter) StoreTrajectory(traj *trajectory.Trajectory, mode storage.StoreMode) error {
	return w.submit(traj, "", mode)
}

func (w *queueWriter) StoreItem(traj *trajectory.Trajectory, path string, mode storage.StoreMode) error {
	return w.submit(traj, path, mode)
}

func (w *queueWriter) Close() error {
	close(w.stop)
	<-w.done
	return w.q.Close()
}

// inProcQueue is the default queue backing: a buffered channel per queue
// name, used when neither an AMQP nor a Redis URL is configured.
type inProcQueue struct {
	mu   sync.Mutex
	ch   map[string]chan Job
}

func newInProcQueue() *inProcQueue {
	return &inProcQueue{ch: make(map[string]chan Job)}
}

func (q *inProcQueue) chanFor(name string) chan Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	c, ok := q.ch[name]
	if !ok {
		c = make(chan Job, 256)
		q.ch[name] = c
	}
	return c
}

func (q *inProcQueue) Enqueue(job Job) error {
	q.chanFor(job.Queue) <- job
	return nil
}

func (q *inProcQueue) Dequeue(queueName string, timeout time.Duration) (*Job, error) {
	c := q.chanFor(queueName)
	select {
	case j := <-c:
		return &j, nil
	case <-time.After(timeout):
		return nil, nil
	}
}

func (q *inProcQueue) Close() error { return nil }

// redisQueue backs the queue wrap mode with a durable Redis list,
// using a blocking RPush/BLPop pair for FIFO hand-off.
type redisQueue struct {
	client *goredis.Client
	ctx    context.Context
	prefix string
}

func newRedisQueue(url string) (*redisQueue, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("storagewrap: parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("storagewrap: connect redis: %w", err)
	}
	return &redisQueue{client: client, ctx: ctx, prefix: "trajexplore:storagewrap:"}, nil
}

func (q *redisQueue) key(name string) string { return q.prefix + name }

func (q *redisQueue) Enqueue(job Job) error {
	blob, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("storagewrap: marshal job: %w", err)
	}
	return q.client.RPush(q.ctx, q.key(job.Queue), string(blob)).Err()
}

func (q *redisQueue) Dequeue(queueName string, timeout time.Duration) (*Job, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	result, err := q.client.BLPop(ctx, timeout, q.key(queueName)).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, nil
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("storagewrap: unmarshal job: %w", err)
	}
	return &job, nil
}

func (q *redisQueue) Close() error { return q.client.Close() }

// amqpQueue backs the queue wrap mode with a durable RabbitMQ queue,
// following the usual connect-channel-declare sequence, generalized
// from publish-only to a publish/consume pair.
type amqpQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel

	mu        sync.Mutex
	consumers map[string]<-chan amqp.Delivery
}

func newAMQPQueue(url string) (*amqpQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("storagewrap: dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("storagewrap: open amqp channel: %w", err)
	}
	return &amqpQueue{conn: conn, ch: ch, consumers: make(map[string]<-chan amqp.Delivery)}, nil
}

func (q *amqpQueue) ensureQueue(name string) error {
	_, err := q.ch.QueueDeclare(name, true, false, false, false, nil)
	return err
}

func (q *amqpQueue) Enqueue(job Job) error {
	if err := q.ensureQueue(job.Queue); err != nil {
		return fmt.Errorf("storagewrap: declare queue %s: %w", job.Queue, err)
	}
	blob, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("storagewrap: marshal job: %w", err)
	}
	return q.ch.Publish("", job.Queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        blob,
	})
}

func (q *amqpQueue) consumerFor(name string) (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if c, ok := q.consumers[name]; ok {
		return c, nil
	}
	if err := q.ensureQueue(name); err != nil {
		return nil, fmt.Errorf("storagewrap: declare queue %s: %w", name, err)
	}
	msgs, err := q.ch.Consume(name, "", true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("storagewrap: consume queue %s: %w", name, err)
	}
	q.consumers[name] = msgs
	return msgs, nil
}

func (q *amqpQueue) Dequeue(queueName string, timeout time.Duration) (*Job, error) {
	msgs, err := q.consumerFor(queueName)
	if err != nil {
		return nil, err
	}
	select {
	case d, ok := <-msgs:
		if !ok {
			return nil, nil
		}
		var job Job
		if err := json.Unmarshal(d.Body, &job); err != nil {
			return nil, fmt.Errorf("storagewrap: unmarshal job: %w", err)
		}
		return &job, nil
	case <-time.After(timeout):
		return nil, nil
	}
}

func (q *amqpQueue) Close() error {
	q.ch.Close()
	return q.conn.Close()
}
