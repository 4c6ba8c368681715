package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/clipcast/api/internal/model"
)

// LocalQueue is an in-process queue for runs without Redis. Jobs are lost on
// exit. Handlers are the same asynq.Handler values the Redis-backed servers use.
type LocalQueue struct {
	mu     sync.Mutex
	chans  map[model.JobKind]chan localJob
	live   map[string]struct{}
	closed bool
	newID  func() string
	logger *zap.Logger
}

// localJob keeps the enqueue id next to the task so bookkeeping never depends
// on decoding the payload
type localJob struct {
	id   string
	task *asynq.Task
}

// NewLocalQueue creates a queue that buffers up to capacity jobs per kind
func NewLocalQueue(capacity int, logger *zap.Logger) *LocalQueue {
	if capacity <= 0 {
		capacity = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalQueue{
		chans: map[model.JobKind]chan localJob{
			model.JobKindClip:     make(chan localJob, capacity),
			model.JobKindPlaylist: make(chan localJob, capacity),
		},
		live:   make(map[string]struct{}),
		newID:  func() string { return uuid.New().String() },
		logger: logger,
	}
}

func (q *LocalQueue) Enqueue(ctx context.Context, kind model.JobKind, payload any) (string, error) {
	if _, ok := q.chans[kind]; !ok {
		return "", fmt.Errorf("%w: unknown job kind %q", ErrEnqueue, kind)
	}

	jobID := q.newID()
	task, err := NewJobTask(kind, jobID, payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEnqueue, err)
	}
	if err := q.push(ctx, kind, localJob{id: jobID, task: task}); err != nil {
		return "", err
	}
	return jobID, nil
}

func (q *LocalQueue) push(ctx context.Context, kind model.JobKind, job localJob) error {
	ch, ok := q.chans[kind]
	if !ok {
		return fmt.Errorf("%w: unknown job kind %q", ErrEnqueue, kind)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("%w: queue closed", ErrEnqueue)
	}
	select {
	case ch <- job:
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrEnqueue, ctx.Err())
	default:
		return fmt.Errorf("%w: %s queue is full", ErrEnqueue, kind)
	}
	q.live[job.id] = struct{}{}
	return nil
}

func (q *LocalQueue) InFlight(_ context.Context, jobID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.live[jobID]
	return ok, nil
}

// Serve claims kind's jobs with at most concurrency handlers running at once.
// It returns after ctx is cancelled and running handlers have returned.
func (q *LocalQueue) Serve(ctx context.Context, kind model.JobKind, concurrency int, h asynq.Handler) error {
	ch, ok := q.chans[kind]
	if !ok {
		return fmt.Errorf("unknown job kind %q", kind)
	}
	if concurrency <= 0 {
		return errors.New("concurrency must be positive")
	}

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-ch:
					q.process(ctx, job, h)
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

func (q *LocalQueue) process(ctx context.Context, job localJob, h asynq.Handler) {
	defer func() {
		q.mu.Lock()
		delete(q.live, job.id)
		q.mu.Unlock()
	}()

	if err := h.ProcessTask(ctx, job.task); err != nil {
		q.logger.Error("local job failed",
			zap.String("job_id", job.id),
			zap.String("type", job.task.Type()),
			zap.Error(err),
		)
	}
}

// Close rejects further enqueues
func (q *LocalQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}
