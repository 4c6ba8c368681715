//go:generate mockgen -source=queue.go -destination=../mocks/queue_mock.go -package=mocks

// Package queue is the durable, ordered work buffer between intake and workers.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/clipcast/api/internal/model"
)

// ErrEnqueue wraps every failure to durably record a job
var ErrEnqueue = errors.New("failed to enqueue job")

// Enqueuer is the producer side of the queue. A nil error means the job is
// durably recorded and will be claimed even after a restart.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind model.JobKind, payload any) (string, error)
}

// Tracker reports whether a job is still held by the queue (waiting, running
// or scheduled for redelivery).
type Tracker interface {
	InFlight(ctx context.Context, jobID string) (bool, error)
}

// Options controls how jobs are enqueued
type Options struct {
	// MaxRedeliveries bounds redelivery after a worker crash. Pipeline failures
	// are never redelivered because workers record them and return nil.
	MaxRedeliveries int
	// Timeout bounds one pipeline run inside asynq.
	Timeout time.Duration
}

// AsynqQueue stores jobs in Redis through asynq
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	opts      Options
	newID     func() string
}

// NewAsynqQueue creates a queue backed by an asynq client and inspector
func NewAsynqQueue(client *asynq.Client, inspector *asynq.Inspector, opts Options) *AsynqQueue {
	return &AsynqQueue{
		client:    client,
		inspector: inspector,
		opts:      opts,
		newID:     func() string { return uuid.New().String() },
	}
}

// Enqueue stores the job and returns its id. The id doubles as the asynq task
// id so the status path can look the job up while it waits.
func (q *AsynqQueue) Enqueue(ctx context.Context, kind model.JobKind, payload any) (string, error) {
	queueName, err := QueueFor(kind)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEnqueue, err)
	}

	jobID := q.newID()
	task, err := NewJobTask(kind, jobID, payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEnqueue, err)
	}

	opts := []asynq.Option{
		asynq.Queue(queueName),
		asynq.TaskID(jobID),
		asynq.MaxRetry(q.opts.MaxRedeliveries),
	}
	if q.opts.Timeout > 0 {
		opts = append(opts, asynq.Timeout(q.opts.Timeout))
	}

	if _, err := q.client.EnqueueContext(ctx, task, opts...); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEnqueue, err)
	}
	return jobID, nil
}

// InFlight checks the clip and playlist queues for a live task with id jobID
func (q *AsynqQueue) InFlight(_ context.Context, jobID string) (bool, error) {
	if q.inspector == nil || jobID == "" {
		return false, nil
	}

	for _, queueName := range []string{QueueClip, QueuePlaylist} {
		info, err := q.inspector.GetTaskInfo(queueName, jobID)
		if err != nil {
			if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
				continue
			}
			return false, fmt.Errorf("inspect task %s: %w", jobID, err)
		}
		if isLiveState(info.State) {
			return true, nil
		}
	}
	return false, nil
}

func isLiveState(state asynq.TaskState) bool {
	switch state {
	case asynq.TaskStatePending, asynq.TaskStateActive, asynq.TaskStateScheduled, asynq.TaskStateRetry:
		return true
	default:
		return false
	}
}
