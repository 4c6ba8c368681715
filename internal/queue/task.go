package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/clipcast/api/internal/model"
)

// Task types
const (
	TaskTypeClip     = "clip:process"
	TaskTypePlaylist = "playlist:process"
	TaskTypeCleanup  = "artifact:cleanup"
)

// Queue names. Each kind gets its own queue so one backlog never starves the other.
const (
	QueueClip     = "clip"
	QueuePlaylist = "playlist"
	QueueCleanup  = "cleanup"
)

// Envelope is the wire form of every job task
type Envelope struct {
	JobID   string          `json:"jobId"`
	Payload json.RawMessage `json:"payload"`
}

// TaskTypeFor returns the asynq task type for a job kind
func TaskTypeFor(kind model.JobKind) (string, error) {
	switch kind {
	case model.JobKindClip:
		return TaskTypeClip, nil
	case model.JobKindPlaylist:
		return TaskTypePlaylist, nil
	default:
		return "", fmt.Errorf("unknown job kind %q", kind)
	}
}

// QueueFor returns the queue a job kind is enqueued on
func QueueFor(kind model.JobKind) (string, error) {
	switch kind {
	case model.JobKindClip:
		return QueueClip, nil
	case model.JobKindPlaylist:
		return QueuePlaylist, nil
	default:
		return "", fmt.Errorf("unknown job kind %q", kind)
	}
}

// NewJobTask builds the task for one job
func NewJobTask(kind model.JobKind, jobID string, payload any) (*asynq.Task, error) {
	taskType, err := TaskTypeFor(kind)
	if err != nil {
		return nil, err
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	data, err := json.Marshal(Envelope{JobID: jobID, Payload: payloadBytes})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}
	return asynq.NewTask(taskType, data), nil
}

// DecodeTask unpacks a job task into its id and kind-specific payload.
// Decoding failures are marked asynq.SkipRetry: redelivering them cannot help.
func DecodeTask(t *asynq.Task, payload any) (string, error) {
	var env Envelope
	if err := json.Unmarshal(t.Payload(), &env); err != nil {
		return "", fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}
	if env.JobID == "" {
		return "", fmt.Errorf("task payload has no job id: %w", asynq.SkipRetry)
	}
	if err := json.Unmarshal(env.Payload, payload); err != nil {
		return env.JobID, fmt.Errorf("failed to unmarshal job payload: %v: %w", err, asynq.SkipRetry)
	}
	return env.JobID, nil
}
