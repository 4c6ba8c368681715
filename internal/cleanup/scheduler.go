package cleanup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/clipcast/api/internal/queue"
)

// Scheduler deletes a file after a delay
type Scheduler interface {
	ScheduleDeletion(ctx context.Context, path string, after time.Duration) error
}

// Payload is the body of an artifact cleanup task
type Payload struct {
	Path string `json:"path"`
}

// NewCleanupTask builds the deferred deletion task for path
func NewCleanupTask(path string) (*asynq.Task, error) {
	data, err := json.Marshal(Payload{Path: path})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cleanup payload: %w", err)
	}
	return asynq.NewTask(queue.TaskTypeCleanup, data), nil
}

// RemoveArtifact deletes path. A file that is already gone is not an error.
func RemoveArtifact(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}

// AsynqScheduler stores deletions as delayed tasks so they survive a restart
type AsynqScheduler struct {
	client *asynq.Client
}

func NewAsynqScheduler(client *asynq.Client) *AsynqScheduler {
	return &AsynqScheduler{client: client}
}

func (s *AsynqScheduler) ScheduleDeletion(ctx context.Context, path string, after time.Duration) error {
	task, err := NewCleanupTask(path)
	if err != nil {
		return err
	}
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.Queue(queue.QueueCleanup),
		asynq.ProcessIn(after),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return fmt.Errorf("schedule deletion of %s: %w", path, err)
	}
	return nil
}

// Handler processes artifact cleanup tasks
type Handler struct {
	logger *zap.Logger
}

func NewHandler(logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{logger: logger}
}

// ProcessTask implements asynq.Handler
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p Payload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal cleanup payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.Path == "" {
		return fmt.Errorf("cleanup task has no path: %w", asynq.SkipRetry)
	}
	if err := RemoveArtifact(p.Path); err != nil {
		return err
	}
	h.logger.Info("artifact removed", zap.String("path", p.Path))
	return nil
}

// TimerScheduler deletes files from in-process timers. Pending deletions are
// lost when the process exits; Sweeper picks those up on the next start.
type TimerScheduler struct {
	mu      sync.Mutex
	timers  map[*time.Timer]struct{}
	stopped bool
	logger  *zap.Logger
}

func NewTimerScheduler(logger *zap.Logger) *TimerScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimerScheduler{timers: make(map[*time.Timer]struct{}), logger: logger}
}

func (s *TimerScheduler) ScheduleDeletion(_ context.Context, path string, after time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errors.New("timer scheduler stopped")
	}

	var timer *time.Timer
	timer = time.AfterFunc(after, func() {
		s.mu.Lock()
		delete(s.timers, timer)
		s.mu.Unlock()

		if err := RemoveArtifact(path); err != nil {
			s.logger.Warn("artifact cleanup failed", zap.String("path", path), zap.Error(err))
			return
		}
		s.logger.Info("artifact removed", zap.String("path", path))
	})
	s.timers[timer] = struct{}{}
	return nil
}

// Pending returns the number of deletions not yet run
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending deletion
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for timer := range s.timers {
		timer.Stop()
	}
	s.timers = make(map[*time.Timer]struct{})
}
