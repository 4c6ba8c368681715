package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clipcast/api/internal/config"
	"github.com/clipcast/api/internal/logging"
	"github.com/clipcast/api/internal/model"
	"github.com/clipcast/api/internal/queue"
)

// Handlers are the task handlers served by the worker processes
type Handlers struct {
	Clip     asynq.Handler
	Playlist asynq.Handler
	Cleanup  asynq.Handler
}

// Servers runs one asynq server per queue so each kind has its own slot limit
type Servers struct {
	clip     *asynq.Server
	playlist *asynq.Server
	cleanup  *asynq.Server
}

const shutdownTimeout = 30 * time.Second

// NewServers builds the clip, playlist and cleanup servers
func NewServers(redisOpt asynq.RedisConnOpt, cfg config.WorkerConfig, logLevel string, logger *zap.Logger) *Servers {
	newServer := func(queueName string, concurrency int) *asynq.Server {
		log := logger.With(zap.String("queue", queueName))
		return asynq.NewServer(redisOpt, asynq.Config{
			Concurrency:     concurrency,
			Queues:          map[string]int{queueName: 1},
			Logger:          logging.AsynqLogger(log),
			LogLevel:        logging.AsynqLevel(logLevel),
			ShutdownTimeout: shutdownTimeout,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				id, _ := asynq.GetTaskID(ctx)
				log.Error("task failed",
					zap.String("task_id", id),
					zap.String("type", task.Type()),
					zap.Error(err),
				)
			}),
		})
	}

	return &Servers{
		clip:     newServer(queue.QueueClip, cfg.ClipConcurrency),
		playlist: newServer(queue.QueuePlaylist, cfg.PlaylistConcurrency),
		cleanup:  newServer(queue.QueueCleanup, 1),
	}
}

// Start begins processing. It does not block.
func (s *Servers) Start(h Handlers) error {
	if err := s.clip.Start(mux(queue.TaskTypeClip, h.Clip)); err != nil {
		return fmt.Errorf("start clip server: %w", err)
	}
	if err := s.playlist.Start(mux(queue.TaskTypePlaylist, h.Playlist)); err != nil {
		s.clip.Shutdown()
		return fmt.Errorf("start playlist server: %w", err)
	}
	if err := s.cleanup.Start(mux(queue.TaskTypeCleanup, h.Cleanup)); err != nil {
		s.clip.Shutdown()
		s.playlist.Shutdown()
		return fmt.Errorf("start cleanup server: %w", err)
	}
	return nil
}

// Shutdown stops claiming and waits for running tasks up to the shutdown timeout
func (s *Servers) Shutdown() {
	s.clip.Shutdown()
	s.playlist.Shutdown()
	s.cleanup.Shutdown()
}

func mux(taskType string, h asynq.Handler) *asynq.ServeMux {
	m := asynq.NewServeMux()
	m.Handle(taskType, h)
	return m
}

// ServeLocal runs the job handlers against an in-process queue until ctx is done
func ServeLocal(ctx context.Context, q *queue.LocalQueue, cfg config.WorkerConfig, h Handlers) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return q.Serve(ctx, model.JobKindClip, cfg.ClipConcurrency, h.Clip)
	})
	g.Go(func() error {
		return q.Serve(ctx, model.JobKindPlaylist, cfg.PlaylistConcurrency, h.Playlist)
	})
	return g.Wait()
}
