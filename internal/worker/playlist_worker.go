package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/clipcast/api/internal/archive"
	"github.com/clipcast/api/internal/cleanup"
	"github.com/clipcast/api/internal/client"
	"github.com/clipcast/api/internal/model"
	"github.com/clipcast/api/internal/queue"
)

// PlaylistOptions locates and publishes playlist archives
type PlaylistOptions struct {
	DownloadDir      string
	PublicURL        string
	ArchiveRetention time.Duration
}

// PlaylistWorker processes playlist jobs
type PlaylistWorker struct {
	pipeline  *Pipeline
	extractor client.Extractor
	scheduler cleanup.Scheduler
	opts      PlaylistOptions
	logger    *zap.Logger
}

// NewPlaylistWorker creates a new playlist worker
func NewPlaylistWorker(pipeline *Pipeline, extractor client.Extractor, scheduler cleanup.Scheduler, opts PlaylistOptions, logger *zap.Logger) *PlaylistWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlaylistWorker{
		pipeline:  pipeline,
		extractor: extractor,
		scheduler: scheduler,
		opts:      opts,
		logger:    logger,
	}
}

// ProcessTask handles playlist task processing
func (w *PlaylistWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.PlaylistJobPayload
	jobID, err := queue.DecodeTask(t, &payload)
	if err != nil {
		if jobID != "" {
			recordInvalidPayload(ctx, w.pipeline, jobID, w.logger)
		}
		return err
	}

	job := Job{ID: jobID, UserID: payload.UserID, Kind: model.JobKindPlaylist}
	_, err = w.pipeline.Run(ctx, job, func(ctx context.Context, wd *cleanup.Workdir) (Result, error) {
		return w.download(ctx, jobID, &payload, wd)
	})
	return err
}

// ArchivePath returns where a job's archive is written
func (w *PlaylistWorker) ArchivePath(jobID string) string {
	return filepath.Join(w.opts.DownloadDir, jobID+".zip")
}

func (w *PlaylistWorker) download(ctx context.Context, jobID string, payload *model.PlaylistJobPayload, wd *cleanup.Workdir) (Result, error) {
	sourceURL := model.CanonicalPlaylistURL(payload.PlaylistURL)

	if _, err := w.extractor.Extract(ctx, client.ExtractInput{
		JobID:     jobID,
		SourceURL: sourceURL,
		OutputDir: wd.Path(),
		Playlist:  true,
	}); err != nil {
		return Result{}, fmt.Errorf("playlist download failed: %w", err)
	}

	archivePath := w.ArchivePath(jobID)
	size, err := archive.ZipDirectory(wd.Path(), archivePath)
	if err != nil {
		w.discard(archivePath)
		return Result{}, fmt.Errorf("failed to create zip archive: %w", err)
	}

	if err := w.scheduler.ScheduleDeletion(context.WithoutCancel(ctx), archivePath, w.opts.ArchiveRetention); err != nil {
		w.discard(archivePath)
		return Result{}, fmt.Errorf("failed to schedule archive cleanup: %w", err)
	}

	w.logger.Info("playlist archived",
		zap.String("job_id", jobID),
		zap.String("path", archivePath),
		zap.Int64("bytes", size),
	)

	return Result{
		URL: fmt.Sprintf("%s/downloads/%s.zip", w.opts.PublicURL, jobID),
		// the record must not outlive the archive it points to
		RetainFor: w.opts.ArchiveRetention,
	}, nil
}

func (w *PlaylistWorker) discard(path string) {
	if err := cleanup.RemoveArtifact(path); err != nil {
		w.logger.Warn("failed to remove partial archive", zap.String("path", path), zap.Error(err))
	}
}
