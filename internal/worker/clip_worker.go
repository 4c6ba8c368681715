package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/clipcast/api/internal/cleanup"
	"github.com/clipcast/api/internal/client"
	"github.com/clipcast/api/internal/model"
	"github.com/clipcast/api/internal/queue"
)

// ClipWorker processes clip jobs
type ClipWorker struct {
	pipeline  *Pipeline
	extractor client.Extractor
	publisher client.Publisher
	logger    *zap.Logger
}

// NewClipWorker creates a new clip worker
func NewClipWorker(pipeline *Pipeline, extractor client.Extractor, publisher client.Publisher, logger *zap.Logger) *ClipWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClipWorker{
		pipeline:  pipeline,
		extractor: extractor,
		publisher: publisher,
		logger:    logger,
	}
}

// ProcessTask handles clip task processing
func (w *ClipWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.ClipJobPayload
	jobID, err := queue.DecodeTask(t, &payload)
	if err != nil {
		if jobID != "" {
			recordInvalidPayload(ctx, w.pipeline, jobID, w.logger)
		}
		return err
	}

	job := Job{ID: jobID, UserID: payload.UserID, Kind: model.JobKindClip}
	_, err = w.pipeline.Run(ctx, job, func(ctx context.Context, wd *cleanup.Workdir) (Result, error) {
		return w.clip(ctx, jobID, &payload, wd)
	})
	return err
}

func (w *ClipWorker) clip(ctx context.Context, jobID string, payload *model.ClipJobPayload, wd *cleanup.Workdir) (Result, error) {
	out, err := w.extractor.Extract(ctx, client.ExtractInput{
		JobID:     jobID,
		SourceURL: payload.SourceURL,
		OutputDir: wd.Path(),
		Section:   &client.Section{Start: payload.Start, End: payload.End},
	})
	if err != nil {
		return Result{}, fmt.Errorf("clip extraction failed: %w", err)
	}
	if len(out.Files) != 1 {
		return Result{}, fmt.Errorf("clip extraction produced %d files, expected 1", len(out.Files))
	}

	pub, err := w.publisher.Publish(ctx, out.Files[0])
	if err != nil {
		return Result{}, fmt.Errorf("clip upload failed: %w", err)
	}
	if pub.URL == "" {
		return Result{}, errors.New("clip upload returned no url")
	}
	// the record must not outlive a hosted file that gets deleted
	return Result{URL: pub.URL, RetainFor: pub.Expires}, nil
}

// recordInvalidPayload marks a job whose payload cannot be decoded as failed
func recordInvalidPayload(ctx context.Context, p *Pipeline, jobID string, logger *zap.Logger) {
	now := p.now()
	rec := model.NewProcessingRecord(jobID, "", now).Fail("invalid job payload", now)
	if err := p.store.Set(context.WithoutCancel(ctx), rec, p.retention); err != nil {
		logger.Error("failed to record invalid payload", zap.String("job_id", jobID), zap.Error(err))
	}
}
