package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/clipcast/api/internal/cleanup"
	"github.com/clipcast/api/internal/model"
	"github.com/clipcast/api/internal/store"
)

// Job is the part of a claimed task the pipeline needs
type Job struct {
	ID     string
	UserID string
	Kind   model.JobKind
}

// Result is what a successful job body produces
type Result struct {
	URL string
	// RetainFor overrides how long the completed record lives. Zero keeps the
	// default status retention.
	RetainFor time.Duration
}

// Body is the kind-specific work done inside the job's working directory
type Body func(ctx context.Context, wd *cleanup.Workdir) (Result, error)

// Pipeline runs the status lifecycle shared by every job kind:
// processing → body → completed|failed, with the working directory removed
// on every path.
type Pipeline struct {
	store     store.StatusStore
	workRoot  string
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
	active    atomic.Int32
}

// NewPipeline creates a pipeline writing to st and working under workRoot
func NewPipeline(st store.StatusStore, workRoot string, retention time.Duration, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		store:     st,
		workRoot:  workRoot,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// Active returns the number of bodies running right now
func (p *Pipeline) Active() int {
	return int(p.active.Load())
}

// Run executes one job and returns its terminal record. Body failures are
// captured in the record. The returned error is set when the status store
// could not be written, or when ctx was cancelled before the deadline: the
// queue requeues an aborted task, so the record is left at processing for the
// redelivery instead of being marked failed.
func (p *Pipeline) Run(ctx context.Context, job Job, body Body) (*model.StatusRecord, error) {
	log := p.logger.With(zap.String("job_id", job.ID), zap.String("kind", string(job.Kind)))

	rec := model.NewProcessingRecord(job.ID, job.UserID, p.now())
	if err := p.store.Set(ctx, rec, p.retention); err != nil {
		return nil, fmt.Errorf("write processing status: %w", err)
	}
	log.Info("job started")

	p.active.Add(1)
	res, err := p.execute(ctx, job, body, log)
	p.active.Add(-1)

	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		log.Warn("job interrupted before finishing, leaving it to redelivery", zap.Error(err))
		return rec, fmt.Errorf("job interrupted: %w", ctx.Err())
	}

	// a task timeout still records its outcome
	writeCtx := context.WithoutCancel(ctx)

	var final *model.StatusRecord
	ttl := p.retention
	if err != nil {
		final = rec.Fail(err.Error(), p.now())
		log.Warn("job failed", zap.Error(err))
	} else {
		final = rec.Complete(res.URL, p.now())
		if res.RetainFor > 0 && res.RetainFor < ttl {
			ttl = res.RetainFor
		}
		log.Info("job completed", zap.String("result_url", res.URL))
	}

	if err := p.store.Set(writeCtx, final, ttl); err != nil {
		return final, fmt.Errorf("write terminal status: %w", err)
	}
	return final, nil
}

func (p *Pipeline) execute(ctx context.Context, job Job, body Body, log *zap.Logger) (res Result, err error) {
	wd, err := cleanup.AcquireWorkdir(p.workRoot, job.ID)
	if err != nil {
		return Result{}, fmt.Errorf("prepare working directory: %w", err)
	}
	defer func() {
		if relErr := wd.Release(); relErr != nil {
			log.Warn("failed to remove working directory", zap.String("path", wd.Path()), zap.Error(relErr))
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	res, err = body(ctx, wd)
	if err != nil {
		return Result{}, err
	}
	if res.URL == "" {
		return Result{}, errors.New("job produced no result url")
	}
	return res, nil
}
