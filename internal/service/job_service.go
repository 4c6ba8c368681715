package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clipcast/api/internal/model"
	"github.com/clipcast/api/internal/queue"
	"github.com/clipcast/api/internal/store"
)

// ErrInvalidRequest marks requests rejected before anything is enqueued
var ErrInvalidRequest = errors.New("invalid request")

// JobService handles job intake and status reads
type JobService struct {
	queue     queue.Enqueuer
	tracker   queue.Tracker
	store     store.StatusStore
	readGrace time.Duration
	logger    *zap.Logger
}

// NewJobService creates a job service. tracker may be nil, in which case a job
// waiting in the queue reads as not found until a worker claims it.
func NewJobService(enq queue.Enqueuer, tracker queue.Tracker, st store.StatusStore, readGrace time.Duration, logger *zap.Logger) *JobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobService{
		queue:     enq,
		tracker:   tracker,
		store:     st,
		readGrace: readGrace,
		logger:    logger,
	}
}

// SubmitClip queues a clip extraction job
func (s *JobService) SubmitClip(ctx context.Context, req *model.ClipJobRequest) (*model.JobAcceptedResponse, error) {
	if req.StartTime == nil || req.EndTime == nil {
		return nil, fmt.Errorf("%w: startTime and endTime are required", ErrInvalidRequest)
	}
	if *req.EndTime <= *req.StartTime {
		return nil, fmt.Errorf("%w: endTime must be greater than startTime", ErrInvalidRequest)
	}

	start := model.FormatTimecode(*req.StartTime)
	end := model.FormatTimecode(*req.EndTime)
	if start == end {
		return nil, fmt.Errorf("%w: clip must span at least one whole second", ErrInvalidRequest)
	}

	payload := model.ClipJobPayload{
		SourceURL: req.SourceURL,
		Start:     start,
		End:       end,
		UserID:    req.UserID,
	}

	jobID, err := s.queue.Enqueue(ctx, model.JobKindClip, payload)
	if err != nil {
		return nil, err
	}

	s.logger.Info("clip job queued",
		zap.String("job_id", jobID),
		zap.String("user_id", req.UserID),
		zap.String("start", start),
		zap.String("end", end),
	)
	return &model.JobAcceptedResponse{JobID: jobID}, nil
}

// SubmitPlaylist queues a playlist download job
func (s *JobService) SubmitPlaylist(ctx context.Context, req *model.PlaylistJobRequest) (*model.JobAcceptedResponse, error) {
	if _, ok := model.PlaylistID(req.PlaylistURL); !ok {
		return nil, fmt.Errorf("%w: invalid YouTube playlist URL, no list id found", ErrInvalidRequest)
	}

	payload := model.PlaylistJobPayload{
		PlaylistURL: req.PlaylistURL,
		UserID:      req.UserID,
	}

	jobID, err := s.queue.Enqueue(ctx, model.JobKindPlaylist, payload)
	if err != nil {
		return nil, err
	}

	s.logger.Info("playlist job queued", zap.String("job_id", jobID), zap.String("user_id", req.UserID))
	return &model.JobAcceptedResponse{JobID: jobID}, nil
}

// ReadStatus returns the current status of a job. Jobs still waiting in the
// queue read as processing. A terminal status is delivered and then deleted,
// or kept for the read grace window when one is configured.
func (s *JobService) ReadStatus(ctx context.Context, jobID string) (*model.StatusRecord, error) {
	rec, err := s.store.Get(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return s.queuedStatus(ctx, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read status: %w", err)
	}

	if rec.Status.IsTerminal() {
		s.expireDelivered(ctx, jobID)
	}
	return rec, nil
}

func (s *JobService) queuedStatus(ctx context.Context, jobID string) (*model.StatusRecord, error) {
	if s.tracker == nil {
		return nil, store.ErrNotFound
	}
	inFlight, err := s.tracker.InFlight(ctx, jobID)
	if err != nil {
		s.logger.Warn("queue lookup failed", zap.String("job_id", jobID), zap.Error(err))
		return nil, store.ErrNotFound
	}
	if !inFlight {
		return nil, store.ErrNotFound
	}
	// synthesized view, never stored
	return &model.StatusRecord{JobID: jobID, Status: model.JobStatusProcessing}, nil
}

func (s *JobService) expireDelivered(ctx context.Context, jobID string) {
	if s.readGrace <= 0 {
		if err := s.store.Delete(ctx, jobID); err != nil {
			s.logger.Warn("failed to delete delivered status", zap.String("job_id", jobID), zap.Error(err))
		}
		return
	}
	if err := s.store.ShortenTTL(ctx, jobID, s.readGrace); err != nil {
		s.logger.Warn("failed to shorten delivered status ttl", zap.String("job_id", jobID), zap.Error(err))
	}
}
