package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/clipcast/api/internal/mocks"
	"github.com/clipcast/api/internal/model"
	"github.com/clipcast/api/internal/queue"
	"github.com/clipcast/api/internal/store"
)

func ptr(v float64) *float64 { return &v }

type serviceFixture struct {
	svc     *JobService
	enq     *mocks.MockEnqueuer
	tracker *mocks.MockTracker
	store   *store.MemoryStatusStore
}

func newFixture(t *testing.T, readGrace time.Duration) *serviceFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &serviceFixture{
		enq:     mocks.NewMockEnqueuer(ctrl),
		tracker: mocks.NewMockTracker(ctrl),
		store:   store.NewMemoryStatusStore(),
	}
	f.svc = NewJobService(f.enq, f.tracker, f.store, readGrace, nil)
	return f
}

func TestSubmitClip_ConvertsTimecodes(t *testing.T) {
	f := newFixture(t, 0)
	want := model.ClipJobPayload{
		SourceURL: "https://video.example/x",
		Start:     "00:00:10",
		End:       "00:01:05",
		UserID:    "u1",
	}
	f.enq.EXPECT().Enqueue(gomock.Any(), model.JobKindClip, want).Return("job-1", nil)

	resp, err := f.svc.SubmitClip(context.Background(), &model.ClipJobRequest{
		SourceURL: "https://video.example/x",
		StartTime: ptr(10),
		EndTime:   ptr(65.4),
		UserID:    "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", resp.JobID)
}

func TestSubmitClip_RejectsBadWindow(t *testing.T) {
	f := newFixture(t, 0)
	// no Enqueue expectation: gomock fails the test if it is called

	tests := []struct {
		name       string
		start, end *float64
	}{
		{"missing start", nil, ptr(5)},
		{"end before start", ptr(20), ptr(10)},
		{"end equals start", ptr(10), ptr(10)},
		{"sub-second window", ptr(10.1), ptr(10.9)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SubmitClip(context.Background(), &model.ClipJobRequest{
				SourceURL: "https://video.example/x",
				StartTime: tt.start,
				EndTime:   tt.end,
				UserID:    "u1",
			})
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestSubmitClip_QueueFailure(t *testing.T) {
	f := newFixture(t, 0)
	f.enq.EXPECT().Enqueue(gomock.Any(), model.JobKindClip, gomock.Any()).
		Return("", fmt.Errorf("%w: redis down", queue.ErrEnqueue))

	resp, err := f.svc.SubmitClip(context.Background(), &model.ClipJobRequest{
		SourceURL: "https://video.example/x",
		StartTime: ptr(0),
		EndTime:   ptr(5),
		UserID:    "u1",
	})
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, queue.ErrEnqueue)
}

func TestSubmitPlaylist(t *testing.T) {
	f := newFixture(t, 0)
	f.enq.EXPECT().Enqueue(gomock.Any(), model.JobKindPlaylist, model.PlaylistJobPayload{
		PlaylistURL: "https://www.youtube.com/watch?v=a&list=PL9",
		UserID:      "u1",
	}).Return("job-2", nil)

	resp, err := f.svc.SubmitPlaylist(context.Background(), &model.PlaylistJobRequest{
		PlaylistURL: "https://www.youtube.com/watch?v=a&list=PL9",
		UserID:      "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, "job-2", resp.JobID)
}

func TestSubmitPlaylist_RequiresListID(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.svc.SubmitPlaylist(context.Background(), &model.PlaylistJobRequest{
		PlaylistURL: "https://www.youtube.com/watch?v=abc",
		UserID:      "u1",
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestReadStatus_QueuedJobReadsAsProcessing(t *testing.T) {
	f := newFixture(t, 0)
	f.tracker.EXPECT().InFlight(gomock.Any(), "job-3").Return(true, nil)

	rec, err := f.svc.ReadStatus(context.Background(), "job-3")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, rec.Status)

	// the synthesized view is never stored
	_, err = f.store.Get(context.Background(), "job-3")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReadStatus_UnknownJob(t *testing.T) {
	f := newFixture(t, 0)
	f.tracker.EXPECT().InFlight(gomock.Any(), "nope").Return(false, nil)
	f.tracker.EXPECT().InFlight(gomock.Any(), "broken").Return(false, errors.New("inspector down"))

	_, err := f.svc.ReadStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.svc.ReadStatus(context.Background(), "broken")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReadStatus_ProcessingIsKept(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, model.NewProcessingRecord("job-4", "u1", time.Now()), time.Hour))

	for i := 0; i < 2; i++ {
		rec, err := f.svc.ReadStatus(ctx, "job-4")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusProcessing, rec.Status)
	}
}

func TestReadStatus_TerminalReadDeletes(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	now := time.Now()
	rec := model.NewProcessingRecord("job-5", "u1", now).Complete("https://x/a.mp4", now)
	require.NoError(t, f.store.Set(ctx, rec, time.Hour))

	got, err := f.svc.ReadStatus(ctx, "job-5")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	assert.Equal(t, "https://x/a.mp4", got.ResultURL)

	f.tracker.EXPECT().InFlight(gomock.Any(), "job-5").Return(false, nil)
	_, err = f.svc.ReadStatus(ctx, "job-5")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReadStatus_ReadGraceKeepsRecordBriefly(t *testing.T) {
	f := newFixture(t, 30*time.Second)
	ctx := context.Background()
	now := time.Now()
	rec := model.NewProcessingRecord("job-6", "u1", now).Fail("boom", now)
	require.NoError(t, f.store.Set(ctx, rec, time.Hour))

	for i := 0; i < 2; i++ {
		got, err := f.svc.ReadStatus(ctx, "job-6")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, got.Status)
	}

	ttl, ok := f.store.TTL("job-6")
	require.True(t, ok)
	assert.LessOrEqual(t, ttl, 30*time.Second)
}
