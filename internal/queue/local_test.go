package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipcast/api/internal/model"
)

type blockingHandler struct {
	release chan struct{}
	active  atomic.Int32
	peak    atomic.Int32
	done    sync.WaitGroup
}

func (h *blockingHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	defer h.done.Done()
	n := h.active.Add(1)
	for {
		peak := h.peak.Load()
		if n <= peak || h.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	<-h.release
	h.active.Add(-1)
	return nil
}

func TestLocalQueue_BoundsConcurrency(t *testing.T) {
	q := NewLocalQueue(20, nil)
	h := &blockingHandler{release: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		_ = q.Serve(ctx, model.JobKindPlaylist, 2, h)
		close(served)
	}()

	var ids []string
	for i := 0; i < 6; i++ {
		h.done.Add(1)
		id, err := q.Enqueue(ctx, model.JobKindPlaylist, model.PlaylistJobPayload{PlaylistURL: "u", UserID: "u1"})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	assert.Eventually(t, func() bool { return h.active.Load() == 2 }, time.Second, 5*time.Millisecond)
	for _, id := range ids {
		inFlight, err := q.InFlight(ctx, id)
		require.NoError(t, err)
		assert.True(t, inFlight)
	}

	close(h.release)
	h.done.Wait()
	assert.Equal(t, int32(2), h.peak.Load())

	assert.Eventually(t, func() bool {
		inFlight, _ := q.InFlight(ctx, ids[len(ids)-1])
		return !inFlight
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-served
}

func TestLocalQueue_RejectsWhenFullOrClosed(t *testing.T) {
	q := NewLocalQueue(1, nil)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, model.JobKindClip, model.ClipJobPayload{SourceURL: "u"})
	require.NoError(t, err)

	_, err = q.Enqueue(ctx, model.JobKindClip, model.ClipJobPayload{SourceURL: "u"})
	assert.ErrorIs(t, err, ErrEnqueue)

	_, err = q.Enqueue(ctx, model.JobKind("bogus"), nil)
	assert.ErrorIs(t, err, ErrEnqueue)

	q.Close()
	_, err = q.Enqueue(ctx, model.JobKindPlaylist, model.PlaylistJobPayload{PlaylistURL: "u"})
	assert.ErrorIs(t, err, ErrEnqueue)
}

func TestLocalQueue_UndecodableTaskStillLeavesFlight(t *testing.T) {
	q := NewLocalQueue(4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	h := asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		calls.Add(1)
		var payload model.ClipJobPayload
		_, err := DecodeTask(t, &payload)
		return err
	})
	served := make(chan struct{})
	go func() {
		_ = q.Serve(ctx, model.JobKindClip, 1, h)
		close(served)
	}()

	bad := asynq.NewTask(TaskTypeClip, []byte("not json"))
	require.NoError(t, q.push(ctx, model.JobKindClip, localJob{id: "bad1", task: bad}))

	assert.Eventually(t, func() bool {
		inFlight, _ := q.InFlight(ctx, "bad1")
		return !inFlight && calls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-served
}
