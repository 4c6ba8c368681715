package queue

import (
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipcast/api/internal/model"
)

func TestNewJobTask_DecodesBack(t *testing.T) {
	task, err := NewJobTask(model.JobKindClip, "job-1", model.ClipJobPayload{
		SourceURL: "https://video.example/x",
		Start:     "00:00:10",
		End:       "00:00:20",
		UserID:    "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, TaskTypeClip, task.Type())

	var payload model.ClipJobPayload
	jobID, err := DecodeTask(task, &payload)
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
	assert.Equal(t, "00:00:10", payload.Start)
	assert.Equal(t, "u1", payload.UserID)
}

func TestNewJobTask_UnknownKind(t *testing.T) {
	_, err := NewJobTask(model.JobKind("podcast"), "job-1", struct{}{})
	require.Error(t, err)
}

func TestDecodeTask_SkipsRetryOnGarbage(t *testing.T) {
	cases := map[string][]byte{
		"not json":  []byte("{"),
		"no job id": []byte(`{"payload":{}}`),
		"bad inner": []byte(`{"jobId":"j","payload":"oops"}`),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var payload model.PlaylistJobPayload
			_, err := DecodeTask(asynq.NewTask(TaskTypePlaylist, raw), &payload)
			require.Error(t, err)
			assert.True(t, errors.Is(err, asynq.SkipRetry))
		})
	}
}

func TestQueueFor(t *testing.T) {
	q, err := QueueFor(model.JobKindClip)
	require.NoError(t, err)
	assert.Equal(t, QueueClip, q)

	q, err = QueueFor(model.JobKindPlaylist)
	require.NoError(t, err)
	assert.Equal(t, QueuePlaylist, q)
}
