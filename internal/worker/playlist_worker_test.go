package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipcast/api/internal/model"
	"github.com/clipcast/api/internal/queue"
	"github.com/clipcast/api/internal/store"
)

func playlistTask(t *testing.T, jobID, url string) *asynq.Task {
	t.Helper()
	task, err := queue.NewJobTask(model.JobKindPlaylist, jobID, model.PlaylistJobPayload{
		PlaylistURL: url,
		UserID:      "user-2",
	})
	require.NoError(t, err)
	return task
}

func newPlaylistWorker(t *testing.T, ex *fakeExtractor, sched *fakeScheduler) (*PlaylistWorker, *store.MemoryStatusStore, string, string) {
	t.Helper()
	p, st, workRoot := newTestPipeline(t)
	downloads := filepath.Join(t.TempDir(), "downloads")
	w := NewPlaylistWorker(p, ex, sched, PlaylistOptions{
		DownloadDir:      downloads,
		PublicURL:        "http://localhost:3000",
		ArchiveRetention: 10 * time.Minute,
	}, nil)
	return w, st, workRoot, downloads
}

func TestPlaylistWorker_Completes(t *testing.T) {
	ex := &fakeExtractor{files: []string{"Track One.mp3", "Track Two.mp3"}}
	sched := &fakeScheduler{}
	w, st, _, downloads := newPlaylistWorker(t, ex, sched)

	task := playlistTask(t, "pl1", "https://www.youtube.com/watch?v=x&list=PLabc&index=3")
	require.NoError(t, w.ProcessTask(context.Background(), task))

	assert.Equal(t, "https://www.youtube.com/playlist?list=PLabc", ex.lastInput().SourceURL)
	assert.True(t, ex.lastInput().Playlist)

	rec, err := st.Get(context.Background(), "pl1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, rec.Status)
	assert.Equal(t, "http://localhost:3000/downloads/pl1.zip", rec.ResultURL)
	assert.Empty(t, rec.Error)

	archivePath := filepath.Join(downloads, "pl1.zip")
	r, err := zip.OpenReader(archivePath)
	require.NoError(t, err)
	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	r.Close()
	assert.ElementsMatch(t, []string{"Track One.mp3", "Track Two.mp3"}, names)

	require.Len(t, sched.scheduled, 1)
	assert.Equal(t, scheduledDeletion{path: archivePath, after: 10 * time.Minute}, sched.scheduled[0])

	// the completed record never outlives the archive
	ttl, ok := st.TTL("pl1")
	require.True(t, ok)
	assert.LessOrEqual(t, ttl, 10*time.Minute)
}

func TestPlaylistWorker_LimitReachedLeavesNoPartialsInArchive(t *testing.T) {
	ex := &fakeExtractor{files: []string{"a.mp3", "b.mp3.part"}}
	w, st, _, downloads := newPlaylistWorker(t, ex, &fakeScheduler{})

	require.NoError(t, w.ProcessTask(context.Background(), playlistTask(t, "pl9", "https://www.youtube.com/playlist?list=PLabc")))

	rec, err := st.Get(context.Background(), "pl9")
	require.NoError(t, err)
	require.Equal(t, model.JobStatusCompleted, rec.Status)

	r, err := zip.OpenReader(filepath.Join(downloads, "pl9.zip"))
	require.NoError(t, err)
	defer r.Close()
	require.Len(t, r.File, 1)
	assert.Equal(t, "a.mp3", r.File[0].Name)
}

func TestPlaylistWorker_DownloadFailure(t *testing.T) {
	ex := &fakeExtractor{err: errors.New("yt-dlp failed: exited with code 1")}
	sched := &fakeScheduler{}
	w, st, workRoot, downloads := newPlaylistWorker(t, ex, sched)

	require.NoError(t, w.ProcessTask(context.Background(), playlistTask(t, "pl2", "https://www.youtube.com/playlist?list=PL2")))

	rec, err := st.Get(context.Background(), "pl2")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "playlist download failed")
	assert.Empty(t, rec.ResultURL)
	assert.NoFileExists(t, filepath.Join(downloads, "pl2.zip"))
	assert.Empty(t, sched.scheduled)
	assertWorkRootEmpty(t, workRoot)
}

func TestPlaylistWorker_ScheduleFailureDiscardsArchive(t *testing.T) {
	ex := &fakeExtractor{files: []string{"a.mp3"}}
	sched := &fakeScheduler{err: errors.New("redis down")}
	w, st, _, downloads := newPlaylistWorker(t, ex, sched)

	require.NoError(t, w.ProcessTask(context.Background(), playlistTask(t, "pl3", "https://www.youtube.com/playlist?list=PL3")))

	rec, err := st.Get(context.Background(), "pl3")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, rec.Status)
	assert.NoFileExists(t, filepath.Join(downloads, "pl3.zip"))
}
