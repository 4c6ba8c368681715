package e2e

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clipcast/api/internal/apiclient"
	"github.com/clipcast/api/internal/cleanup"
	"github.com/clipcast/api/internal/client"
	"github.com/clipcast/api/internal/config"
	"github.com/clipcast/api/internal/handler"
	"github.com/clipcast/api/internal/model"
	"github.com/clipcast/api/internal/queue"
	"github.com/clipcast/api/internal/service"
	"github.com/clipcast/api/internal/store"
	"github.com/clipcast/api/internal/worker"
)

// scriptedTool stands in for the yt-dlp binary. It writes the files named by
// clip or playlist into the directory of the -o template.
type scriptedTool struct {
	mu       sync.Mutex
	playlist []string
	err      error
	calls    int
}

func (s *scriptedTool) script(tracks []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playlist, s.err = tracks, err
}

func (s *scriptedTool) runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *scriptedTool) Run(ctx context.Context, binary string, args []string, onStdout func(string)) error {
	s.mu.Lock()
	s.calls++
	tracks, runErr := s.playlist, s.err
	s.mu.Unlock()

	if runErr != nil {
		return runErr
	}

	var template string
	for i, a := range args {
		if a == "-o" && i+1 < len(args) {
			template = args[i+1]
		}
	}
	if template == "" {
		return errors.New("no output template")
	}
	dir := filepath.Dir(template)

	if strings.Contains(strings.Join(args, " "), "--download-sections") {
		name := strings.Replace(filepath.Base(template), "%(ext)s", "mp4", 1)
		return os.WriteFile(filepath.Join(dir, name), []byte("clip bytes"), 0o644)
	}
	for _, track := range tracks {
		if err := os.WriteFile(filepath.Join(dir, track), []byte("audio:"+track), 0o644); err != nil {
			return err
		}
	}
	if onStdout != nil {
		onStdout("[download] done")
	}
	return nil
}

// testStack is the whole service in local mode, listening on a loopback port
type testStack struct {
	baseURL     string
	api         *apiclient.Client
	tool        *scriptedTool
	store       *store.MemoryStatusStore
	downloadDir string
	workDir     string
}

func setupStack(t *testing.T) *testStack {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	baseURL := "http://" + ln.Addr().String()

	root := t.TempDir()
	cfg := config.WorkerConfig{ClipConcurrency: 5, PlaylistConcurrency: 2}
	workDir := filepath.Join(root, "work")
	downloadDir := filepath.Join(root, "downloads")
	require.NoError(t, os.MkdirAll(downloadDir, 0o755))

	logger := zap.NewNop()
	q := queue.NewLocalQueue(16, logger)
	st := store.NewMemoryStatusStore()
	timers := cleanup.NewTimerScheduler(logger)
	t.Cleanup(timers.Stop)

	tool := &scriptedTool{}
	ytdlp, err := client.NewYtDlp("yt-dlp", time.Minute, 10, logger, client.WithExecutor(tool))
	require.NoError(t, err)

	retention := time.Hour
	publisher := client.NewLocalPublisher(downloadDir, baseURL, 10*time.Minute, timers)
	handlers := worker.Handlers{
		Clip: worker.NewClipWorker(worker.NewPipeline(st, workDir, retention, logger), ytdlp, publisher, logger),
		Playlist: worker.NewPlaylistWorker(worker.NewPipeline(st, workDir, retention, logger), ytdlp, timers, worker.PlaylistOptions{
			DownloadDir:      downloadDir,
			PublicURL:        baseURL,
			ArchiveRetention: 10 * time.Minute,
		}, logger),
	}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		defer close(served)
		_ = worker.ServeLocal(ctx, q, cfg, handlers)
	}()

	svc := service.NewJobService(q, q, st, 0, logger)
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.RegisterRoutes(app, handler.NewJobHandler(svc, validator.New(), logger), downloadDir, nil)
	go func() { _ = app.Listener(ln) }()

	t.Cleanup(func() {
		_ = app.Shutdown()
		cancel()
		q.Close()
		<-served
	})

	return &testStack{
		baseURL:     baseURL,
		api:         apiclient.NewClient(baseURL, nil),
		tool:        tool,
		store:       st,
		downloadDir: downloadDir,
		workDir:     workDir,
	}
}

// waitTerminal polls a job until it completes or fails
func (s *testStack) waitTerminal(t *testing.T, jobID string) model.StatusResponse {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	handle := apiclient.NewPoller(s.api, 20*time.Millisecond).Start(ctx, jobID, nil)
	last, err := handle.Wait()
	require.NoError(t, err)
	require.NotNil(t, last)
	require.True(t, last.Status.IsTerminal(), "job %s ended as %s", jobID, last.Status)
	return *last
}
