package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clipcast/api/internal/archive"
)

// Extractor runs the external media transformation for one job
type Extractor interface {
	Extract(ctx context.Context, in ExtractInput) (*ExtractOutcome, error)
}

// Section is a clip window in HH:MM:SS form
type Section struct {
	Start string
	End   string
}

// ExtractInput describes one extraction. Section set means clip extraction,
// Playlist set means bulk audio download.
type ExtractInput struct {
	JobID     string
	SourceURL string
	OutputDir string
	Section   *Section
	Playlist  bool
}

// ExtractOutcome lists the files the tool produced, sorted by name
type ExtractOutcome struct {
	Files []string
}

// exitMaxDownloads is yt-dlp's exit code when --max-downloads was reached
const exitMaxDownloads = 101

// YtDlp wraps the yt-dlp CLI
type YtDlp struct {
	binary           string
	timeout          time.Duration
	maxPlaylistItems int
	exec             Executor
	logger           *zap.Logger
}

// YtDlpOption configures the client
type YtDlpOption func(*YtDlp)

// WithExecutor injects a custom executor (primarily for tests)
func WithExecutor(exec Executor) YtDlpOption {
	return func(y *YtDlp) {
		if exec != nil {
			y.exec = exec
		}
	}
}

// NewYtDlp constructs a yt-dlp client. A zero timeout lets the tool run unbounded.
func NewYtDlp(binary string, timeout time.Duration, maxPlaylistItems int, logger *zap.Logger, opts ...YtDlpOption) (*YtDlp, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("yt-dlp binary required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	y := &YtDlp{
		binary:           binary,
		timeout:          timeout,
		maxPlaylistItems: maxPlaylistItems,
		exec:             commandExecutor{},
		logger:           logger,
	}
	for _, opt := range opts {
		opt(y)
	}
	return y, nil
}

// Extract runs yt-dlp and returns the files it left in OutputDir.
// Zero produced files is an error.
func (y *YtDlp) Extract(ctx context.Context, in ExtractInput) (*ExtractOutcome, error) {
	if in.OutputDir == "" {
		return nil, errors.New("output directory required")
	}
	if in.SourceURL == "" {
		return nil, errors.New("source url required")
	}

	args, err := y.buildArgs(in)
	if err != nil {
		return nil, err
	}

	runCtx := ctx
	if y.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, y.timeout)
		defer cancel()
	}

	log := y.logger.With(zap.String("job_id", in.JobID))
	log.Info("running yt-dlp", zap.Strings("args", args))

	err = y.exec.Run(runCtx, y.binary, args, func(line string) {
		log.Debug("yt-dlp", zap.String("line", line))
	})
	if err != nil && !isMaxDownloadsExit(err) {
		if runCtx.Err() != nil {
			return nil, fmt.Errorf("yt-dlp failed: %w", runCtx.Err())
		}
		return nil, fmt.Errorf("yt-dlp failed: %w", err)
	}

	files, err := listOutputFiles(in.OutputDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New("yt-dlp finished but no files were downloaded")
	}

	log.Info("yt-dlp finished", zap.Int("files", len(files)))
	return &ExtractOutcome{Files: files}, nil
}

func (y *YtDlp) buildArgs(in ExtractInput) ([]string, error) {
	switch {
	case in.Section != nil:
		if in.Section.Start == "" || in.Section.End == "" {
			return nil, errors.New("clip section requires start and end")
		}
		stem := "clip"
		if in.JobID != "" {
			stem = "clip-" + in.JobID
		}
		return []string{
			"--no-playlist",
			"--download-sections", fmt.Sprintf("*%s-%s", in.Section.Start, in.Section.End),
			"--remux-video", "mp4",
			"-o", filepath.Join(in.OutputDir, stem+".%(ext)s"),
			in.SourceURL,
		}, nil
	case in.Playlist:
		args := []string{
			"-x", "--audio-format", "mp3",
			"--yes-playlist",
		}
		if y.maxPlaylistItems > 0 {
			args = append(args, "--max-downloads", strconv.Itoa(y.maxPlaylistItems))
		}
		return append(args,
			"-o", filepath.Join(in.OutputDir, "%(title)s.%(ext)s"),
			in.SourceURL,
		), nil
	default:
		return nil, errors.New("extract input needs a section or the playlist flag")
	}
}

func isMaxDownloadsExit(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Code == exitMaxDownloads
}

// listOutputFiles returns finished files in dir, skipping yt-dlp partials
func listOutputFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read output dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if archive.IsPartial(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}
