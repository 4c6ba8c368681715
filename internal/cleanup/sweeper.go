package cleanup

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// Sweeper removes files a crashed process left behind: working directories
// nobody holds a lock on, and artifacts older than the retention window.
type Sweeper struct {
	WorkDir          string
	DownloadDir      string
	ArchiveRetention time.Duration
	Logger           *zap.Logger
}

// SweepResult counts what a sweep removed
type SweepResult struct {
	Workdirs  int
	Artifacts int
}

// Sweep runs once. Missing roots are skipped.
func (s *Sweeper) Sweep(now time.Time) (SweepResult, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var res SweepResult
	var errs []error

	n, err := s.sweepWorkdirs(logger)
	res.Workdirs = n
	errs = append(errs, err)

	n, err = s.sweepArtifacts(now, logger)
	res.Artifacts = n
	errs = append(errs, err)

	if res.Workdirs > 0 || res.Artifacts > 0 {
		logger.Info("sweep removed leftovers",
			zap.Int("workdirs", res.Workdirs),
			zap.Int("artifacts", res.Artifacts),
		)
	}
	return res, errors.Join(errs...)
}

func (s *Sweeper) sweepWorkdirs(logger *zap.Logger) (int, error) {
	if s.WorkDir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(s.WorkDir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(s.WorkDir, entry.Name())
		lockPath := path + ".lock"
		lock := flock.New(lockPath)
		ok, err := lock.TryLock()
		if err != nil || !ok {
			// a live pipeline owns it
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			logger.Warn("failed to remove stale workdir", zap.String("path", path), zap.Error(err))
		} else {
			removed++
		}
		_ = lock.Unlock()
		_ = os.Remove(lockPath)
	}
	return removed, nil
}

func (s *Sweeper) sweepArtifacts(now time.Time, logger *zap.Logger) (int, error) {
	if s.DownloadDir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(s.DownloadDir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := now.Add(-s.ArchiveRetention)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.DownloadDir, entry.Name())
		if err := RemoveArtifact(path); err != nil {
			logger.Warn("failed to remove expired artifact", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}
