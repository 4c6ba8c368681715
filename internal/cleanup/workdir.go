// Package cleanup owns the lifetime of per-job files: working directories and
// published artifacts waiting for their retention window to pass.
package cleanup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// ErrWorkdirBusy is returned when another pipeline holds the job's directory
var ErrWorkdirBusy = errors.New("working directory is in use")

// Workdir is a job's exclusive scratch directory
type Workdir struct {
	path     string
	lockPath string
	lock     *flock.Flock
	once     sync.Once
	err      error
}

// AcquireWorkdir creates base/jobID and holds an exclusive lock on
// base/jobID.lock until Release. Leftovers of an earlier attempt at the same
// job are wiped so every run starts empty.
func AcquireWorkdir(base, jobID string) (*Workdir, error) {
	if jobID == "" || jobID != filepath.Base(jobID) || jobID == "." || jobID == ".." {
		return nil, fmt.Errorf("invalid job id %q for working directory", jobID)
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create work root: %w", err)
	}

	path := filepath.Join(base, jobID)
	lockPath := path + ".lock"
	lock := flock.New(lockPath)

	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire workdir lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkdirBusy, jobID)
	}

	if err := os.RemoveAll(path); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("clear stale workdir: %w", err)
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("create workdir: %w", err)
	}

	return &Workdir{path: path, lockPath: lockPath, lock: lock}, nil
}

// Path returns the directory the job writes into
func (w *Workdir) Path() string {
	return w.path
}

// Release removes the directory and its lock. Calling it again, or after the
// directory was already removed, returns the first result.
func (w *Workdir) Release() error {
	w.once.Do(func() {
		var errs []error
		if err := os.RemoveAll(w.path); err != nil {
			errs = append(errs, fmt.Errorf("remove workdir: %w", err))
		}
		if err := w.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("release workdir lock: %w", err))
		}
		if err := os.Remove(w.lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove workdir lock: %w", err))
		}
		w.err = errors.Join(errs...)
	})
	return w.err
}
