package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Publication is where a published file can be fetched
type Publication struct {
	URL string
	// Expires is how long the file stays hosted. Zero means it is not deleted.
	Expires time.Duration
}

// Publisher hands a finished media file to a hosting service and returns the
// URL clients should use. An empty URL with a nil error never happens.
type Publisher interface {
	Publish(ctx context.Context, path string) (Publication, error)
}

// DeletionScheduler removes a local file after a delay
type DeletionScheduler interface {
	ScheduleDeletion(ctx context.Context, path string, after time.Duration) error
}

// LocalPublisher serves clips from the download directory when no object
// storage is configured. Published files are deleted after the retention window.
type LocalPublisher struct {
	downloadDir string
	publicURL   string
	retention   time.Duration
	cleanup     DeletionScheduler
}

// NewLocalPublisher creates a publisher that moves files under downloadDir
func NewLocalPublisher(downloadDir, publicURL string, retention time.Duration, cleanup DeletionScheduler) *LocalPublisher {
	return &LocalPublisher{
		downloadDir: downloadDir,
		publicURL:   publicURL,
		retention:   retention,
		cleanup:     cleanup,
	}
}

func (p *LocalPublisher) Publish(ctx context.Context, path string) (Publication, error) {
	if err := os.MkdirAll(p.downloadDir, 0o755); err != nil {
		return Publication{}, fmt.Errorf("create download dir: %w", err)
	}

	name := filepath.Base(path)
	dest := filepath.Join(p.downloadDir, name)
	if err := moveFile(path, dest); err != nil {
		return Publication{}, fmt.Errorf("publish %s: %w", name, err)
	}

	pub := Publication{URL: fmt.Sprintf("%s/downloads/%s", p.publicURL, name)}
	if p.cleanup != nil {
		if err := p.cleanup.ScheduleDeletion(ctx, dest, p.retention); err != nil {
			_ = os.Remove(dest)
			return Publication{}, fmt.Errorf("schedule deletion of %s: %w", name, err)
		}
		pub.Expires = p.retention
	}
	return pub, nil
}

// moveFile renames src to dst, copying when they sit on different filesystems
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
