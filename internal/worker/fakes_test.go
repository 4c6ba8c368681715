package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clipcast/api/internal/client"
)

// fakeExtractor writes files into the output dir instead of running yt-dlp
type fakeExtractor struct {
	files   []string
	err     error
	block   chan struct{} // when set, Extract waits for it to close
	dirs    chan string   // receives the output dir of each call, if set
	mu      sync.Mutex
	inputs  []client.ExtractInput
	running atomic.Int32
	peak    atomic.Int32
}

func (f *fakeExtractor) Extract(ctx context.Context, in client.ExtractInput) (*client.ExtractOutcome, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()

	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	if f.dirs != nil {
		f.dirs <- in.OutputDir
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}

	out := &client.ExtractOutcome{}
	for _, name := range f.files {
		path := filepath.Join(in.OutputDir, name)
		if err := os.WriteFile(path, []byte("media:"+name), 0o644); err != nil {
			return nil, err
		}
		out.Files = append(out.Files, path)
	}
	if len(out.Files) == 0 {
		return nil, errors.New("yt-dlp finished but no files were downloaded")
	}
	return out, nil
}

func (f *fakeExtractor) lastInput() client.ExtractInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputs[len(f.inputs)-1]
}

type fakePublisher struct {
	url       string
	expires   time.Duration
	err       error
	mu        sync.Mutex
	published []string
}

func (p *fakePublisher) Publish(ctx context.Context, path string) (client.Publication, error) {
	if _, err := os.Stat(path); err != nil {
		return client.Publication{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, filepath.Base(path))
	if p.err != nil {
		return client.Publication{}, p.err
	}
	return client.Publication{URL: p.url, Expires: p.expires}, nil
}

type scheduledDeletion struct {
	path  string
	after time.Duration
}

type fakeScheduler struct {
	mu        sync.Mutex
	err       error
	scheduled []scheduledDeletion
}

func (s *fakeScheduler) ScheduleDeletion(ctx context.Context, path string, after time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.scheduled = append(s.scheduled, scheduledDeletion{path: path, after: after})
	return nil
}
