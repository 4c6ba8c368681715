package apiclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clipcast/api/internal/model"
)

// DefaultPollInterval is how often a job's status is read
const DefaultPollInterval = 5 * time.Second

// maxConsecutiveErrors stops a poll loop whose API stays unreachable
const maxConsecutiveErrors = 3

// StatusReader is the part of Client the poll loop needs
type StatusReader interface {
	Status(ctx context.Context, jobID string) (*model.StatusResponse, error)
}

// Poller reads a job's status on a fixed interval until it settles
type Poller struct {
	reader   StatusReader
	interval time.Duration
}

// NewPoller creates a poller. A non-positive interval uses DefaultPollInterval.
func NewPoller(reader StatusReader, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{reader: reader, interval: interval}
}

// PollHandle controls one running poll loop
type PollHandle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	last *model.StatusResponse
	err  error
}

// Start polls jobID in the background. onUpdate sees every status read. The
// loop ends on a terminal or not_found status, after repeated read errors, or
// when the handle or ctx is cancelled.
func (p *Poller) Start(ctx context.Context, jobID string, onUpdate func(model.StatusResponse)) *PollHandle {
	ctx, cancel := context.WithCancel(ctx)
	h := &PollHandle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		defer cancel()
		h.finish(p.loop(ctx, jobID, onUpdate))
	}()
	return h
}

func (p *Poller) loop(ctx context.Context, jobID string, onUpdate func(model.StatusResponse)) (*model.StatusResponse, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var last *model.StatusResponse
	failures := 0
	for {
		status, err := p.reader.Status(ctx, jobID)
		switch {
		case ctx.Err() != nil:
			return last, ctx.Err()
		case err != nil:
			failures++
			if failures >= maxConsecutiveErrors {
				return last, fmt.Errorf("status of %s unavailable after %d attempts: %w", jobID, failures, err)
			}
		default:
			failures = 0
			last = status
			if onUpdate != nil {
				onUpdate(*status)
			}
			if settled(status.Status) {
				return last, nil
			}
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

func settled(s model.JobStatus) bool {
	return s.IsTerminal() || s == model.JobStatusNotFound
}

func (h *PollHandle) finish(last *model.StatusResponse, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = last
	h.err = err
}

// Cancel stops the loop before its next read
func (h *PollHandle) Cancel() {
	h.cancel()
}

// Done is closed when the loop has stopped
func (h *PollHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the loop stops and returns the last status read
func (h *PollHandle) Wait() (*model.StatusResponse, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last, h.err
}
