// Package store holds the shared, expiring status records of jobs.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/clipcast/api/internal/model"
)

// ErrNotFound is returned for keys that never existed, expired or were deleted.
// Callers cannot tell these cases apart.
var ErrNotFound = errors.New("status record not found")

// StatusStore is a keyed store with per-key expiry
type StatusStore interface {
	// Set replaces the whole record and applies ttl.
	Set(ctx context.Context, rec *model.StatusRecord, ttl time.Duration) error
	Get(ctx context.Context, jobID string) (*model.StatusRecord, error)
	// Delete removes the record. Deleting a missing key is not an error.
	Delete(ctx context.Context, jobID string) error
	RefreshTTL(ctx context.Context, jobID string, ttl time.Duration) error
	// ShortenTTL lowers the remaining lifetime to ttl and never extends it.
	// A missing key is not an error.
	ShortenTTL(ctx context.Context, jobID string, ttl time.Duration) error
}

const statusKeyPrefix = "job:status:"

// StatusKey returns the store key for a job id
func StatusKey(jobID string) string {
	return statusKeyPrefix + jobID
}
