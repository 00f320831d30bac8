package store

import (
	"context"
	"errors"
	"time"

	"github.com/mbheramil/smart-seo-fixer/internal/job"
)

// ErrUnavailable wraps persistence-layer read/write failures. A chunk
// that hits it is aborted without touching durable counters, so the job
// stays resumable.
var ErrUnavailable = errors.New("store unavailable")

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status string
	Type   string
}

// Store is the sole source of truth for job state. Every chunk begins
// by reloading the job and ends by persisting it; the coordinator keeps
// no authoritative in-memory state across chunk boundaries.
type Store interface {
	// Create persists a new job, assigning an id if unset.
	Create(ctx context.Context, j *job.Job) error

	// Load retrieves a job by id, or job.ErrNotFound.
	Load(ctx context.Context, id string) (*job.Job, error)

	// Save overwrites the job's mutable fields (status, counters,
	// failed refs, completed_at). It never writes cancel_requested;
	// use RequestCancel so a cancel issued mid-chunk cannot be lost.
	Save(ctx context.Context, j *job.Job) error

	// RequestCancel sets the cancel flag. Observed by the coordinator
	// at the next chunk boundary.
	RequestCancel(ctx context.Context, id string) error

	// List returns jobs matching the filter, oldest first.
	List(ctx context.Context, f Filter) ([]*job.Job, error)

	// Claim takes the single-active-worker lease on a job, or returns
	// job.ErrAlreadyRunning if another live owner holds it. An expired
	// lease is reclaimable, and an owner may renew its own.
	Claim(ctx context.Context, id, owner string, until time.Time) error

	// Release drops the lease if owner still holds it.
	Release(ctx context.Context, id, owner string) error

	Close() error
}
