// Package queue is the public-facing API of the batch-job engine:
// enqueue, advance, cancel, retry-failed, status. It enforces the
// single-active-worker-per-job invariant through the store's claim
// lease and the job lifecycle transitions.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mbheramil/smart-seo-fixer/internal/coordinator"
	"github.com/mbheramil/smart-seo-fixer/internal/job"
	"github.com/mbheramil/smart-seo-fixer/internal/store"
)

// DefaultLease is how long one Advance call holds a job's claim. A
// worker that dies mid-chunk stops blocking the job once this expires.
const DefaultLease = 2 * time.Minute

// Manager owns the job lifecycle. Each Advance call claims under its
// own token, so concurrent calls for the same id conflict even through
// a single shared Manager; multiple Managers over the same store
// coexist safely too.
type Manager struct {
	store    store.Store
	coord    *coordinator.Coordinator
	instance string
	lease    time.Duration
}

func NewManager(st store.Store, coord *coordinator.Coordinator, lease time.Duration) *Manager {
	if lease <= 0 {
		lease = DefaultLease
	}
	return &Manager{
		store:    st,
		coord:    coord,
		instance: uuid.New().String(),
		lease:    lease,
	}
}

// Enqueue creates a job in pending status. The item list is fixed at
// creation and never reordered or mutated afterwards; options are
// passed verbatim to the processor for every item.
func (m *Manager) Enqueue(ctx context.Context, jobType string, items []string, opts job.Options) (*job.Job, error) {
	if jobType == "" {
		return nil, fmt.Errorf("job type required")
	}
	j := &job.Job{
		Type:    jobType,
		Status:  job.StatusPending,
		Items:   append([]string(nil), items...),
		Options: opts,
	}
	if err := m.store.Create(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// Advance does one chunk of work on the job. Calling it on a terminal
// job is a no-op returning the final snapshot. Concurrent Advance for
// the same id fails fast with job.ErrAlreadyRunning; the caller should
// not retry immediately. When the snapshot carries a RetryAfter, the
// caller must wait at least that long before calling again; Advance
// itself never blocks or sleeps.
func (m *Manager) Advance(ctx context.Context, id string) (coordinator.Snapshot, error) {
	j, err := m.store.Load(ctx, id)
	if err != nil {
		return coordinator.Snapshot{}, err
	}
	if job.Terminal(j.Status) {
		return coordinator.Snapshot{
			JobID:     j.ID,
			Status:    j.Status,
			Processed: j.ProcessedItems,
			Total:     j.TotalItems,
			Failed:    j.FailedItems,
			Done:      true,
		}, nil
	}

	// The claim token is unique per call, not per Manager: the store
	// treats a same-owner claim as a lease renewal, so reusing one
	// owner would let two concurrent Advance calls both win and run
	// the same chunk twice.
	owner := m.instance + "/" + uuid.New().String()
	if err := m.store.Claim(ctx, id, owner, time.Now().UTC().Add(m.lease)); err != nil {
		return coordinator.Snapshot{}, err
	}
	// Release on a detached context; a cancelled caller must not leave
	// the job claimed until the lease expires.
	defer m.store.Release(context.WithoutCancel(ctx), id, owner)

	// Reload under the claim; the pre-claim read may be stale if
	// another worker just finished a chunk.
	j, err = m.store.Load(ctx, id)
	if err != nil {
		return coordinator.Snapshot{}, err
	}
	if j.Status == job.StatusPending {
		if err := j.Transition(job.StatusProcessing); err != nil {
			return coordinator.Snapshot{}, err
		}
		if err := m.store.Save(ctx, j); err != nil {
			return coordinator.Snapshot{}, err
		}
	}

	return m.coord.RunChunk(ctx, id)
}

// Cancel requests cooperative cancellation. The flag is observed at
// the next chunk boundary; the in-flight chunk finishes first. Only
// non-terminal jobs can be cancelled.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	j, err := m.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if job.Terminal(j.Status) {
		return &job.TransitionError{ID: j.ID, From: j.Status, To: job.StatusCancelled}
	}
	return m.store.RequestCancel(ctx, id)
}

// RetryFailed creates a new job over the source job's failed items.
// The source job is never mutated, preserving audit history. Valid
// only for completed or failed jobs with a non-empty failed set.
func (m *Manager) RetryFailed(ctx context.Context, id string) (*job.Job, error) {
	src, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if src.Status != job.StatusCompleted && src.Status != job.StatusFailed {
		return nil, &job.TransitionError{ID: src.ID, From: src.Status, To: "retry_failed"}
	}
	if len(src.FailedItemRefs) == 0 {
		return nil, fmt.Errorf("job %s: %w", src.ID, job.ErrNoFailedItems)
	}
	retry := &job.Job{
		Type:        src.Type,
		Status:      job.StatusPending,
		Items:       append([]string(nil), src.FailedItemRefs...),
		Options:     src.Options,
		RetriedFrom: src.ID,
	}
	if err := m.store.Create(ctx, retry); err != nil {
		return nil, err
	}
	return retry, nil
}

// JobStatus is the progress view for the UI.
type JobStatus struct {
	ID        string `json:"id"`
	Type      string `json:"job_type"`
	Status    string `json:"status"`
	Processed int    `json:"processed_items"`
	Total     int    `json:"total_items"`
	Failed    int    `json:"failed_items"`
}

// Status returns live progress for one job. A job with failures and
// status completed means "ran to completion, some items need retry";
// status failed means "could not run at all".
func (m *Manager) Status(ctx context.Context, id string) (JobStatus, error) {
	j, err := m.store.Load(ctx, id)
	if err != nil {
		return JobStatus{}, err
	}
	return statusOf(j), nil
}

// List returns job summaries matching the filter, oldest first.
func (m *Manager) List(ctx context.Context, f store.Filter) ([]JobStatus, error) {
	jobs, err := m.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]JobStatus, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, statusOf(j))
	}
	return out, nil
}

func statusOf(j *job.Job) JobStatus {
	return JobStatus{
		ID:        j.ID,
		Type:      j.Type,
		Status:    j.Status,
		Processed: j.ProcessedItems,
		Total:     j.TotalItems,
		Failed:    j.FailedItems,
	}
}
