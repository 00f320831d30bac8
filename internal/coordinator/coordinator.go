// Package coordinator drives one job forward by one chunk per call.
// It keeps no authoritative state between calls: every chunk reloads
// the job from the store and ends by persisting it, so a crash between
// chunks loses at most one chunk's work.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mbheramil/smart-seo-fixer/internal/job"
	"github.com/mbheramil/smart-seo-fixer/internal/ratelimit"
	"github.com/mbheramil/smart-seo-fixer/internal/store"
)

// DefaultChunkSize bounds how many items one advance call attempts.
// External-API-bound work wants small chunks: backoff stays granular
// and a crash costs little.
const DefaultChunkSize = 5

// Processor performs the actual per-item transformation. The engine is
// parametric over it; the surrounding application registers one per
// job type. Before any external call the processor must go through
// the rate limiter and return the *ratelimit.Denial unwrapped so the
// coordinator can stop the chunk early.
type Processor interface {
	Process(ctx context.Context, item string, opts job.Options) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, item string, opts job.Options) error

func (f ProcessorFunc) Process(ctx context.Context, item string, opts job.Options) error {
	return f(ctx, item, opts)
}

// Registry maps job types to their processors.
type Registry struct {
	mu    sync.RWMutex
	procs map[string]Processor
}

func NewRegistry() *Registry {
	return &Registry{procs: make(map[string]Processor)}
}

func (r *Registry) Register(jobType string, p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs[jobType] = p
}

func (r *Registry) Lookup(jobType string) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.procs[jobType]
	return p, ok
}

// Snapshot is the progress view returned by every advance call.
type Snapshot struct {
	JobID      string        `json:"job_id"`
	Status     string        `json:"status"`
	Processed  int           `json:"processed_items"`
	Total      int           `json:"total_items"`
	Failed     int           `json:"failed_items"`
	Done       bool          `json:"done"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

func snapshotOf(j *job.Job) Snapshot {
	return Snapshot{
		JobID:     j.ID,
		Status:    j.Status,
		Processed: j.ProcessedItems,
		Total:     j.TotalItems,
		Failed:    j.FailedItems,
		Done:      job.Terminal(j.Status),
	}
}

// Coordinator runs chunks against a store and a processor registry.
type Coordinator struct {
	Store      store.Store
	Registry   *Registry
	ChunkSize  int            // global default, DefaultChunkSize if 0
	ChunkSizes map[string]int // per-job-type override
}

// chunkSize resolves the chunk length for a job: per-job option, then
// per-type config, then the global default.
func (c *Coordinator) chunkSize(j *job.Job) int {
	if v, ok := j.Options["chunk_size"]; ok {
		switch n := v.(type) {
		case float64:
			if n >= 1 {
				return int(n)
			}
		case int:
			if n >= 1 {
				return n
			}
		}
	}
	if n, ok := c.ChunkSizes[j.Type]; ok && n >= 1 {
		return n
	}
	if c.ChunkSize >= 1 {
		return c.ChunkSize
	}
	return DefaultChunkSize
}

// RunChunk advances the job by at most one chunk. The job must already
// be in processing status; terminal jobs are returned as-is (the call
// is idempotent on them). Items run strictly in list order and
// processed_items stays contiguous from the start of the item list, so
// resuming after a crash is just "continue from processed_items".
func (c *Coordinator) RunChunk(ctx context.Context, id string) (Snapshot, error) {
	j, err := c.Store.Load(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}

	if job.Terminal(j.Status) {
		return snapshotOf(j), nil
	}
	if j.Status != job.StatusProcessing {
		return snapshotOf(j), fmt.Errorf("job %s: cannot run chunk in status %s", j.ID, j.Status)
	}

	// Cancellation is cooperative: the flag is only observed here, at
	// the chunk boundary. Counters stay as of the cancellation point.
	if j.CancelRequested {
		if err := j.Transition(job.StatusCancelled); err != nil {
			return snapshotOf(j), err
		}
		if err := c.Store.Save(ctx, j); err != nil {
			return Snapshot{}, err
		}
		return snapshotOf(j), nil
	}

	if j.Remaining() == 0 {
		if err := j.Transition(job.StatusCompleted); err != nil {
			return snapshotOf(j), err
		}
		if err := c.Store.Save(ctx, j); err != nil {
			return Snapshot{}, err
		}
		return snapshotOf(j), nil
	}

	proc, ok := c.Registry.Lookup(j.Type)
	if !ok {
		// No processor is a coordinator-level error, not an item
		// failure: the job could not run at all.
		if err := j.Transition(job.StatusFailed); err != nil {
			return snapshotOf(j), err
		}
		if err := c.Store.Save(ctx, j); err != nil {
			return Snapshot{}, err
		}
		return snapshotOf(j), fmt.Errorf("job %s: no processor registered for type %q", j.ID, j.Type)
	}

	end := j.ProcessedItems + c.chunkSize(j)
	if end > j.TotalItems {
		end = j.TotalItems
	}

	var retryAfter time.Duration
	var denied, aborted bool
	for idx := j.ProcessedItems; idx < end; idx++ {
		if ctx.Err() != nil {
			// Caller cancelled mid-chunk. Stop before the next item;
			// the job resumes from processed_items.
			aborted = true
			break
		}

		item := j.Items[idx]
		err := proc.Process(ctx, item, j.Options)

		var denial *ratelimit.Denial
		if errors.As(err, &denial) {
			// Not a failure: stop the chunk before this item and tell
			// the caller when to come back. processed_items does not
			// advance past the last fully handled item.
			retryAfter = denial.RetryAfter
			denied = true
			break
		}
		if err != nil {
			j.RecordFailure(item)
			continue
		}
		j.RecordSuccess()
	}

	if !denied && !aborted && j.Remaining() == 0 {
		if err := j.Transition(job.StatusCompleted); err != nil {
			return snapshotOf(j), err
		}
	}

	// The counter write is detached from the caller's context so a
	// cancelled chunk still persists the items it finished.
	if err := c.Store.Save(context.WithoutCancel(ctx), j); err != nil {
		return Snapshot{}, err
	}

	snap := snapshotOf(j)
	snap.RetryAfter = retryAfter
	if aborted {
		return snap, ctx.Err()
	}
	return snap, nil
}
