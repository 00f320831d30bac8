// Package runner is the long-lived driver: it sweeps eligible jobs and
// advances each one chunk at a time until the queue drains or Stop is
// called. The short-lived alternative (a client loop calling Advance
// until done) lives in the CLI; both respect the snapshot's RetryAfter.
package runner

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/mbheramil/smart-seo-fixer/internal/job"
	"github.com/mbheramil/smart-seo-fixer/internal/queue"
	"github.com/mbheramil/smart-seo-fixer/internal/store"
)

// Runner sweeps pending and processing jobs on an interval.
type Runner struct {
	id     int
	mgr    *queue.Manager
	store  store.Store
	poll   time.Duration
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// next eligible advance time per job, from RetryAfter backoffs
	backoff map[string]time.Time
}

func New(id int, mgr *queue.Manager, st store.Store, poll time.Duration) *Runner {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		id:      id,
		mgr:     mgr,
		store:   st,
		poll:    poll,
		ctx:     ctx,
		cancel:  cancel,
		backoff: make(map[string]time.Time),
	}
}

func (r *Runner) Start() {
	r.wg.Add(1)
	go r.loop()
}

func (r *Runner) loop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			log.Printf("runner %d: shutting down", r.id)
			return
		default:
			if !r.sweep() {
				// nothing advanced; wait before polling again
				select {
				case <-r.ctx.Done():
				case <-time.After(r.poll):
				}
			}
		}
	}
}

// sweep advances every eligible job by one chunk. Returns true if any
// job made progress.
func (r *Runner) sweep() bool {
	now := time.Now()
	advanced := false
	for _, status := range []string{job.StatusPending, job.StatusProcessing} {
		jobs, err := r.store.List(r.ctx, store.Filter{Status: status})
		if err != nil {
			log.Printf("runner %d: list: %v", r.id, err)
			return false
		}
		for _, j := range jobs {
			if r.ctx.Err() != nil {
				return advanced
			}
			if until, ok := r.backoff[j.ID]; ok && now.Before(until) {
				continue
			}
			snap, err := r.mgr.Advance(r.ctx, j.ID)
			switch {
			case errors.Is(err, job.ErrAlreadyRunning):
				// another worker holds the claim
				continue
			case err != nil:
				log.Printf("runner %d: advance %s: %v", r.id, j.ID, err)
				r.backoff[j.ID] = now.Add(time.Second)
				continue
			}
			advanced = true
			if snap.Done {
				delete(r.backoff, j.ID)
				log.Printf("runner %d: job %s %s (%d/%d, %d failed)",
					r.id, j.ID, snap.Status, snap.Processed, snap.Total, snap.Failed)
				continue
			}
			if snap.RetryAfter < 0 {
				log.Printf("runner %d: job %s blocked by unconfigured rate budget; parking", r.id, j.ID)
				r.backoff[j.ID] = now.Add(time.Hour)
			} else if snap.RetryAfter > 0 {
				r.backoff[j.ID] = now.Add(snap.RetryAfter)
			}
		}
	}
	return advanced
}

func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
}
