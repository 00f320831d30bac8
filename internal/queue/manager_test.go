package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbheramil/smart-seo-fixer/internal/coordinator"
	"github.com/mbheramil/smart-seo-fixer/internal/job"
	"github.com/mbheramil/smart-seo-fixer/internal/store"
)

func newTestManager(t *testing.T, failOn map[string]bool) (*Manager, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	reg := coordinator.NewRegistry()
	reg.Register("ai_fix", coordinator.ProcessorFunc(
		func(ctx context.Context, item string, opts job.Options) error {
			if failOn[item] {
				return fmt.Errorf("item %s: simulated failure", item)
			}
			return nil
		}))
	coord := &coordinator.Coordinator{Store: st, Registry: reg, ChunkSize: 5}
	return NewManager(st, coord, time.Minute), st
}

func TestEnqueueCreatesPending(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	j, err := mgr.Enqueue(context.Background(), "ai_fix", []string{"a", "b"}, job.Options{"overwrite": true})
	require.NoError(t, err)
	assert.NotEmpty(t, j.ID)
	assert.Equal(t, job.StatusPending, j.Status)
	assert.Equal(t, 2, j.TotalItems)
	assert.Equal(t, 0, j.ProcessedItems)
}

func TestAdvanceRunsToCompletion(t *testing.T) {
	mgr, _ := newTestManager(t, map[string]bool{"b": true})
	ctx := context.Background()

	j, err := mgr.Enqueue(ctx, "ai_fix", []string{"a", "b", "c", "d", "e", "f", "g"}, nil)
	require.NoError(t, err)

	snap, err := mgr.Advance(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusProcessing, snap.Status)
	assert.Equal(t, 5, snap.Processed)
	assert.Equal(t, 1, snap.Failed)

	snap, err = mgr.Advance(ctx, j.ID)
	require.NoError(t, err)
	assert.True(t, snap.Done)
	assert.Equal(t, job.StatusCompleted, snap.Status)
	assert.Equal(t, 7, snap.Processed)

	// terminal advance is a no-op returning the final snapshot
	again, err := mgr.Advance(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.Processed, again.Processed)
	assert.Equal(t, snap.Status, again.Status)
}

func TestAdvanceFailsFastWhenClaimed(t *testing.T) {
	mgr, st := newTestManager(t, nil)
	ctx := context.Background()

	j, err := mgr.Enqueue(ctx, "ai_fix", []string{"a"}, nil)
	require.NoError(t, err)

	// another worker holds the claim
	require.NoError(t, st.Claim(ctx, j.ID, "other-worker", time.Now().Add(time.Minute)))

	_, err = mgr.Advance(ctx, j.ID)
	assert.ErrorIs(t, err, job.ErrAlreadyRunning)
}

func TestConcurrentAdvanceSameManager(t *testing.T) {
	st := store.NewMemoryStore()

	var mu sync.Mutex
	counts := map[string]int{}
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	reg := coordinator.NewRegistry()
	reg.Register("ai_fix", coordinator.ProcessorFunc(
		func(ctx context.Context, item string, opts job.Options) error {
			once.Do(func() { close(started) })
			<-release
			mu.Lock()
			counts[item]++
			mu.Unlock()
			return nil
		}))
	coord := &coordinator.Coordinator{Store: st, Registry: reg, ChunkSize: 5}
	mgr := NewManager(st, coord, time.Minute)
	ctx := context.Background()

	j, err := mgr.Enqueue(ctx, "ai_fix", []string{"a", "b"}, nil)
	require.NoError(t, err)

	firstDone := make(chan error, 1)
	go func() {
		_, err := mgr.Advance(ctx, j.ID)
		firstDone <- err
	}()
	<-started

	// second call through the same Manager while the first holds the
	// claim must fail fast, not run the chunk again
	_, err = mgr.Advance(ctx, j.ID)
	assert.ErrorIs(t, err, job.ErrAlreadyRunning)

	close(release)
	require.NoError(t, <-firstDone)

	assert.Equal(t, map[string]int{"a": 1, "b": 1}, counts, "each item processed exactly once")
}

func TestAdvanceUnknownJob(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	_, err := mgr.Advance(context.Background(), "nope")
	assert.ErrorIs(t, err, job.ErrNotFound)
}

func TestCancelThenAdvance(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	ctx := context.Background()

	j, err := mgr.Enqueue(ctx, "ai_fix", []string{"a", "b", "c", "d", "e", "f"}, nil)
	require.NoError(t, err)

	snap, err := mgr.Advance(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, 5, snap.Processed)

	require.NoError(t, mgr.Cancel(ctx, j.ID))

	snap, err = mgr.Advance(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, snap.Status)
	assert.Equal(t, 5, snap.Processed, "counters kept as of cancellation")
}

func TestCancelTerminalJobRejected(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	ctx := context.Background()

	j, err := mgr.Enqueue(ctx, "ai_fix", []string{"a"}, nil)
	require.NoError(t, err)
	snap, err := mgr.Advance(ctx, j.ID)
	require.NoError(t, err)
	require.True(t, snap.Done)

	err = mgr.Cancel(ctx, j.ID)
	var te *job.TransitionError
	assert.True(t, errors.As(err, &te))
}

func TestRetryFailed(t *testing.T) {
	mgr, _ := newTestManager(t, map[string]bool{"b": true, "d": true})
	ctx := context.Background()

	j, err := mgr.Enqueue(ctx, "ai_fix", []string{"a", "b", "c", "d"}, job.Options{"overwrite": true})
	require.NoError(t, err)
	snap, err := mgr.Advance(ctx, j.ID)
	require.NoError(t, err)
	require.True(t, snap.Done)
	require.Equal(t, 2, snap.Failed)

	retry, err := mgr.RetryFailed(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "d"}, retry.Items)
	assert.Equal(t, "ai_fix", retry.Type)
	assert.Equal(t, j.ID, retry.RetriedFrom)
	assert.Equal(t, job.Options{"overwrite": true}, retry.Options)

	// the source job is never mutated
	src, err := mgr.Status(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, src.Status)
	assert.Equal(t, 2, src.Failed)
}

func TestRetryFailedInvalidStates(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	ctx := context.Background()

	// pending job: not legal yet
	j, err := mgr.Enqueue(ctx, "ai_fix", []string{"a"}, nil)
	require.NoError(t, err)
	_, err = mgr.RetryFailed(ctx, j.ID)
	var te *job.TransitionError
	assert.True(t, errors.As(err, &te))

	// completed with zero failures: nothing to retry
	snap, err := mgr.Advance(ctx, j.ID)
	require.NoError(t, err)
	require.True(t, snap.Done)
	_, err = mgr.RetryFailed(ctx, j.ID)
	assert.ErrorIs(t, err, job.ErrNoFailedItems)
}

func TestStatusAndList(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	ctx := context.Background()

	j1, err := mgr.Enqueue(ctx, "ai_fix", []string{"a"}, nil)
	require.NoError(t, err)
	_, err = mgr.Enqueue(ctx, "ai_fix", []string{"b"}, nil)
	require.NoError(t, err)

	_, err = mgr.Advance(ctx, j1.ID)
	require.NoError(t, err)

	st, err := mgr.Status(ctx, j1.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, st.Status)
	assert.Equal(t, 1, st.Processed)

	pending, err := mgr.List(ctx, store.Filter{Status: job.StatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
