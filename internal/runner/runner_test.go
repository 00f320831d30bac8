package runner

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbheramil/smart-seo-fixer/internal/coordinator"
	"github.com/mbheramil/smart-seo-fixer/internal/job"
	"github.com/mbheramil/smart-seo-fixer/internal/queue"
	"github.com/mbheramil/smart-seo-fixer/internal/store"
)

func TestRunnerDrainsQueue(t *testing.T) {
	st := store.NewMemoryStore()
	reg := coordinator.NewRegistry()
	reg.Register("ai_fix", coordinator.ProcessorFunc(
		func(ctx context.Context, item string, opts job.Options) error {
			if item == "bad" {
				return fmt.Errorf("item %s: simulated failure", item)
			}
			return nil
		}))
	coord := &coordinator.Coordinator{Store: st, Registry: reg, ChunkSize: 2}
	mgr := queue.NewManager(st, coord, time.Minute)
	ctx := context.Background()

	j1, err := mgr.Enqueue(ctx, "ai_fix", []string{"a", "b", "bad", "c", "d"}, nil)
	require.NoError(t, err)
	j2, err := mgr.Enqueue(ctx, "ai_fix", []string{"x", "y"}, nil)
	require.NoError(t, err)

	r := New(1, mgr, st, 20*time.Millisecond)
	r.Start()

	deadline := time.After(5 * time.Second)
	for {
		s1, err := mgr.Status(ctx, j1.ID)
		require.NoError(t, err)
		s2, err := mgr.Status(ctx, j2.ID)
		require.NoError(t, err)
		if job.Terminal(s1.Status) && job.Terminal(s2.Status) {
			assert.Equal(t, job.StatusCompleted, s1.Status)
			assert.Equal(t, 5, s1.Processed)
			assert.Equal(t, 1, s1.Failed)
			assert.Equal(t, job.StatusCompleted, s2.Status)
			assert.Equal(t, 2, s2.Processed)
			break
		}
		select {
		case <-deadline:
			t.Fatalf("queue did not drain: %+v / %+v", s1, s2)
		case <-time.After(10 * time.Millisecond):
		}
	}

	r.Stop()
}

func TestRunnerStopsCleanly(t *testing.T) {
	st := store.NewMemoryStore()
	coord := &coordinator.Coordinator{Store: st, Registry: coordinator.NewRegistry()}
	mgr := queue.NewManager(st, coord, time.Minute)

	r := New(1, mgr, st, 10*time.Millisecond)
	r.Start()
	time.Sleep(30 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}
