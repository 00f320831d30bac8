package job

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleForwardOnly(t *testing.T) {
	j := &Job{ID: "j1", Status: StatusPending}

	require.NoError(t, j.Transition(StatusProcessing))
	// processing may re-enter itself, one chunk per advance
	require.NoError(t, j.Transition(StatusProcessing))
	require.NoError(t, j.Transition(StatusCompleted))
	assert.False(t, j.CompletedAt.IsZero())

	// no resurrection of a completed job
	err := j.Transition(StatusProcessing)
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, StatusCompleted, te.From)
	assert.Equal(t, StatusProcessing, te.To)
	assert.Equal(t, StatusCompleted, j.Status)
}

func TestPendingCannotComplete(t *testing.T) {
	j := &Job{ID: "j2", Status: StatusPending}
	err := j.Transition(StatusCompleted)
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, StatusPending, j.Status)
}

func TestPendingCanCancel(t *testing.T) {
	j := &Job{ID: "j3", Status: StatusPending}
	require.NoError(t, j.Transition(StatusCancelled))
	assert.True(t, Terminal(j.Status))
}

func TestCounters(t *testing.T) {
	j := &Job{Items: []string{"a", "b", "c"}, TotalItems: 3}

	j.RecordSuccess()
	j.RecordFailure("b")
	assert.Equal(t, 2, j.ProcessedItems)
	assert.Equal(t, 1, j.FailedItems)
	assert.Equal(t, []string{"b"}, j.FailedItemRefs)
	assert.Equal(t, 1, j.Remaining())

	// invariants from the progress contract
	assert.LessOrEqual(t, j.ProcessedItems, j.TotalItems)
	assert.LessOrEqual(t, j.FailedItems, j.ProcessedItems)
}
