package job

import (
	"errors"
	"fmt"
	"time"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// ErrNotFound is returned when a job id does not exist in the store.
var ErrNotFound = errors.New("job not found")

// ErrAlreadyRunning is returned when Advance is called for a job that
// another worker currently holds the claim on.
var ErrAlreadyRunning = errors.New("job already running")

// ErrNoFailedItems is returned by RetryFailed when the source job has
// nothing to retry.
var ErrNoFailedItems = errors.New("job has no failed items")

// Options is the caller-supplied configuration blob, passed verbatim to
// the processor for every item. The engine never interprets its keys
// except chunk_size (see queue.Manager).
type Options map[string]interface{}

// Job is one queued unit of bulk work over an ordered item list.
type Job struct {
	ID              string    `json:"id"`
	Type            string    `json:"job_type"`
	Status          string    `json:"status"`
	Items           []string  `json:"items"`
	Options         Options   `json:"options,omitempty"`
	TotalItems      int       `json:"total_items"`
	ProcessedItems  int       `json:"processed_items"`
	FailedItems     int       `json:"failed_items"`
	FailedItemRefs  []string  `json:"failed_item_refs,omitempty"`
	CancelRequested bool      `json:"cancel_requested"`
	RetriedFrom     string    `json:"retried_from,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	CompletedAt     time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the status admits no further transitions.
func Terminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// TransitionError reports an operation that is not legal for the job's
// current status. No state mutation has occurred when it is returned.
type TransitionError struct {
	ID   string
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %s: invalid transition: %s -> %s", e.ID, e.From, e.To)
}

// validTransition enforces the allowed lifecycle edges. processing may
// re-enter itself (one chunk per Advance call).
func validTransition(from, to string) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusCancelled
	case StatusProcessing:
		return to == StatusProcessing || Terminal(to)
	default:
		return false
	}
}

// Transition moves the job to the given status, stamping CompletedAt on
// terminal states. Completed jobs are never resurrected.
func (j *Job) Transition(to string) error {
	if j.Status == to && to == StatusProcessing {
		return nil
	}
	if !validTransition(j.Status, to) {
		return &TransitionError{ID: j.ID, From: j.Status, To: to}
	}
	j.Status = to
	if Terminal(to) {
		j.CompletedAt = time.Now().UTC()
	}
	return nil
}

// RecordSuccess accounts one successfully processed item.
func (j *Job) RecordSuccess() {
	j.ProcessedItems++
}

// RecordFailure accounts one failed item. A single item's failure never
// aborts the batch; it is counted and the item ref kept for retry.
func (j *Job) RecordFailure(ref string) {
	j.ProcessedItems++
	j.FailedItems++
	j.FailedItemRefs = append(j.FailedItemRefs, ref)
}

// Remaining returns how many items have not been attempted yet.
func (j *Job) Remaining() int {
	return j.TotalItems - j.ProcessedItems
}
