package queue

import (
	"context"
	"time"

	"oxenqueue/internal/store"
)

// Job is the read-only view of a job row handed to a work function and to
// success/error callbacks. It never exposes the internal batch_id handle.
type Job struct {
	ID        int64
	JobType   string
	Body      string
	Priority  int64
	CreatedAt time.Time
	StartedAt *time.Time
	Status    string
	Recovered bool
}

func fromStoreJob(j store.Job) Job {
	var startedAt *time.Time
	if j.StartedTs.Valid {
		t := j.StartedTs.Time
		startedAt = &t
	}
	return Job{
		ID:        j.ID,
		JobType:   j.JobType,
		Body:      j.Body,
		Priority:  j.Priority,
		CreatedAt: j.CreatedTs,
		StartedAt: startedAt,
		Status:    j.Status,
		Recovered: j.Recovered,
	}
}

// WorkFunc is the user-supplied job handler. Its return value is encoded
// and treated as success unless it carries the retry sentinel shape
// (spec §6); a returned error or an expired Timeout classifies the job as
// failed.
type WorkFunc func(ctx context.Context, job Job) (any, error)

// SuccessFunc is invoked after a job finalizes successfully.
type SuccessFunc func(job Job, result any)

// ErrorFunc is invoked after a job finalizes as failed (work error or
// timeout).
type ErrorFunc func(job Job, err error)

// EnqueueInput describes a job to enqueue. UniqueKey, when set, is hashed
// into the table's 32-bit unique_key column (spec §4.10); only one live row
// may exist per key.
type EnqueueInput struct {
	Body      string
	Priority  *int64
	UniqueKey *string
	StartAt   *time.Time
	Extra     map[string]any
}

// EnqueueResult reports the outcome of a single enqueue.
type EnqueueResult struct {
	ID           int64
	Deduplicated bool
}

// DebugSnapshot is the introspection view Controller.Debug returns.
type DebugSnapshot struct {
	Inflight        int
	Fetching        bool
	CurrentBatchIDs []int64
}
