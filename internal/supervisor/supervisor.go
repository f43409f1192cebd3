// Package supervisor runs a single claimed job: invoking the work function
// under a timeout, classifying the outcome as success, retry, or error, and
// finalizing through the Store (spec §4.4).
package supervisor

import (
	"context"
	"fmt"
	"log"
	"time"

	"oxenqueue/internal/codec"
	"oxenqueue/internal/store"
)

// Store is the subset of store.Store the Supervisor needs to finalize a job.
type Store interface {
	Finalize(ctx context.Context, id int64, status, result string) error
	Requeue(ctx context.Context, id int64, delay time.Duration) error
}

// WorkFunc is a user-supplied job handler. Its return value is success
// unless its encoded form carries the retry sentinel (spec §6); a returned
// error or an expired timeout classifies the job as failed.
type WorkFunc func(ctx context.Context, job store.Job) (any, error)

// Supervisor runs one job at a time through Run; it holds no per-job state
// between calls and is safe to reuse and share across goroutines.
type Supervisor struct {
	Store     Store
	Timeout   time.Duration
	Work      WorkFunc
	OnSuccess func(job store.Job, result any)
	OnError   func(job store.Job, err error)
}

type outcome struct {
	val any
	err error
}

// Run executes job to completion or timeout, whichever happens first, and
// finalizes the row accordingly. It never returns an error itself; failures
// talking to the Store are logged and the row is left for the recoverer.
func (s *Supervisor) Run(parent context.Context, job store.Job) {
	ctx, cancel := context.WithTimeout(parent, s.Timeout)
	defer cancel()

	resultCh := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- outcome{nil, fmt.Errorf("work function panicked: %v", r)}
			}
		}()
		v, err := s.Work(ctx, job)
		resultCh <- outcome{v, err}
	}()

	select {
	case <-ctx.Done():
		s.finalizeError(job, fmt.Errorf("job timed out after %s", s.Timeout), true)
	case o := <-resultCh:
		s.finishJob(job, o)
	}
}

func (s *Supervisor) finishJob(job store.Job, o outcome) {
	if o.err != nil {
		s.finalizeError(job, o.err, false)
		return
	}

	encoded, err := codec.Encode(o.val)
	if err != nil {
		s.finalizeError(job, fmt.Errorf("encode result: %w", err), false)
		return
	}

	if delay, ok := codec.IsRetrySentinel(encoded); ok {
		if err := s.Store.Requeue(context.Background(), job.ID, delay); err != nil {
			log.Printf("supervisor: requeue job %d: %v", job.ID, err)
		}
		return
	}

	if err := s.Store.Finalize(context.Background(), job.ID, "success", encoded); err != nil {
		log.Printf("supervisor: finalize success job %d: %v", job.ID, err)
	}
	s.safeCallback(func() {
		if s.OnSuccess != nil {
			s.OnSuccess(job, o.val)
		}
	})
}

func (s *Supervisor) finalizeError(job store.Job, cause error, isTimeout bool) {
	var desc string
	if isTimeout {
		desc = codec.EncodeTimeoutError(s.Timeout)
	} else {
		desc = codec.EncodeError(cause)
	}

	if err := s.Store.Finalize(context.Background(), job.ID, "error", desc); err != nil {
		log.Printf("supervisor: finalize error job %d: %v", job.ID, err)
	}
	s.safeCallback(func() {
		if s.OnError != nil {
			s.OnError(job, cause)
		}
	})
}

func (s *Supervisor) safeCallback(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("supervisor: user callback panicked: %v", r)
		}
	}()
	fn()
}
