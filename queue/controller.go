// Package queue is the composition root: Controller wires the Store,
// Adaptive Poller, Dispatcher, Job Supervisor, and Stuck-job Recoverer
// together behind a single-job_type API (spec §4.6).
package queue

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/jmoiron/sqlx"

	"oxenqueue/internal/dispatcher"
	"oxenqueue/internal/hash"
	"oxenqueue/internal/poller"
	"oxenqueue/internal/recoverer"
	"oxenqueue/internal/store"
	"oxenqueue/internal/supervisor"
)

// Controller is the process-facing handle for one job_type. The caller
// provides and owns the connection pool; Controller never creates one
// itself (the driver and pooling are an external collaborator, spec §1).
type Controller struct {
	db      *sqlx.DB
	jobType string
	cfg     Config
	store   *store.Store

	mu         sync.Mutex
	dispatcher *dispatcher.Dispatcher
	runCancel  context.CancelFunc
}

// New builds a Controller bound to jobType against db. cfg is validated,
// defaults applied, and declared extra fields are checked against the
// table's actual columns before returning.
func New(ctx context.Context, db *sqlx.DB, jobType string, cfg Config) (*Controller, error) {
	if jobType == "" {
		return nil, fmt.Errorf("queue: jobType is required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st := store.New(db, cfg.Table, cfg.ExtraFields)
	if err := st.ValidateExtraFields(ctx); err != nil {
		return nil, err
	}

	return &Controller{
		db:      db,
		jobType: jobType,
		cfg:     cfg,
		store:   st,
	}, nil
}

// Enqueue inserts a single job, returning whether it was deduplicated
// against a live unique_key rather than persisted.
func (c *Controller) Enqueue(ctx context.Context, in EnqueueInput) (EnqueueResult, error) {
	id, dedup, err := c.store.Enqueue(ctx, c.toStoreInput(in))
	if err != nil {
		return EnqueueResult{}, err
	}
	return EnqueueResult{ID: id, Deduplicated: dedup}, nil
}

// EnqueueMany inserts a batch in one transaction; conflicting unique_key rows
// are silently dropped and do not fail the call (spec §4.1).
func (c *Controller) EnqueueMany(ctx context.Context, inputs []EnqueueInput) (inserted int, err error) {
	storeInputs := make([]store.EnqueueInput, len(inputs))
	for i, in := range inputs {
		storeInputs[i] = c.toStoreInput(in)
	}
	return c.store.EnqueueMany(ctx, storeInputs)
}

func (c *Controller) toStoreInput(in EnqueueInput) store.EnqueueInput {
	var uniqueKeyHash *uint32
	if in.UniqueKey != nil {
		h := hash.UniqueKey(*in.UniqueKey)
		uniqueKeyHash = &h
	}
	return store.EnqueueInput{
		JobType:       c.jobType,
		Body:          in.Body,
		Priority:      in.Priority,
		UniqueKeyHash: uniqueKeyHash,
		StartAt:       in.StartAt,
		Extra:         in.Extra,
	}
}

// StartProcessing validates pcfg, wires the Adaptive Poller, Dispatcher,
// Job Supervisor, and (unless disabled) the Stuck-job Recoverer, and begins
// the claim loop on its own goroutine.
func (c *Controller) StartProcessing(pcfg ProcessorConfig) error {
	pcfg = pcfg.withDefaults()
	if err := pcfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dispatcher != nil {
		return fmt.Errorf("queue: processing already started for job_type %q", c.jobType)
	}

	sup := &supervisor.Supervisor{
		Store:   c.store,
		Timeout: pcfg.Timeout,
		Work: func(ctx context.Context, job store.Job) (any, error) {
			return pcfg.WorkFn(ctx, fromStoreJob(job))
		},
		OnSuccess: func(job store.Job, result any) {
			if pcfg.OnSuccess != nil {
				pcfg.OnSuccess(fromStoreJob(job), result)
			}
		},
		OnError: func(job store.Job, err error) {
			if pcfg.OnError != nil {
				pcfg.OnError(fromStoreJob(job), err)
			}
		},
	}

	pl := poller.New(c.cfg.FastestPollingRate, c.cfg.SlowestPollingRate, c.cfg.PollingBackoffRate)
	d := dispatcher.New(c.jobType, pcfg.Concurrency, c.store, pl, func(job store.Job) {
		sup.Run(context.Background(), job)
	})

	ctx, cancel := context.WithCancel(context.Background())
	c.dispatcher = d
	c.runCancel = cancel

	go d.Run(ctx)

	if pcfg.recoverStuckJobs() {
		rec := &recoverer.Recoverer{
			Store:     c.store,
			JobType:   c.jobType,
			Threshold: pcfg.RecoveryThreshold,
			Interval:  pcfg.RecoveryInterval,
		}
		go rec.Run(ctx)
	}

	return nil
}

// StopProcessing signals the Dispatcher to stop issuing new claims and
// blocks until every in-flight job has finalized, or ctx is cancelled
// first. It does not cancel running jobs (spec §4.3's graceful drain).
func (c *Controller) StopProcessing(ctx context.Context) error {
	c.mu.Lock()
	d := c.dispatcher
	c.mu.Unlock()
	if d == nil {
		return nil
	}

	d.Stop()
	return d.Drain(ctx)
}

// Shutdown stops processing and closes the connection pool. Callers that
// want to keep the pool open after draining should call StopProcessing
// directly instead.
func (c *Controller) Shutdown(ctx context.Context) error {
	if err := c.StopProcessing(ctx); err != nil {
		log.Printf("queue[%s]: shutdown: drain did not complete cleanly: %v", c.jobType, err)
	}

	c.mu.Lock()
	if c.runCancel != nil {
		c.runCancel()
	}
	c.mu.Unlock()

	return c.db.Close()
}

// Debug returns a snapshot of the Dispatcher's current mutable state.
// Processing must have been started; otherwise the zero value is returned.
func (c *Controller) Debug() DebugSnapshot {
	c.mu.Lock()
	d := c.dispatcher
	c.mu.Unlock()
	if d == nil {
		return DebugSnapshot{}
	}
	snap := d.Debug()
	return DebugSnapshot{Inflight: snap.Inflight, Fetching: snap.Fetching, CurrentBatchIDs: snap.CurrentBatchIDs}
}
