// Package dispatcher owns a bounded set of in-flight jobs for one job_type:
// it requests batches sized to available concurrency, hands claimed jobs off
// asynchronously, and reports the outcome (found/empty) to the poller
// (spec §4.3).
package dispatcher

import (
	"context"
	"log"
	"sync"

	"oxenqueue/internal/store"
)

// Store is the subset of store.Store the Dispatcher needs.
type Store interface {
	Claim(ctx context.Context, jobType string, n int) ([]store.Job, error)
}

// Poller is the subset of poller.Poller the Dispatcher drives.
type Poller interface {
	ScheduleNext(ctx context.Context) error
	Report(found int)
}

// Snapshot is the introspection view returned by Debug.
type Snapshot struct {
	Inflight        int
	Fetching        bool
	CurrentBatchIDs []int64
}

// Dispatcher is the per-job_type claim/dispatch loop. inflight and fetching
// are mutated only from Run's own goroutine and the completion callbacks it
// spawns, all synchronized through mu/cond.
type Dispatcher struct {
	jobType     string
	concurrency int
	store       Store
	poller      Poller
	handle      func(store.Job)

	mu        sync.Mutex
	cond      *sync.Cond
	inflight  int
	fetching  bool
	stopping  bool
	batchIDs  map[int64]struct{}
	wg        sync.WaitGroup
}

// New builds a Dispatcher for jobType, bounded to concurrency in-flight
// jobs. handle is invoked once per claimed job, on its own goroutine; it is
// expected to finalize or requeue the job itself (the Job Supervisor).
func New(jobType string, concurrency int, st Store, pl Poller, handle func(store.Job)) *Dispatcher {
	d := &Dispatcher{
		jobType:     jobType,
		concurrency: concurrency,
		store:       st,
		poller:      pl,
		handle:      handle,
		batchIDs:    make(map[int64]struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Run drives the claim loop until ctx is cancelled or Stop is called. It
// never issues two claims concurrently and never requests more than the
// free slot count.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		d.mu.Lock()
		for !d.stopping && (d.inflight >= d.concurrency || d.fetching) {
			d.cond.Wait()
		}
		if d.stopping {
			d.mu.Unlock()
			return
		}
		d.fetching = true
		free := d.concurrency - d.inflight
		d.mu.Unlock()

		if err := d.poller.ScheduleNext(ctx); err != nil {
			d.mu.Lock()
			d.fetching = false
			d.cond.Broadcast()
			d.mu.Unlock()
			return
		}

		d.mu.Lock()
		if d.stopping {
			d.fetching = false
			d.cond.Broadcast()
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()

		jobs, err := d.store.Claim(ctx, d.jobType, free)
		if err != nil {
			log.Printf("dispatcher[%s]: claim failed, backing off: %v", d.jobType, err)
			d.mu.Lock()
			d.fetching = false
			d.cond.Broadcast()
			d.mu.Unlock()
			d.poller.Report(0)
			continue
		}

		d.mu.Lock()
		for _, j := range jobs {
			d.inflight++
			if j.BatchID.Valid {
				d.batchIDs[j.BatchID.Int64] = struct{}{}
			}
		}
		d.fetching = false
		d.cond.Broadcast()
		d.mu.Unlock()

		for _, j := range jobs {
			d.wg.Add(1)
			go d.run(j)
		}

		d.poller.Report(len(jobs))
	}
}

func (d *Dispatcher) run(job store.Job) {
	defer d.release(job)
	d.handle(job)
}

func (d *Dispatcher) release(job store.Job) {
	d.mu.Lock()
	d.inflight--
	if job.BatchID.Valid {
		delete(d.batchIDs, job.BatchID.Int64)
	}
	d.cond.Broadcast()
	d.mu.Unlock()
	d.wg.Done()
}

// Stop signals the loop to stop issuing new claims. It does not cancel
// in-flight handlers; call Drain to wait for them (spec §4.3's graceful
// drain).
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopping = true
	d.cond.Broadcast()
	d.mu.Unlock()
}

// Drain blocks until every in-flight job has been handled, or ctx is
// cancelled first.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Debug returns a snapshot of the dispatcher's current mutable state.
func (d *Dispatcher) Debug() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]int64, 0, len(d.batchIDs))
	for id := range d.batchIDs {
		ids = append(ids, id)
	}
	return Snapshot{Inflight: d.inflight, Fetching: d.fetching, CurrentBatchIDs: ids}
}
