package recoverer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type fakeStore struct {
	calls  int32
	result int
	err    error
}

func (f *fakeStore) RecoverStuck(ctx context.Context, jobType string, threshold time.Duration) (int, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.result, f.err
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	fs := &fakeStore{result: 2}
	r := &Recoverer{Store: fs, JobType: "widget", Threshold: time.Minute, Interval: 10 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()

	r.Run(ctx)

	calls := atomic.LoadInt32(&fs.calls)
	if calls < 3 {
		t.Errorf("expected at least 3 ticks in 55ms at 10ms interval, got %d", calls)
	}
}

func TestRun_StopsPromptlyOnCancel(t *testing.T) {
	fs := &fakeStore{}
	r := &Recoverer{Store: fs, JobType: "widget", Threshold: time.Minute, Interval: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return promptly after cancellation")
	}
}

func TestTick_ErrorIsLoggedNotPanicked(t *testing.T) {
	fs := &fakeStore{err: context.DeadlineExceeded}
	r := &Recoverer{Store: fs, JobType: "widget", Threshold: time.Minute, Interval: time.Hour}

	r.tick(context.Background())

	if atomic.LoadInt32(&fs.calls) != 1 {
		t.Errorf("expected exactly one call, got %d", fs.calls)
	}
}
