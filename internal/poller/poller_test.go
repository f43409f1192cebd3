package poller

import (
	"context"
	"math"
	"testing"
	"time"
)

func TestReport_FoundResetsToFastest(t *testing.T) {
	p := New(10*time.Millisecond, 1*time.Second, 1.5)
	p.Report(0)
	p.Report(0)
	if p.Current() == 10*time.Millisecond {
		t.Fatal("expected backoff to have advanced past the fastest rate")
	}
	p.Report(3)
	if p.Current() != 10*time.Millisecond {
		t.Errorf("found outcome should reset to fastest rate, got %v", p.Current())
	}
}

func TestReport_EmptyConvergesToSlowestWithinExpectedPolls(t *testing.T) {
	min := 100 * time.Millisecond
	max := 10 * time.Second
	backoff := 1.1

	p := New(min, max, backoff)

	expected := int(math.Ceil(math.Log(float64(max)/float64(min)) / math.Log(backoff)))

	for i := 0; i < expected; i++ {
		p.Report(0)
	}
	if p.Current() != max {
		t.Errorf("after %d empty polls expected delay to reach max %v, got %v", expected, max, p.Current())
	}
}

func TestReport_NeverExceedsMax(t *testing.T) {
	p := New(100*time.Millisecond, 200*time.Millisecond, 2.0)
	for i := 0; i < 50; i++ {
		p.Report(0)
	}
	if p.Current() != 200*time.Millisecond {
		t.Errorf("delay exceeded max: %v", p.Current())
	}
}

func TestScheduleNext_CancelledContextReturnsPromptly(t *testing.T) {
	p := New(time.Hour, time.Hour, 1.1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- p.ScheduleNext(ctx) }()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected context error from cancelled ScheduleNext")
		}
	case <-time.After(time.Second):
		t.Fatal("ScheduleNext did not return promptly after cancellation")
	}
}
