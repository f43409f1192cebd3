package queue

import (
	"context"
	"testing"
	"time"
)

func TestNew_RejectsEmptyJobType(t *testing.T) {
	_, err := New(context.Background(), nil, "", DefaultConfig())
	if err == nil {
		t.Error("expected error for empty jobType")
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(context.Background(), nil, "widget", Config{})
	if err == nil {
		t.Error("expected error for config missing DatabaseURL")
	}
}

func TestNew_SkipsExtraFieldProbeWhenNoneDeclared(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DatabaseURL = "postgres://x"
	// db is nil; New must not dereference it when ExtraFields is empty.
	c, err := New(context.Background(), nil, "widget", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.jobType != "widget" {
		t.Errorf("expected jobType to be preserved, got %q", c.jobType)
	}
}

func TestDebug_ZeroValueBeforeProcessingStarts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DatabaseURL = "postgres://x"
	c, err := New(context.Background(), nil, "widget", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := c.Debug()
	if snap.Inflight != 0 || snap.Fetching || len(snap.CurrentBatchIDs) != 0 {
		t.Errorf("expected zero-value snapshot before StartProcessing, got %+v", snap)
	}
}

func TestStopProcessing_NoOpBeforeStarted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DatabaseURL = "postgres://x"
	c, err := New(context.Background(), nil, "widget", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.StopProcessing(ctx); err != nil {
		t.Errorf("expected nil error stopping a never-started controller, got %v", err)
	}
}

func TestStartProcessing_RejectsInvalidProcessorConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DatabaseURL = "postgres://x"
	c, err := New(context.Background(), nil, "widget", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = c.StartProcessing(ProcessorConfig{})
	if err == nil {
		t.Error("expected error for ProcessorConfig missing WorkFn")
	}
}

func TestStartProcessing_RejectsDoubleStart(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DatabaseURL = "postgres://x"
	cfg.FastestPollingRate = time.Hour
	cfg.SlowestPollingRate = time.Hour
	c, err := New(context.Background(), nil, "widget", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pcfg := ProcessorConfig{WorkFn: dummyWorkFn}
	if err := c.StartProcessing(pcfg); err != nil {
		t.Fatalf("unexpected error starting processing: %v", err)
	}
	if err := c.StartProcessing(pcfg); err == nil {
		t.Error("expected error starting processing twice")
	}

	// Stop before returning so the dispatcher goroutine doesn't keep
	// trying to talk to the nil *sqlx.DB in the background.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = c.StopProcessing(ctx)
}
