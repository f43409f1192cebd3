package queue

import (
	"context"
	"testing"
	"time"
)

func dummyWorkFn(ctx context.Context, job Job) (any, error) {
	return nil, nil
}

func TestConfig_Validate_RequiresDatabaseURL(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing DatabaseURL")
	}
}

func TestConfig_Validate_RejectsInvertedPollingRates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DatabaseURL = "postgres://x"
	cfg.FastestPollingRate = time.Second
	cfg.SlowestPollingRate = 100 * time.Millisecond
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when SlowestPollingRate < FastestPollingRate")
	}
}

func TestConfig_Validate_RejectsBackoffAtOrBelowOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DatabaseURL = "postgres://x"
	cfg.PollingBackoffRate = 1.0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for backoff rate of exactly 1.0")
	}
}

func TestConfig_Validate_AcceptsDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DatabaseURL = "postgres://x"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to be valid, got %v", err)
	}
}

func TestProcessorConfig_Validate_RequiresWorkFn(t *testing.T) {
	pcfg := defaultProcessorConfig()
	if err := pcfg.Validate(); err == nil {
		t.Error("expected error for missing WorkFn")
	}
}

func TestProcessorConfig_Validate_RecoveryThresholdMustExceedTimeout(t *testing.T) {
	pcfg := defaultProcessorConfig()
	pcfg.WorkFn = dummyWorkFn
	pcfg.Timeout = 60 * time.Second
	pcfg.RecoveryThreshold = 60 * time.Second // equal, not exceeding

	if err := pcfg.Validate(); err == nil {
		t.Error("expected error when RecoveryThreshold does not exceed Timeout")
	}

	pcfg.RecoveryThreshold = 120 * time.Second
	if err := pcfg.Validate(); err != nil {
		t.Errorf("expected valid config when RecoveryThreshold exceeds Timeout, got %v", err)
	}
}

func TestProcessorConfig_Validate_RecoveryThresholdIgnoredWhenRecoveryDisabled(t *testing.T) {
	pcfg := defaultProcessorConfig()
	pcfg.WorkFn = dummyWorkFn
	disabled := false
	pcfg.RecoverStuckJobs = &disabled
	pcfg.RecoveryThreshold = 1 * time.Millisecond

	if err := pcfg.Validate(); err != nil {
		t.Errorf("expected RecoveryThreshold to be ignored when recovery disabled, got %v", err)
	}
}

func TestProcessorConfig_WithDefaults_EnablesRecoveryWhenUnset(t *testing.T) {
	pcfg := ProcessorConfig{WorkFn: dummyWorkFn}
	pcfg = pcfg.withDefaults()

	if !pcfg.recoverStuckJobs() {
		t.Error("expected RecoverStuckJobs to default to enabled when left unset")
	}
	if err := pcfg.Validate(); err != nil {
		t.Errorf("expected zero-value ProcessorConfig to validate after defaults, got %v", err)
	}
}
