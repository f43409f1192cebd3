package queue

import (
	"fmt"
	"time"
)

// Config is the engine-wide configuration surface: connection, table,
// extra-field projection, and polling rates (spec §4.7, §6). Per-processor
// options live in ProcessorConfig.
type Config struct {
	// DatabaseURL is the Postgres connection string. Required. The spec
	// names this field mysqlConfig; see DESIGN.md for why it is a Postgres
	// DSN here.
	DatabaseURL string

	// Table is the job table name. Defaults to store.DefaultTable.
	Table string

	// ExtraFields are top-level body keys also projected into identically
	// named columns for query convenience.
	ExtraFields []string

	// FastestPollingRate is the poller's floor delay. Defaults to 100ms.
	FastestPollingRate time.Duration
	// SlowestPollingRate is the poller's ceiling delay. Defaults to 10s.
	SlowestPollingRate time.Duration
	// PollingBackoffRate multiplies the delay on every empty poll.
	// Defaults to 1.1.
	PollingBackoffRate float64
}

// DefaultConfig returns a Config with every default applied except
// DatabaseURL, which the caller must set.
func DefaultConfig() Config {
	return Config{
		Table:              "",
		FastestPollingRate: 100 * time.Millisecond,
		SlowestPollingRate: 10 * time.Second,
		PollingBackoffRate: 1.1,
	}
}

// withDefaults fills zero-valued fields with their defaults without
// touching fields the caller explicitly set.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FastestPollingRate == 0 {
		c.FastestPollingRate = d.FastestPollingRate
	}
	if c.SlowestPollingRate == 0 {
		c.SlowestPollingRate = d.SlowestPollingRate
	}
	if c.PollingBackoffRate == 0 {
		c.PollingBackoffRate = d.PollingBackoffRate
	}
	return c
}

// Validate fails fast on a configuration the engine cannot safely run
// against (spec §7's "configuration error" category).
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("queue: DatabaseURL is required")
	}
	if c.FastestPollingRate <= 0 {
		return fmt.Errorf("queue: FastestPollingRate must be positive")
	}
	if c.SlowestPollingRate < c.FastestPollingRate {
		return fmt.Errorf("queue: SlowestPollingRate (%s) must be >= FastestPollingRate (%s)",
			c.SlowestPollingRate, c.FastestPollingRate)
	}
	if c.PollingBackoffRate <= 1.0 {
		return fmt.Errorf("queue: PollingBackoffRate must be > 1.0, got %f", c.PollingBackoffRate)
	}
	return nil
}

// ProcessorConfig configures a single call to Controller.StartProcessing.
type ProcessorConfig struct {
	// WorkFn is invoked once per claimed job. Required.
	WorkFn WorkFunc
	// Concurrency bounds in-flight jobs for this processor. Defaults to 3.
	Concurrency int
	// Timeout bounds a single job's execution. Defaults to 60s.
	Timeout time.Duration
	// RecoverStuckJobs enables the stuck-job recoverer. Defaults to true;
	// a nil pointer is treated as unset rather than false, since Go's bool
	// zero value would otherwise silently disable recovery by default. Set
	// to a pointer to false to disable it for queues where re-execution is
	// unsafe (spec §4.5).
	RecoverStuckJobs *bool
	// RecoveryThreshold is how long a row may sit in processing before the
	// recoverer reclaims it. Must exceed Timeout. Defaults to 120s.
	RecoveryThreshold time.Duration
	// RecoveryInterval is the recoverer's tick cadence. Defaults to 60s.
	RecoveryInterval time.Duration
	// OnSuccess and OnError are invoked after a job finalizes. A panicking
	// callback is logged and swallowed; it never reaches the caller.
	OnSuccess SuccessFunc
	OnError   ErrorFunc
}

var recoverStuckJobsDefault = true

// defaultProcessorConfig returns defaults with RecoverStuckJobs enabled,
// matching the spec's documented per-processor defaults.
func defaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		Concurrency:       3,
		Timeout:           60 * time.Second,
		RecoverStuckJobs:  &recoverStuckJobsDefault,
		RecoveryThreshold: 120 * time.Second,
		RecoveryInterval:  60 * time.Second,
	}
}

func (p ProcessorConfig) withDefaults() ProcessorConfig {
	d := defaultProcessorConfig()
	if p.Concurrency == 0 {
		p.Concurrency = d.Concurrency
	}
	if p.Timeout == 0 {
		p.Timeout = d.Timeout
	}
	if p.RecoverStuckJobs == nil {
		p.RecoverStuckJobs = d.RecoverStuckJobs
	}
	if p.RecoveryThreshold == 0 {
		p.RecoveryThreshold = d.RecoveryThreshold
	}
	if p.RecoveryInterval == 0 {
		p.RecoveryInterval = d.RecoveryInterval
	}
	return p
}

// recoverStuckJobs reports the effective value of RecoverStuckJobs, treating
// an unset pointer as enabled (the spec's documented default).
func (p ProcessorConfig) recoverStuckJobs() bool {
	return p.RecoverStuckJobs == nil || *p.RecoverStuckJobs
}

// Validate fails fast per spec §4.5/§4.7: a recovery threshold that does
// not exceed the job timeout would race live work.
func (p ProcessorConfig) Validate() error {
	if p.WorkFn == nil {
		return fmt.Errorf("queue: WorkFn is required")
	}
	if p.Concurrency <= 0 {
		return fmt.Errorf("queue: Concurrency must be positive")
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("queue: Timeout must be positive")
	}
	if p.recoverStuckJobs() && p.RecoveryThreshold <= p.Timeout {
		return fmt.Errorf("queue: RecoveryThreshold (%s) must exceed Timeout (%s), or stuck-job recovery will race live work",
			p.RecoveryThreshold, p.Timeout)
	}
	return nil
}
