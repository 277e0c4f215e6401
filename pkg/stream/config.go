package stream

import (
	"time"
)

// Config tunes the engine's retry and concurrency behaviour.
type Config struct {
	// MaxAttempts is the attempt budget for timeouts and RPC errors on one
	// upstream call. Rate-limit signals do not consume it.
	MaxAttempts int

	// RetryDelay is the fixed pause between budgeted attempts.
	RetryDelay time.Duration

	// WorkerWaitAttempts bounds how many times a stream waits for a worker
	// to leave cooldown before giving up.
	WorkerWaitAttempts int

	// WorkerWaitDelay caps a single wait for a worker. The defaults wait
	// for as long as pool.DefaultCooldown.
	WorkerWaitDelay time.Duration

	// MaxConcurrentFetches caps upstream calls in flight across all streams.
	MaxConcurrentFetches int

	// MetadataCacheSize and MetadataCacheTTL bound the file metadata memo.
	MetadataCacheSize int
	MetadataCacheTTL  time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:          3,
		RetryDelay:           time.Second,
		WorkerWaitAttempts:   60,
		WorkerWaitDelay:      time.Second,
		MaxConcurrentFetches: 3,
		MetadataCacheSize:    1024,
		MetadataCacheTTL:     10 * time.Minute,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.WorkerWaitAttempts <= 0 {
		c.WorkerWaitAttempts = d.WorkerWaitAttempts
	}
	if c.WorkerWaitDelay <= 0 {
		c.WorkerWaitDelay = d.WorkerWaitDelay
	}
	if c.MaxConcurrentFetches <= 0 {
		c.MaxConcurrentFetches = d.MaxConcurrentFetches
	}
	if c.MetadataCacheSize <= 0 {
		c.MetadataCacheSize = d.MetadataCacheSize
	}
	if c.MetadataCacheTTL <= 0 {
		c.MetadataCacheTTL = d.MetadataCacheTTL
	}
}
