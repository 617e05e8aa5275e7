package worker

import (
	"fmt"
	"time"
)

// Redelivery schedule. A failed notification is retried after
// DefaultRetryBase, then after twice the previous wait, until
// DefaultMaxAttempts sends have been made.
const (
	DefaultRetryBase   = 30 * time.Second
	DefaultMaxAttempts = 5
)

// Config controls the redelivery worker.
type Config struct {
	// Concurrency is the number of goroutines claiming jobs.
	Concurrency int

	// PollInterval is how long an idle goroutine waits before claiming again.
	PollInterval time.Duration

	// JobTimeout bounds one delivery attempt. It covers loading the report
	// and body map as well as the gateway call.
	JobTimeout time.Duration

	// ShutdownTimeout is how long Stop waits for in-flight deliveries.
	ShutdownTimeout time.Duration

	// StaleJobThreshold is the age at which a running job is assumed to
	// belong to a dead process and is handed back to the queue on Start.
	// It must exceed JobTimeout.
	StaleJobThreshold time.Duration

	// RetryBase is the wait before the first retry.
	RetryBase time.Duration

	// MaxAttempts is the number of sends made before a notification is
	// given up on.
	MaxAttempts int32
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Concurrency:       2,
		PollInterval:      5 * time.Second,
		JobTimeout:        time.Minute,
		ShutdownTimeout:   30 * time.Second,
		StaleJobThreshold: 5 * time.Minute,
		RetryBase:         DefaultRetryBase,
		MaxAttempts:       DefaultMaxAttempts,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	switch {
	case c.Concurrency < 1 || c.Concurrency > 32:
		return fmt.Errorf("concurrency must be between 1 and 32, got %d", c.Concurrency)
	case c.PollInterval < time.Second:
		return fmt.Errorf("poll interval must be at least 1 second, got %v", c.PollInterval)
	case c.JobTimeout < time.Second:
		return fmt.Errorf("job timeout must be at least 1 second, got %v", c.JobTimeout)
	case c.ShutdownTimeout < time.Second:
		return fmt.Errorf("shutdown timeout must be at least 1 second, got %v", c.ShutdownTimeout)
	case c.StaleJobThreshold <= c.JobTimeout:
		return fmt.Errorf("stale job threshold %v must exceed the job timeout %v", c.StaleJobThreshold, c.JobTimeout)
	case c.RetryBase < time.Second:
		return fmt.Errorf("retry base must be at least 1 second, got %v", c.RetryBase)
	case c.MaxAttempts < 1 || c.MaxAttempts > 20:
		return fmt.Errorf("max attempts must be between 1 and 20, got %d", c.MaxAttempts)
	}
	return nil
}
