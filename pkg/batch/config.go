package batch

import (
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/proxy-batch-fetcher/pkg/ratelimit"
	"github.com/Sternrassler/proxy-batch-fetcher/pkg/request"
)

// Config holds batch fetcher configuration.
type Config struct {
	// Method overrides the method of every generated descriptor (GET or
	// POST). Empty keeps each descriptor's own method.
	Method string

	// RetryBudget is the number of passes allowed after the first one.
	RetryBudget int

	// BucketCapacity, RefillRate, Backoff and MaxWait configure the
	// admission bucket created for every run.
	BucketCapacity int
	RefillRate     float64
	Backoff        time.Duration
	MaxWait        time.Duration

	// MaxConcurrency is the worker pool size per pass.
	MaxConcurrency int

	// PassBackoff delays the start of each retry pass. Zero disables it.
	PassBackoff BackoffConfig

	// Deadline bounds the whole run. Zero means no deadline.
	Deadline time.Duration
}

// DefaultConfig returns the defaults the scrapers were tuned with: one retry
// pass and a bucket of 10 tokens refilled at 10 tokens/s.
func DefaultConfig() Config {
	return Config{
		RetryBudget:    1,
		BucketCapacity: ratelimit.DefaultCapacity,
		RefillRate:     ratelimit.DefaultRefillRate,
		Backoff:        ratelimit.DefaultBackoff,
		MaxConcurrency: 10,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error

	if c.Method != "" {
		if _, err := request.NormalizeMethod(c.Method); err != nil {
			errs = append(errs, err)
		}
	}
	if c.RetryBudget < 0 {
		errs = append(errs, fmt.Errorf("retry budget must be >= 0 (got %d)", c.RetryBudget))
	}
	if c.BucketCapacity < 1 {
		errs = append(errs, fmt.Errorf("bucket capacity must be >= 1 (got %d)", c.BucketCapacity))
	}
	if c.RefillRate < 0 {
		errs = append(errs, fmt.Errorf("refill rate must be >= 0 (got %v)", c.RefillRate))
	}
	if c.Backoff < 0 || c.MaxWait < 0 || c.Deadline < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("max concurrency must be >= 1 (got %d)", c.MaxConcurrency))
	}
	if err := c.PassBackoff.validate(); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid batch config: %w", err)
	}
	return nil
}

func (c Config) bucketConfig() ratelimit.Config {
	return ratelimit.Config{
		Capacity:   c.BucketCapacity,
		RefillRate: c.RefillRate,
		Backoff:    c.Backoff,
		MaxWait:    c.MaxWait,
	}
}
