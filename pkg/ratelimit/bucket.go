package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/Sternrassler/proxy-batch-fetcher/pkg/logging"
)

var (
	// ErrStarved is returned when the bucket is empty and its refill rate is
	// zero, so no token can ever become available.
	ErrStarved = errors.New("token bucket starved")

	// ErrWaitTimeout is returned when Config.MaxWait elapses without a token.
	ErrWaitTimeout = errors.New("token wait timeout")
)

// Sampler returns the number of tokens minted over an interval whose
// expected yield is mean.
type Sampler func(mean float64) float64

// PoissonSampler draws from Poisson(mean).
func PoissonSampler(mean float64) float64 {
	if mean <= 0 {
		return 0
	}
	return distuv.Poisson{Lambda: mean}.Rand()
}

// Config holds token bucket configuration.
type Config struct {
	// Capacity is the burst allowance. The bucket starts full.
	Capacity int

	// RefillRate is the mean number of tokens minted per second.
	// Zero disables refill.
	RefillRate float64

	// Backoff is the sleep between checks of an empty bucket.
	Backoff time.Duration

	// MaxWait bounds a single Acquire. Zero means wait until a token
	// arrives or the context ends.
	MaxWait time.Duration
}

// DefaultConfig returns the default bucket configuration.
func DefaultConfig() Config {
	return Config{
		Capacity:   DefaultCapacity,
		RefillRate: DefaultRefillRate,
		Backoff:    DefaultBackoff,
	}
}

// Bucket is a token bucket admission controller. Every caller goes through
// Acquire before issuing a request. It is safe for concurrent use; the level
// is only read and written under mu.
type Bucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64
	lastRefill time.Time

	backoff time.Duration
	maxWait time.Duration

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	sample Sampler
	logger zerolog.Logger
}

// Option configures a Bucket.
type Option func(*Bucket)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Bucket) {
		b.now = now
	}
}

// WithSleep replaces the context-aware sleep used between checks.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(b *Bucket) {
		b.sleep = sleep
	}
}

// WithSampler replaces PoissonSampler.
func WithSampler(s Sampler) Option {
	return func(b *Bucket) {
		b.sample = s
	}
}

// WithLogger sets the bucket logger.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Bucket) {
		b.logger = l
	}
}

// NewBucket creates a full bucket.
func NewBucket(cfg Config, opts ...Option) (*Bucket, error) {
	if cfg.Capacity < 1 {
		return nil, fmt.Errorf("bucket capacity must be >= 1 (got %d)", cfg.Capacity)
	}
	if cfg.RefillRate < 0 || math.IsNaN(cfg.RefillRate) || math.IsInf(cfg.RefillRate, 0) {
		return nil, fmt.Errorf("refill rate must be a finite value >= 0 (got %v)", cfg.RefillRate)
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.MaxWait < 0 {
		cfg.MaxWait = 0
	}

	b := &Bucket{
		tokens:     float64(cfg.Capacity),
		capacity:   float64(cfg.Capacity),
		refillRate: cfg.RefillRate,
		backoff:    cfg.Backoff,
		maxWait:    cfg.MaxWait,
		now:        time.Now,
		sleep:      sleepContext,
		sample:     PoissonSampler,
		logger:     logging.NewLogger(logging.ComponentAdmission),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.lastRefill = b.now()
	bucketTokens.Set(b.tokens)

	return b, nil
}

// Acquire blocks until one token has been debited. While the bucket is empty
// it sleeps Backoff and re-checks, refilling on every check.
//
// It returns ErrStarved without waiting if the bucket is empty and cannot
// refill, ErrWaitTimeout once MaxWait has elapsed, or the context error.
func (b *Bucket) Acquire(ctx context.Context) error {
	start := b.now()
	waited := false

	for {
		admitted, starved := b.take()
		if admitted {
			admissionsTotal.Inc()
			if waited {
				admissionWaitSeconds.Observe(b.now().Sub(start).Seconds())
			}
			return nil
		}

		if starved {
			admissionFailuresTotal.WithLabelValues("starved").Inc()
			b.logger.Debug().Msg("Token bucket starved - refill rate is zero")
			return ErrStarved
		}

		if b.maxWait > 0 && b.now().Sub(start) >= b.maxWait {
			admissionFailuresTotal.WithLabelValues("timeout").Inc()
			b.logger.Debug().
				Dur("max_wait", b.maxWait).
				Msg("Gave up waiting for token")
			return fmt.Errorf("%w after %v", ErrWaitTimeout, b.maxWait)
		}

		if !waited {
			waited = true
			admissionWaitsTotal.Inc()
		}

		if err := b.sleep(ctx, b.backoff); err != nil {
			admissionFailuresTotal.WithLabelValues("cancelled").Inc()
			return fmt.Errorf("acquire token: %w", err)
		}
	}
}

// State returns a snapshot of the bucket. It does not refill.
func (b *Bucket) State() BucketState {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BucketState{
		Tokens:     b.tokens,
		Capacity:   b.capacity,
		RefillRate: b.refillRate,
		LastRefill: b.lastRefill,
	}
}

// take refills and tries to debit one token.
func (b *Bucket) take() (admitted, starved bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()

	if b.tokens >= 1 {
		b.tokens--
		bucketTokens.Set(b.tokens)
		return true, false
	}
	return false, b.refillRate <= 0
}

// refillLocked mints Poisson(elapsed * rate) tokens, clamps to capacity and
// advances lastRefill. Caller holds mu.
func (b *Bucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now

	if elapsed <= 0 || b.refillRate <= 0 {
		return
	}

	minted := b.sample(elapsed * b.refillRate)
	if minted <= 0 {
		return
	}

	b.tokens = math.Min(b.tokens+minted, b.capacity)
	bucketTokens.Set(b.tokens)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
