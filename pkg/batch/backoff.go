package batch

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// BackoffConfig holds the delay between passes.
type BackoffConfig struct {
	// Initial is the delay before the first retry pass.
	Initial time.Duration

	// Max caps the delay. Zero means no cap.
	Max time.Duration

	// Multiplier grows the delay after every retry pass. Values below 1 are
	// treated as 1.
	Multiplier float64
}

func (c BackoffConfig) validate() error {
	if c.Initial < 0 || c.Max < 0 {
		return errors.New("pass backoff durations must not be negative")
	}
	if c.Multiplier < 0 {
		return errors.New("pass backoff multiplier must not be negative")
	}
	return nil
}

// passBackoff produces jittered exponential delays between passes.
type passBackoff struct {
	cfg     BackoffConfig
	current time.Duration
	jitter  func() float64
}

func newPassBackoff(cfg BackoffConfig) *passBackoff {
	return &passBackoff{cfg: cfg, current: cfg.Initial, jitter: rand.Float64}
}

// next returns the delay before the coming pass and advances the schedule.
func (b *passBackoff) next() time.Duration {
	if b.current <= 0 {
		return 0
	}

	// ±20% jitter
	d := time.Duration(float64(b.current) * (0.8 + b.jitter()*0.4))

	mult := b.cfg.Multiplier
	if mult < 1 {
		mult = 1
	}
	b.current = time.Duration(float64(b.current) * mult)
	if b.cfg.Max > 0 && b.current > b.cfg.Max {
		b.current = b.cfg.Max
	}
	return d
}

// wait sleeps for d unless ctx is done first.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
