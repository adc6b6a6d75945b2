// Package ratelimit implements the admission controller that caps the rate of
// outbound requests: a token bucket whose refill is drawn from a Poisson
// distribution rather than topped up linearly.
package ratelimit

import (
	"time"
)

// Defaults for a bucket when the caller leaves a field unset.
const (
	// DefaultCapacity is the burst allowance.
	DefaultCapacity = 10

	// DefaultRefillRate is the mean number of tokens minted per second.
	DefaultRefillRate = 10.0

	// DefaultBackoff is how long a caller sleeps before re-checking an
	// empty bucket.
	DefaultBackoff = 200 * time.Millisecond
)

// BucketState is a point-in-time snapshot of a Bucket.
type BucketState struct {
	// Tokens is the current level, always within [0, Capacity].
	Tokens float64 `json:"tokens"`

	// Capacity is the maximum level (burst allowance).
	Capacity float64 `json:"capacity"`

	// RefillRate is the mean number of tokens minted per second.
	RefillRate float64 `json:"refill_rate"`

	// LastRefill is when tokens were last minted.
	LastRefill time.Time `json:"last_refill"`
}

// CanAdmit returns true if at least one whole token is available.
func (s BucketState) CanAdmit() bool {
	return s.Tokens >= 1
}

// IsFull returns true if the bucket is at capacity.
func (s BucketState) IsFull() bool {
	return s.Tokens >= s.Capacity
}

// IsStarved returns true if the bucket is empty and can never refill.
func (s BucketState) IsStarved() bool {
	return !s.CanAdmit() && s.RefillRate <= 0
}

// ExpectedWait estimates how long until one token is available, assuming
// minting at the mean rate. Returns 0 if a token is available now and -1 if
// the bucket is starved.
func (s BucketState) ExpectedWait() time.Duration {
	if s.CanAdmit() {
		return 0
	}
	if s.RefillRate <= 0 {
		return -1
	}
	missing := 1 - s.Tokens
	return time.Duration(missing / s.RefillRate * float64(time.Second))
}
