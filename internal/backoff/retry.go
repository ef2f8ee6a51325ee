// Package backoff implements retry policies used to absorb transient
// contention, in particular the Store's SQLITE_BUSY retries (§4.1, §7).
package backoff

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

// Inspired by Temporal's retry policy implementation (MIT License).
// https://github.com/temporalio/temporal/blob/main/common/backoff/retrypolicy.go

var (
	// ErrRetriesExhausted is returned when the maximum number of retries has been reached.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrOperationCanceled is returned when the retry operation is canceled via context.
	ErrOperationCanceled = errors.New("operation canceled")
)

type (
	// Policy computes the next retry interval given the retry count,
	// elapsed time, and the error that triggered the retry.
	Policy interface {
		ComputeNextInterval(retryCount int, elapsedTime time.Duration, err error) (time.Duration, error)
	}

	// Retrier drives a sequence of waits according to a Policy.
	Retrier interface {
		// Next blocks until the next retry interval elapses, or returns
		// an error if retries are exhausted or ctx is canceled.
		Next(ctx context.Context, err error) error
		// Reset returns the retrier to its initial state.
		Reset()
	}
)

var (
	noMaximumAttempts    = 0
	defaultBackoffFactor = 2.0
	defaultMaxInterval   = 5 * time.Second
	defaultMaxRetries    = noMaximumAttempts
)

// ExponentialPolicy backs off exponentially up to MaxInterval.
type ExponentialPolicy struct {
	InitialInterval time.Duration
	BackoffFactor   float64
	MaxInterval     time.Duration
	MaxRetries      int
}

// NewExponentialPolicy creates an ExponentialPolicy capped at 5s, matching
// the Store's Busy-error deadline in spec.md §4.1.
func NewExponentialPolicy(initialInterval time.Duration) *ExponentialPolicy {
	return &ExponentialPolicy{
		InitialInterval: initialInterval,
		BackoffFactor:   defaultBackoffFactor,
		MaxInterval:     defaultMaxInterval,
		MaxRetries:      defaultMaxRetries,
	}
}

// ComputeNextInterval implements Policy.
func (p *ExponentialPolicy) ComputeNextInterval(retryCount int, _ time.Duration, _ error) (time.Duration, error) {
	if p.MaxRetries > 0 && retryCount >= p.MaxRetries {
		return 0, ErrRetriesExhausted
	}
	interval := float64(p.InitialInterval) * math.Pow(p.BackoffFactor, float64(retryCount))
	if interval > float64(p.MaxInterval) {
		interval = float64(p.MaxInterval)
	}
	return time.Duration(interval), nil
}

// NewRetrier creates a new Retrier driven by policy.
func NewRetrier(policy Policy) Retrier {
	return &retrierImpl{policy: policy}
}

type retrierImpl struct {
	policy     Policy
	retryCount int
	startTime  time.Time
	mu         sync.Mutex
}

// Next implements Retrier.
func (r *retrierImpl) Next(ctx context.Context, err error) error {
	r.mu.Lock()
	if r.startTime.IsZero() {
		r.startTime = time.Now()
	}
	elapsed := time.Since(r.startTime)
	interval, computeErr := r.policy.ComputeNextInterval(r.retryCount, elapsed, err)
	if computeErr != nil {
		r.mu.Unlock()
		return computeErr
	}
	r.retryCount++
	r.mu.Unlock()

	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ErrOperationCanceled
	}
}

// Reset implements Retrier.
func (r *retrierImpl) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retryCount = 0
	r.startTime = time.Time{}
}

// Deadline runs fn repeatedly with exponential backoff until it succeeds,
// the deadline elapses, or ctx is canceled. Used by the Store to turn
// SQLITE_BUSY into bounded retries before surfacing a Busy error.
func Deadline(ctx context.Context, deadline time.Duration, initial time.Duration, fn func() error) error {
	policy := NewExponentialPolicy(initial)
	policy.MaxInterval = deadline
	retrier := NewRetrier(policy)
	start := time.Now()
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if time.Since(start) >= deadline {
			return err
		}
		if waitErr := retrier.Next(ctx, err); waitErr != nil {
			return err
		}
	}
}
