// Package retry provides exponential backoff with jitter for transient
// failures against upstream services.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Policy controls how Do spaces its attempts. Delay before attempt n (n >= 2)
// is min(BaseDelay*2^(n-2)+jitter, MaxDelay) where jitter is uniform over
// [0, Jitter).
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      time.Duration
	RetryIf     func(error) bool
}

// DefaultPolicy matches the upstream call budget used across the pipeline.
func DefaultPolicy(retryIf func(error) bool) Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    60 * time.Second,
		Jitter:      time.Second,
		RetryIf:     retryIf,
	}
}

// Do runs op up to p.MaxAttempts times, sleeping between attempts. It stops
// early when op succeeds, when p.RetryIf rejects the error, or when ctx is
// done. The returned error is the last attempt's error.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, p.delay(attempt)); err != nil {
				return zero, goerr.Wrap(err, "retry aborted", goerr.V("attempt", attempt))
			}
		}

		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if p.RetryIf != nil && !p.RetryIf(err) {
			return zero, err
		}
	}
	return zero, lastErr
}

func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 2)
	if p.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
