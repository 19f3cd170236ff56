package micclient

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy retries calls that failed with KindNetwork.  Delays double
// from BaseDelay up to MaxDelay.  Attempts counts the first try; values
// below 1 mean a single attempt.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetry is used by New.
var DefaultRetry = RetryPolicy{Attempts: 3, BaseDelay: 250 * time.Millisecond, MaxDelay: 2 * time.Second}

// NoRetry makes every call a single attempt.
var NoRetry = RetryPolicy{Attempts: 1}

// Delay returns the wait before retry n (1-based).
func (p RetryPolicy) Delay(n int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do runs fn until it succeeds, fails with a non-retryable error, the
// attempts are used up or ctx ends.  An *Error returned after a retry
// has Retried set.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for n := 1; ; n++ {
		err = fn(ctx)
		if err == nil || !IsRetryable(err) || n >= attempts {
			return markRetried(err, n > 1)
		}
		t := time.NewTimer(p.Delay(n))
		select {
		case <-ctx.Done():
			t.Stop()
			return markRetried(err, n > 1)
		case <-t.C:
		}
	}
}

func markRetried(err error, retried bool) error {
	var ce *Error
	if retried && errors.As(err, &ce) {
		ce.Retried = true
	}
	return err
}
