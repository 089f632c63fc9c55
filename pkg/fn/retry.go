package fn

import (
	"context"
	"math/rand"
	"time"
)

// RetryOpts configures retry behavior.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Jitter      bool
	// Linear grows the wait as InitialWait*attempt instead of doubling it.
	Linear bool
	// RetryIf decides whether an error is worth another attempt.
	// Nil retries every error.
	RetryIf func(error) bool
	// OnRetry is called before each sleep with the attempt that just failed (1-based).
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultRetry provides sensible retry defaults.
var DefaultRetry = RetryOpts{
	MaxAttempts: 3,
	InitialWait: time.Second,
	MaxWait:     30 * time.Second,
	Jitter:      true,
}

// Backoff returns the wait after the given failed attempt (1-based).
func (o RetryOpts) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	var wait time.Duration
	if o.Linear {
		wait = o.InitialWait * time.Duration(attempt)
	} else {
		wait = o.InitialWait << (attempt - 1)
	}
	if o.MaxWait > 0 && wait > o.MaxWait {
		wait = o.MaxWait
	}
	return wait
}

// Retry retries f up to MaxAttempts times, sleeping between attempts.
// It stops early when RetryIf rejects the error or ctx is done.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}

	var result Result[T]
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		result = f(ctx)
		if result.IsOk() {
			return result
		}
		if attempt == opts.MaxAttempts {
			break
		}
		_, err := result.Unwrap()
		if opts.RetryIf != nil && !opts.RetryIf(err) {
			break
		}

		sleepDur := opts.Backoff(attempt)
		if opts.Jitter {
			sleepDur = time.Duration(float64(sleepDur) * (0.5 + rand.Float64()))
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, err, sleepDur)
		}

		timer := time.NewTimer(sleepDur)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Err[T](ctx.Err())
		case <-timer.C:
		}
	}
	return result
}
