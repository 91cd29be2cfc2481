package reliability

import (
	"context"
	"time"
)

// RetryPolicy bounds a retry loop.
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
	Cap        time.Duration
}

// Retry runs fn until it succeeds, reports a non-retryable failure, the
// policy is exhausted, or ctx is done. fn returns whether its error may be retried.
func Retry(ctx context.Context, p RetryPolicy, fn func(attempt int) (retryable bool, err error)) error {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(ExponentialBackoff(attempt-1, p.Base, p.Cap))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		retryable, err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable || ctx.Err() != nil {
			break
		}
	}
	return lastErr
}
