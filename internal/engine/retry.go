package engine

import (
	"context"
	"time"
)

// withRetry runs fn up to attempts times, doubling the delay between tries
// (base, 2*base, 4*base, ...). Returns nil on the first success; otherwise
// the last failure. Aborts immediately when ctx is done — a cancelled job
// must not sit out backoff sleeps.
func withRetry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	var err error
	delay := base
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return err
			case <-time.After(delay):
			}
			delay *= 2
		}
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}
