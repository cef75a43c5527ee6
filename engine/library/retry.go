package library

import (
	"context"
	"time"
)

// Retry calls fn until it succeeds, returns an error retryable rejects, or attempts run out.
// The wait between attempts doubles from backoff.
func Retry(ctx context.Context, attempts int, backoff time.Duration, retryable func(error) bool, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	wait := backoff
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !retryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		LogCLI(err.Error()+", retrying", 3)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}
