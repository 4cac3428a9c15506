package retry

import (
	"context"
	"fmt"
	"time"
)

// Do runs op up to attempts times, sleeping delay between attempts. Any error
// triggers another attempt; after the last failure the last error is
// returned. The delay is fixed, not exponential: callers bound checkout
// latency by attempts*delay.
func Do(ctx context.Context, attempts int, delay time.Duration, op func() error) error {
	if attempts < 1 {
		return fmt.Errorf("retry: attempts must be >= 1, got %d", attempts)
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if lastErr = op(); lastErr == nil {
			return nil
		}
	}

	return lastErr
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, attempts int, delay time.Duration, op func() (T, error)) (T, error) {
	var out T
	err := Do(ctx, attempts, delay, func() error {
		var opErr error
		out, opErr = op()
		return opErr
	})
	return out, err
}
