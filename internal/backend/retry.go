package backend

import (
	"context"
	"errors"
	"time"

	vlog "github.com/MrARwho/project-uvm/internal/log"
)

// RetryPolicy is the one network policy shared by every stage: bounded
// attempts with exponential backoff, retrying only retryable transport faults.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy matches the configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Second, MaxBackoff: 30 * time.Second}
}

// NoRetry makes a single attempt.
func NoRetry() RetryPolicy { return RetryPolicy{MaxAttempts: 1} }

// Backoff returns the wait before retry number n (1-based).
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n < 1 || p.InitialBackoff <= 0 {
		return 0
	}
	d := p.InitialBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// sleeper waits for d or until ctx is done.
type sleeper func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// do runs attempt until it succeeds, fails with a non-retryable error, or the
// policy is exhausted. The last TransportError carries the attempt count.
func (p RetryPolicy) do(ctx context.Context, sleep sleeper, onRetry func(int, error), attempt func() (Response, error)) (Response, error) {
	if sleep == nil {
		sleep = sleepCtx
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		if i > 1 {
			wait := p.Backoff(i - 1)
			vlog.Warn("retrying backend call", "attempt", i, "backoff", wait, "err", lastErr)
			if onRetry != nil {
				onRetry(i, lastErr)
			}
			if err := sleep(ctx, wait); err != nil {
				return Response{}, &TransportError{Attempts: i - 1, Err: errors.Join(lastErr, err)}
			}
		}

		resp, err := attempt()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var te *TransportError
		if !errors.As(err, &te) {
			return Response{}, err
		}
		te.Attempts = i
		if !te.Retryable() || ctx.Err() != nil {
			return Response{}, te
		}
	}
	return Response{}, lastErr
}
