package fetch

import (
	"context"
	"errors"
	"time"

	"mediastream/internal/domain"
	"mediastream/internal/metrics"
)

// RetryWithBackoff runs op and retries recoverable failures up to
// maxRetries additional times. The delay before retry n (0-based) is
// baseDelay * 2^n. Authentication and other non-recoverable errors
// short-circuit immediately. The final error carries the number of
// retries consumed in RetryCount.
func RetryWithBackoff[T any](ctx context.Context, op func(context.Context) (T, error), maxRetries int, baseDelay time.Duration) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}

		serr := domain.AsStreamingError(err)
		serr.RetryCount = attempt
		if !serr.Recoverable || attempt >= maxRetries {
			return zero, serr
		}

		metrics.ChunkFetchRetriesTotal.Inc()
		if err := sleep(ctx, baseDelay<<attempt); err != nil {
			return zero, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRetryExhausted reports whether err is a recoverable error that ran
// out of retry budget rather than a hard failure.
func IsRetryExhausted(err error, maxRetries int) bool {
	var serr *domain.StreamingError
	if !errors.As(err, &serr) {
		return false
	}
	return serr.Recoverable && serr.RetryCount >= maxRetries
}
