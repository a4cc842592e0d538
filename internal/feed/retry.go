package feed

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	defaultRetryBackoff = 100 * time.Millisecond
	maxRetryBackoff     = 30 * time.Second
)

// retrier re-runs chain reads with doubling backoff, capped at maxRetryBackoff.
// Each retried attempt is logged at debug level with the caller's fields.
type retrier struct {
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

func newRetrier(maxRetries int, backoff time.Duration, logger *zap.Logger) retrier {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return retrier{maxRetries: maxRetries, backoff: backoff, logger: logger}
}

// do returns nil on the first success, ctx.Err() if ctx ends while waiting,
// or the last error once maxRetries retries are spent.
func (r retrier) do(ctx context.Context, op string, fields []zap.Field, fn func(context.Context) error) error {
	logger := r.logger.With(fields...)
	delay := r.backoff
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt > r.maxRetries {
			return err
		}

		logger.Debug(op+" retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxRetryBackoff {
			delay = maxRetryBackoff
		}
	}
}
