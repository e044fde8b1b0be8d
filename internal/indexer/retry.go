package indexer

import (
	"context"
	"time"

	"go.uber.org/zap"
)

func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}

// retry runs fn with the engine's retry policy and logs each failed attempt.
func (e *Engine) retry(ctx context.Context, op string, fn func(context.Context) error, fields ...zap.Field) error {
	attempt := 0
	return withRetry(ctx, e.cfg.MaxRetries, e.cfg.RetryBackoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err != nil {
			e.logger.Warn(op+" failed", append(fields, zap.Int("attempt", attempt), zap.Error(err))...)
		}
		return err
	})
}
