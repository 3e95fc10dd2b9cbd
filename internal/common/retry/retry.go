// internal/common/retry/retry.go

// Package retry runs an operation with exponential backoff.
package retry

import (
	"context"
	"fmt"
	"time"

	"ctp-notifications/internal/common/logger"
)

// Permanent wraps an error that must not be retried.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// WithBackoff calls operation up to maxRetries times, doubling the delay after each failure.
// It stops early on a *Permanent error or when ctx is cancelled.
func WithBackoff(ctx context.Context, operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	if maxRetries < 1 {
		maxRetries = 1
	}

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}
		if _, ok := err.(*Permanent); ok {
			return err
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err,
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("%s cancelled after %d attempts: %w", operationName, i+1, ctx.Err())
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}
