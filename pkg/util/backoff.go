package util

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// Backoff implements exponential backoff
type Backoff struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// Permanent reports errors that are returned immediately without retrying
	Permanent func(error) bool

	logger *zap.Logger
}

// NewBackoff creates a new Backoff instance
func NewBackoff(maxRetries int, baseDelay time.Duration, logger *zap.Logger) *Backoff {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backoff{
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
		MaxDelay:   30 * time.Second,
		logger:     logger,
	}
}

// Delay returns the wait before retry attempt (0-based)
func (b *Backoff) Delay(attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * b.BaseDelay
	if delay > b.MaxDelay || delay < 0 {
		delay = b.MaxDelay
	}
	return delay
}

// Retry executes the operation with exponential backoff
func (b *Backoff) Retry(ctx context.Context, op func() error) error {
	var err error
	for i := 0; i <= b.MaxRetries; i++ {
		if err = op(); err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if b.Permanent != nil && b.Permanent(err) {
			return err
		}

		if i == b.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Delay(i)):
			b.logger.Warn("retrying after error",
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("max_retries", b.MaxRetries))
		}
	}
	return fmt.Errorf("operation failed after %d retries: %w", b.MaxRetries, err)
}
