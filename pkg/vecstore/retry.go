package vecstore

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Policy is an explicit retry policy: attempt budget, starting backoff
// delay, and the classifier deciding which errors are worth another attempt.
// The classifier is the single source of truth for what is retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// Classify reports whether an error is transient. Defaults to
	// IsTransient when nil.
	Classify func(error) bool
}

// ConnectPolicy is the default policy for connection establishment.
func ConnectPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 2 * time.Second, Classify: IsTransient}
}

// OperationPolicy is the default policy for data operations.
func OperationPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second, Classify: IsTransient}
}

// Do runs fn up to MaxAttempts times, doubling the delay between attempts.
// Permanent errors propagate immediately. The backoff sleep aborts when the
// context is done, so cancellation takes effect between attempts rather than
// mid-call.
func (p Policy) Do(ctx context.Context, logger *zap.Logger, op string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	classify := p.Classify
	if classify == nil {
		classify = IsTransient
	}

	delay := p.BaseDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !classify(lastErr) {
			return lastErr
		}

		if attempt == attempts {
			break
		}

		logger.Warn("retrying transient store failure",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay *= 2
	}

	return lastErr
}
