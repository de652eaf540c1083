package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/mqtt2file/internal/infrastructure/logging"
)

// Reconnection defaults.
const (
	DefaultReconnectAttempts = 12
	DefaultReconnectInterval = 5 * time.Second
)

// Supervisor retries a lost connection with a fixed budget.
//
// It sleeps Interval before every attempt, including the first, and makes
// at most Attempts attempts. There is no backoff growth and no jitter. The
// sleep does not observe context cancellation: once started, a reconnection
// sequence runs to success or exhaustion unless the process is killed.
type Supervisor struct {
	Attempts int
	Interval time.Duration

	observers []Observer
	logger    *logging.Logger
	sleep     func(time.Duration)
}

// NewSupervisor creates a Supervisor. Non-positive attempts fall back to
// DefaultReconnectAttempts; a negative interval is treated as zero.
func NewSupervisor(attempts int, interval time.Duration, logger *logging.Logger, observers ...Observer) *Supervisor {
	if attempts <= 0 {
		attempts = DefaultReconnectAttempts
	}
	if interval < 0 {
		interval = 0
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Supervisor{
		Attempts:  attempts,
		Interval:  interval,
		observers: observers,
		logger:    logger,
		sleep:     time.Sleep,
	}
}

// Run calls attempt until it succeeds or the budget is spent.
//
// Returns:
//   - int: Number of attempts made
//   - error: nil once reconnected, or ErrReconnectExhausted wrapping the
//     last attempt's error
func (s *Supervisor) Run(ctx context.Context, attempt func(context.Context) error) (int, error) {
	var lastErr error

	for i := 1; i <= s.Attempts; i++ {
		s.logger.Info("reconnecting", "attempt", i, "of", s.Attempts, "in", s.Interval)
		s.sleep(s.Interval)

		err := attempt(context.WithoutCancel(ctx))
		for _, o := range s.observers {
			o.ObserveReconnect(ctx, i, err)
		}

		if err == nil {
			s.logger.Info("reconnected", "attempt", i)
			return i, nil
		}

		s.logger.Warn("reconnection attempt failed", "attempt", i, "error", err)
		lastErr = err
	}

	return s.Attempts, fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, s.Attempts, lastErr)
}
