package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"math/rand/v2"
	"time"

	"ekh_mining/internal/logger"
)

var ErrInvalidConfig = errors.New("invalid retry config")

const maxBackoff = time.Duration(math.MaxInt64 / 2)

// Config controls the retry budget of an Executor.
type Config struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration // 0 = без ограничения
	Jitter      bool
	ShouldRetry func(error) bool
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Executor wraps remote operations with bounded exponential backoff.
type Executor struct {
	cfg   Config
	sleep func(ctx context.Context, d time.Duration) error
}

// New validates cfg and returns an Executor. A nil ShouldRetry means Retryable.
func New(cfg Config) (*Executor, error) {
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: max retries %d < 0", ErrInvalidConfig, cfg.MaxRetries)
	}
	if cfg.BaseDelay <= 0 {
		return nil, fmt.Errorf("%w: base delay must be positive", ErrInvalidConfig)
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = Retryable
	}
	return &Executor{cfg: cfg, sleep: sleepCtx}, nil
}

// MustNew is New for static configs.
func MustNew(cfg Config) *Executor {
	e, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return e
}

// WithSleep replaces the wait function; tests use it to observe delays.
func (e *Executor) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Executor {
	c := *e
	c.sleep = fn
	return &c
}

// Do runs fn until it succeeds, fails terminally or the budget is spent.
func (e *Executor) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			attemptsTotal.WithLabelValues(op).Inc()
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !e.cfg.ShouldRetry(lastErr) {
			return lastErr
		}
		if attempt == e.cfg.MaxRetries {
			break
		}

		delay := e.Backoff(attempt)
		logger.WithContext(ctx).Debug("retrying operation",
			"op", op, "attempt", attempt+1, "delay", delay, "error", lastErr)

		if err := e.sleep(ctx, delay); err != nil {
			return errors.Join(err, lastErr)
		}
	}

	exhaustedTotal.WithLabelValues(op).Inc()
	logger.WithContext(ctx).Warn("retry budget exhausted", "op", op, "attempts", e.cfg.MaxRetries+1, "error", lastErr)
	return &ExhaustedError{Op: op, Attempts: e.cfg.MaxRetries + 1, Err: lastErr}
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, e *Executor, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Backoff returns the wait before retry number attempt+1: BaseDelay * 2^attempt.
func (e *Executor) Backoff(attempt int) time.Duration {
	d := maxBackoff
	// BaseDelay<<attempt must stay below 2^62
	if attempt < 63-bits.Len64(uint64(e.cfg.BaseDelay)) {
		d = e.cfg.BaseDelay << uint(max(attempt, 0))
	}
	if e.cfg.MaxDelay > 0 && d > e.cfg.MaxDelay {
		d = e.cfg.MaxDelay
	}
	if e.cfg.Jitter && d > 1 {
		d += rand.N(d / 2)
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
