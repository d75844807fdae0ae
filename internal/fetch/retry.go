// Package fetch wraps record providers with a bounded retry budget.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"njvaxbot/internal/logger"
	"njvaxbot/internal/table"
)

// Retry defaults match the public dashboards' refresh behavior.
const (
	DefaultBudget  = 5
	DefaultBackoff = 5 * time.Second
)

// Fetch errors.
var (
	ErrFetchExhausted = errors.New("fetch exhausted")
	ErrInvalidBudget  = errors.New("retry budget must not be negative")
)

// Call performs one fetch attempt. An empty result counts as a failure.
type Call func(ctx context.Context) ([]table.RawRecord, error)

// Observer is notified after each attempt.
type Observer interface {
	ObserveAttempt(source string, success bool)
}

// Retrying invokes a call until it yields records or the budget runs out.
// A budget of N allows 1 + N calls.
type Retrying struct {
	Log      *logger.Logger
	Observer Observer
	Attempts *AttemptLog
	sleep    func(ctx context.Context, d time.Duration) error
	Budget   int
	Backoff  time.Duration
}

// New creates a Retrying fetcher.
func New(budget int, backoff time.Duration, l *logger.Logger) (*Retrying, error) {
	if budget < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBudget, budget)
	}

	if l == nil {
		l = logger.Discard()
	}

	return &Retrying{
		Budget:   budget,
		Backoff:  backoff,
		Log:      l,
		Attempts: NewAttemptLog(),
		sleep:    sleepContext,
	}, nil
}

// Do runs call under the retry budget. Errors from call are treated like an
// empty result. The last error is wrapped into ErrFetchExhausted.
func (r *Retrying) Do(ctx context.Context, source string, call Call) ([]table.RawRecord, error) {
	log := r.Log
	if log == nil {
		log = logger.Discard()
	}

	sleep := r.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	remaining := r.Budget

	var lastErr error

	for attempt := 1; ; attempt++ {
		start := time.Now()
		records, err := call(ctx)
		duration := time.Since(start)

		if err == nil && len(records) == 0 {
			err = errors.New("no records returned")
		}

		success := err == nil
		if r.Attempts != nil {
			r.Attempts.Record(source, attempt, err, duration)
		}

		if r.Observer != nil {
			r.Observer.ObserveAttempt(source, success)
		}

		if success {
			log.Debug("fetch succeeded", "source", source, "attempt", attempt, "records", len(records))

			return records, nil
		}

		lastErr = err

		if remaining <= 0 {
			break
		}

		log.Warn("fetch failed, retrying",
			"source", source,
			"attempt", attempt,
			"attempts_remaining", remaining,
			"error", err,
		)

		remaining--

		if err := sleep(ctx, r.Backoff); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrFetchExhausted, source, err)
		}
	}

	log.Error("fetch exhausted", "source", source, "attempts", r.Budget+1, "error", lastErr)

	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrFetchExhausted, source, r.Budget+1, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
