package fetch

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"njvaxbot/internal/logger"
	"njvaxbot/internal/table"
)

type countingObserver struct {
	ok, failed int
}

func (c *countingObserver) ObserveAttempt(_ string, success bool) {
	if success {
		c.ok++
	} else {
		c.failed++
	}
}

func newTestRetrying(t *testing.T, budget int, buf *bytes.Buffer) (*Retrying, *[]time.Duration) {
	t.Helper()

	var l *logger.Logger
	if buf != nil {
		l = logger.New(logger.Options{Writer: buf, Level: "debug"})
	}

	r, err := New(budget, 5*time.Second, l)
	require.NoError(t, err)

	var sleeps []time.Duration

	r.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)

		return nil
	}

	return r, &sleeps
}

func TestRetryingSucceedsFirstTry(t *testing.T) {
	r, sleeps := newTestRetrying(t, 5, nil)

	calls := 0
	got, err := r.Do(context.Background(), "cases", func(context.Context) ([]table.RawRecord, error) {
		calls++

		return []table.RawRecord{{"Atlantic County", "1"}}, nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *sleeps)
}

func TestRetryingRecoversAfterEmptyResults(t *testing.T) {
	var buf bytes.Buffer

	r, sleeps := newTestRetrying(t, 5, &buf)
	obs := &countingObserver{}
	r.Observer = obs

	calls := 0
	got, err := r.Do(context.Background(), "vaccine", func(context.Context) ([]table.RawRecord, error) {
		calls++
		if calls < 3 {
			return nil, nil
		}

		return []table.RawRecord{{"ATLANTIC COUNTY", "10"}}, nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, *sleeps)
	assert.Equal(t, 1, obs.ok)
	assert.Equal(t, 2, obs.failed)
	assert.Contains(t, buf.String(), "attempts_remaining=5")
	assert.Contains(t, buf.String(), "attempts_remaining=4")
}

func TestRetryingExhaustsBudget(t *testing.T) {
	boom := errors.New("connection reset")

	for _, budget := range []int{0, 1, 5} {
		r, sleeps := newTestRetrying(t, budget, nil)

		calls := 0
		_, err := r.Do(context.Background(), "cases", func(context.Context) ([]table.RawRecord, error) {
			calls++

			return nil, boom
		})
		require.ErrorIs(t, err, ErrFetchExhausted)
		require.ErrorIs(t, err, boom)
		assert.Equal(t, budget+1, calls)
		assert.Len(t, *sleeps, budget)

		stats := r.Attempts.Stats()
		assert.Equal(t, budget+1, stats.FailedAttempts)
		assert.Equal(t, 1, stats.FailedSources)
	}
}

func TestRetryingStopsOnCancelledContext(t *testing.T) {
	r, err := New(3, time.Hour, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err = r.Do(ctx, "cases", func(context.Context) ([]table.RawRecord, error) {
		calls++
		cancel()

		return nil, nil
	})
	require.ErrorIs(t, err, ErrFetchExhausted)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestNewRejectsNegativeBudget(t *testing.T) {
	_, err := New(-1, 0, nil)
	require.ErrorIs(t, err, ErrInvalidBudget)
}

func TestAttemptLogSummary(t *testing.T) {
	var buf bytes.Buffer

	a := NewAttemptLog()
	a.Record("cases", 1, errors.New("timeout"), time.Second)
	a.Record("cases", 2, nil, time.Second)
	a.Record("vaccine", 1, nil, time.Second)

	a.LogSummary(logger.New(logger.Options{Writer: &buf}))

	out := buf.String()
	assert.Contains(t, out, "cases")
	assert.Contains(t, out, "timeout")
	assert.Contains(t, out, "Sources: 2 total, 2 success, 0 failed")
}
