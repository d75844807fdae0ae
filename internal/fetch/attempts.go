package fetch

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"njvaxbot/internal/logger"
)

// AttemptResult records the result of one fetch attempt.
type AttemptResult struct {
	Timestamp time.Time
	Source    string
	Error     string
	Attempt   int
	Duration  time.Duration
	Success   bool
}

// AttemptLog collects attempt results per source. It is safe for concurrent use.
type AttemptLog struct {
	results map[string][]AttemptResult
	mu      sync.Mutex
}

// NewAttemptLog creates an empty log.
func NewAttemptLog() *AttemptLog {
	return &AttemptLog{results: make(map[string][]AttemptResult)}
}

// Record appends an attempt.
func (a *AttemptLog) Record(source string, attempt int, err error, duration time.Duration) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.results[source] = append(a.results[source], AttemptResult{
		Timestamp: time.Now(),
		Source:    source,
		Error:     errMsg,
		Attempt:   attempt,
		Duration:  duration,
		Success:   err == nil,
	})
}

// Results returns the attempts of one source.
func (a *AttemptLog) Results(source string) []AttemptResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]AttemptResult(nil), a.results[source]...)
}

// Stats summarizes every recorded attempt.
func (a *AttemptLog) Stats() AttemptStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := AttemptStats{SourceAttempts: make(map[string]int)}

	for source, results := range a.results {
		stats.TotalSources++
		stats.SourceAttempts[source] = len(results)
		stats.TotalAttempts += len(results)

		ok := false

		for _, r := range results {
			if r.Success {
				stats.SuccessfulAttempts++
				ok = true
			} else {
				stats.FailedAttempts++
			}
		}

		if ok {
			stats.SuccessfulSources++
		} else {
			stats.FailedSources++
		}
	}

	return stats
}

// AttemptStats contains statistics about fetch attempts.
type AttemptStats struct {
	SourceAttempts     map[string]int
	TotalSources       int
	SuccessfulSources  int
	FailedSources      int
	TotalAttempts      int
	SuccessfulAttempts int
	FailedAttempts     int
}

// String returns a string representation of attempt stats.
func (s AttemptStats) String() string {
	return fmt.Sprintf(
		"Sources: %d total, %d success, %d failed | Attempts: %d total, %d success, %d failed",
		s.TotalSources,
		s.SuccessfulSources,
		s.FailedSources,
		s.TotalAttempts,
		s.SuccessfulAttempts,
		s.FailedAttempts,
	)
}

// LogSummary logs every source's attempts followed by the overall stats.
func (a *AttemptLog) LogSummary(l *logger.Logger) {
	a.mu.Lock()
	sources := make([]string, 0, len(a.results))

	for s := range a.results {
		sources = append(sources, s)
	}
	a.mu.Unlock()

	sort.Strings(sources)

	l.Info("📊 Fetch Attempt Summary:")

	for i, source := range sources {
		results := a.Results(source)
		status := "❌"

		if results[len(results)-1].Success {
			status = "✅"
		}

		l.Info(fmt.Sprintf("%d. %s %s (%d attempts)", i+1, source, status, len(results)))

		for _, r := range results {
			line := "✅ Success"
			if !r.Success {
				line = fmt.Sprintf("❌ Failed: %s", r.Error)
			}

			l.Info(fmt.Sprintf("     Attempt %d: %s (%.2fs)", r.Attempt, line, r.Duration.Seconds()))
		}
	}

	l.Info(fmt.Sprintf("Overall: %s", a.Stats()))
}
