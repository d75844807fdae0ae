// Package metrics exposes the per-run Prometheus collectors. A batch job has no
// scrape endpoint, so the registry is flushed once at the end of a run to a
// node_exporter textfile and/or a Pushgateway.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Recorder holds the collectors of one pipeline run.
type Recorder struct {
	Registry       *prometheus.Registry
	FetchAttempts  *prometheus.CounterVec
	JoinedRows     *prometheus.GaugeVec
	DroppedKeys    *prometheus.GaugeVec
	LayersRendered *prometheus.CounterVec
	RunDuration    *prometheus.GaugeVec
	LastSuccess    *prometheus.GaugeVec
}

// New creates and registers the collectors on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		Registry: prometheus.NewRegistry(),
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "njvaxbot_fetch_attempts_total",
			Help: "Fetch attempts by source and result",
		}, []string{"source", "result"}),
		JoinedRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "njvaxbot_joined_rows",
			Help: "Entities in the joined table",
		}, []string{"pipeline"}),
		DroppedKeys: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "njvaxbot_dropped_keys",
			Help: "Entity keys dropped by the inner join",
		}, []string{"pipeline"}),
		LayersRendered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "njvaxbot_layers_rendered_total",
			Help: "Map layers written",
		}, []string{"pipeline", "layer"}),
		RunDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "njvaxbot_run_duration_seconds",
			Help: "Wall time of the last run",
		}, []string{"pipeline"}),
		LastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "njvaxbot_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		}, []string{"pipeline"}),
	}

	r.Registry.MustRegister(
		r.FetchAttempts,
		r.JoinedRows,
		r.DroppedKeys,
		r.LayersRendered,
		r.RunDuration,
		r.LastSuccess,
	)

	return r
}

// ObserveAttempt counts one fetch attempt.
func (r *Recorder) ObserveAttempt(source string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}

	r.FetchAttempts.WithLabelValues(source, result).Inc()
}

// ObserveJoin records the joined and dropped entity counts.
func (r *Recorder) ObserveJoin(pipeline string, rows, dropped int) {
	r.JoinedRows.WithLabelValues(pipeline).Set(float64(rows))
	r.DroppedKeys.WithLabelValues(pipeline).Set(float64(dropped))
}

// ObserveLayer counts one rendered layer.
func (r *Recorder) ObserveLayer(pipeline, layer string) {
	r.LayersRendered.WithLabelValues(pipeline, layer).Inc()
}

// ObserveRun records the run duration and, on success, its end time.
func (r *Recorder) ObserveRun(pipeline string, started time.Time, err error) {
	end := time.Now()
	r.RunDuration.WithLabelValues(pipeline).Set(end.Sub(started).Seconds())

	if err == nil {
		r.LastSuccess.WithLabelValues(pipeline).Set(float64(end.Unix()))
	}
}

// WriteTextfile writes the registry in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}

	if err := prometheus.WriteToTextfile(path, r.Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}

	return nil
}

// Push sends the registry to a Pushgateway under job.
func (r *Recorder) Push(url, job string) error {
	if err := push.New(url, job).Gatherer(r.Registry).Push(); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}

	return nil
}
