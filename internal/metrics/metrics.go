// Package metrics records backend and stage counters with Prometheus.
// A short-lived CLI has nothing to scrape, so the registry is written to a
// node_exporter textfile at the end of a run.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors of one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	backendRequests *prometheus.CounterVec
	backendRetries  *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	backendTokens   *prometheus.CounterVec
	stageRuns       *prometheus.CounterVec
}

// New registers the uvmgen collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		backendRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uvmgen_backend_requests_total",
				Help: "Backend calls by stage and outcome (text, raw, error).",
			},
			[]string{"stage", "outcome"},
		),
		backendRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uvmgen_backend_retries_total",
				Help: "Backend call retries after a transport fault.",
			},
			[]string{"stage"},
		),
		backendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "uvmgen_backend_request_duration_seconds",
				Help:    "Wall time of backend calls including retries.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"stage"},
		),
		backendTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uvmgen_backend_tokens_total",
				Help: "Tokens reported by the backend.",
			},
			[]string{"stage", "direction"},
		),
		stageRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uvmgen_stage_runs_total",
				Help: "Stage runs by result (extracted, no_code, failed).",
			},
			[]string{"stage", "result"},
		),
	}
	m.Registry.MustRegister(m.backendRequests, m.backendRetries, m.backendDuration, m.backendTokens, m.stageRuns)
	return m
}

func (m *Metrics) BackendRequest(stage, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.backendRequests.WithLabelValues(stage, outcome).Inc()
	m.backendDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) BackendRetry(stage string) {
	if m == nil {
		return
	}
	m.backendRetries.WithLabelValues(stage).Inc()
}

func (m *Metrics) Tokens(stage string, in, out int) {
	if m == nil {
		return
	}
	m.backendTokens.WithLabelValues(stage, "input").Add(float64(in))
	m.backendTokens.WithLabelValues(stage, "output").Add(float64(out))
}

func (m *Metrics) StageRun(stage, result string) {
	if m == nil {
		return
	}
	m.stageRuns.WithLabelValues(stage, result).Inc()
}

// WriteTextfile atomically writes the registry in text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
