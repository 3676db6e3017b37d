// Package metrics exposes run counters and step latency for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one process. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	runs          *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	stepErrors    *prometheus.CounterVec
	currentStreak prometheus.Gauge
	maxStreak     prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streak_runs_total",
				Help: "Login runs by outcome",
			},
			[]string{"outcome"},
		),
		// Buckets sized for round trips to a remote web app
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "streak_step_duration_seconds",
				Help:    "Duration of each step of the login sequence",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"step"},
		),
		stepErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streak_step_errors_total",
				Help: "Failed steps by step and error kind",
			},
			[]string{"step", "kind"},
		),
		currentStreak: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streak_current_days",
			Help: "Current day streak reported by the last successful run",
		}),
		maxStreak: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streak_max_days",
			Help: "Maximum day streak reported by the last successful run",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streak_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		}),
	}
	m.Registry.MustRegister(m.runs, m.stepDuration, m.stepErrors, m.currentStreak, m.maxStreak, m.lastSuccess)
	return m
}

// ObserveStep records how long step took.
func (m *Metrics) ObserveStep(step string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// StepFailed counts a failed step.
func (m *Metrics) StepFailed(step, kind string) {
	if m == nil {
		return
	}
	m.stepErrors.WithLabelValues(step, kind).Inc()
}

// RunFinished counts a run. The streak gauges only move on success.
func (m *Metrics) RunFinished(outcome string, current, maxDays int64, at time.Time) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.currentStreak.Set(float64(current))
		m.maxStreak.Set(float64(maxDays))
		m.lastSuccess.Set(float64(at.Unix()))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
