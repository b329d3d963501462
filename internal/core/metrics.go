package core

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"deckcore/internal/stepgen"
)

const metricsNamespace = "deckcore"

// PrometheusRecorder exports service and simulation metrics as Prometheus
// collectors. It implements MetricsRecorder and SimulationObserver.
type PrometheusRecorder struct {
	steps          prometheus.Counter
	failedSteps    prometheus.Counter
	commands       *prometheus.CounterVec
	creationErrors *prometheus.CounterVec
	durations      *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the collectors with reg. A nil reg uses a
// fresh registry, which keeps repeated construction in tests independent.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r := &PrometheusRecorder{
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "simulated_steps_total",
			Help:      "Protocol steps folded into a timeline, including failed steps.",
		}),
		failedSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "failed_steps_total",
			Help:      "Protocol steps that reported command creation errors.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commands_emitted_total",
			Help:      "Commands emitted by simulation, by command type.",
		}, []string{"type"}),
		creationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "creation_errors_total",
			Help:      "Command creation errors, by error type.",
		}, []string{"type"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
	}
	for _, c := range []prometheus.Collector{r.steps, r.failedSteps, r.commands, r.creationErrors, r.durations} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	r.durations.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// ObserveTimeline implements SimulationObserver.
func (r *PrometheusRecorder) ObserveTimeline(_ context.Context, tl stepgen.Timeline) {
	r.steps.Add(float64(len(tl.Frames)))
	for _, f := range tl.Frames {
		for _, cmd := range f.Commands {
			r.commands.WithLabelValues(cmd.CommandType()).Inc()
		}
	}
	if tl.Error == nil {
		return
	}
	r.steps.Inc()
	r.failedSteps.Inc()
	for _, ce := range tl.Error.Errors {
		r.creationErrors.WithLabelValues(string(ce.Type)).Inc()
	}
}
