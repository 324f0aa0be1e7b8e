package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once           sync.Once
	stepDuration   *prom.HistogramVec
	runDuration    prom.Histogram
	decisions      *prom.CounterVec
	runOutcome     *prom.CounterVec
	trackedOutputs prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stepDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "sitepress",
			Name:      "step_duration_seconds",
			Help:      "Duration of individual step executions",
			Buckets:   prom.DefBuckets,
		}, []string{"step"})
		pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "sitepress",
			Name:      "run_duration_seconds",
			Help:      "Total pipeline run duration",
			Buckets:   prom.DefBuckets,
		})
		pr.decisions = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitepress",
			Name:      "rebuild_decisions_total",
			Help:      "Rebuild decisions by outcome and reason class",
		}, []string{"decision", "reason"})
		pr.runOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitepress",
			Name:      "run_outcomes_total",
			Help:      "Pipeline run outcomes by final status",
		}, []string{"outcome"})
		pr.trackedOutputs = prom.NewGauge(prom.GaugeOpts{
			Namespace: "sitepress",
			Name:      "tracked_outputs",
			Help:      "Output paths tracked by the custody graph after the last run",
		})
		reg.MustRegister(pr.stepDuration, pr.runDuration, pr.decisions, pr.runOutcome, pr.trackedOutputs)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStepDuration(step string, d time.Duration) {
	if p == nil || p.stepDuration == nil {
		return
	}
	p.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncDecision(decision DecisionLabel, reasonClass string) {
	if p == nil || p.decisions == nil {
		return
	}
	p.decisions.WithLabelValues(string(decision), reasonClass).Inc()
}

func (p *PrometheusRecorder) IncRunOutcome(outcome string) {
	if p == nil || p.runOutcome == nil {
		return
	}
	p.runOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) SetTrackedOutputs(n int) {
	if p == nil || p.trackedOutputs == nil {
		return
	}
	p.trackedOutputs.Set(float64(n))
}
