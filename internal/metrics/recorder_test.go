package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestReasonClass(t *testing.T) {
	cases := map[string]string{
		"stale parameters":                  "stale parameters",
		"missing output (/tmp/out/a.html)":  "missing output",
		"stale upstream (input/a.txt)":      "stale upstream",
		"stale downstream (output/a.html)":  "stale downstream",
		"missing upstream record (/tmp/in)": "missing upstream record",
		"up to date":                        "up to date",
	}
	for in, want := range cases {
		assert.Equal(t, want, ReasonClass(in), "input %q", in)
	}
}

func TestPrometheusRecorderCounts(t *testing.T) {
	reg := prom.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.IncDecision(DecisionStale, "stale upstream")
	rec.IncDecision(DecisionStale, "stale upstream")
	rec.IncDecision(DecisionFresh, "up to date")
	rec.IncRunOutcome("success")
	rec.ObserveStepDuration("copy", 10*time.Millisecond)
	rec.ObserveRunDuration(time.Second)
	rec.SetTrackedOutputs(42)

	assert.Equal(t, float64(2), testutil.ToFloat64(
		rec.decisions.WithLabelValues("stale", "stale upstream")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		rec.decisions.WithLabelValues("fresh", "up to date")))
	assert.Equal(t, float64(42), testutil.ToFloat64(rec.trackedOutputs))
}

func TestNoopRecorderIsSafe(t *testing.T) {
	var rec NoopRecorder
	rec.IncDecision(DecisionStale, "x")
	rec.IncRunOutcome("success")
	rec.ObserveStepDuration("copy", time.Millisecond)
	rec.ObserveRunDuration(time.Millisecond)
	rec.SetTrackedOutputs(0)
}
