package metrics

import "time"

// DecisionLabel enumerates rebuild decision outcomes for counters.
type DecisionLabel string

const (
	DecisionStale DecisionLabel = "stale"
	DecisionFresh DecisionLabel = "fresh"
)

// Recorder defines observability hooks for pipeline runs. Implementations
// may forward to Prometheus, OpenTelemetry, etc. All methods must be safe
// for nil receivers when using the NoopRecorder (allowing optional injection).
type Recorder interface {
	ObserveStepDuration(step string, d time.Duration)
	ObserveRunDuration(d time.Duration)
	IncDecision(decision DecisionLabel, reasonClass string)
	IncRunOutcome(outcome string) // outcome: success|failed
	SetTrackedOutputs(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStepDuration(string, time.Duration) {}
func (NoopRecorder) ObserveRunDuration(time.Duration)          {}
func (NoopRecorder) IncDecision(DecisionLabel, string)         {}
func (NoopRecorder) IncRunOutcome(string)                      {}
func (NoopRecorder) SetTrackedOutputs(int)                     {}

// ReasonClass reduces a free-form staleness reason to a low-cardinality
// label: the part before any parenthesized detail.
func ReasonClass(reason string) string {
	for i := 0; i < len(reason); i++ {
		if reason[i] == '(' {
			for i > 0 && reason[i-1] == ' ' {
				i--
			}
			return reason[:i]
		}
	}
	return reason
}
