package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventJSONShape(t *testing.T) {
	ev := Event{
		Type:    TypeStepRun,
		RunID:   "run-1",
		Source:  "/site/a.md",
		Outputs: []string{"/out/a.html"},
		Reason:  "missing output (/out/a.html)",
		Time:    time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	}
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "step.run", decoded["type"])
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.NotContains(t, decoded, "outcome", "empty fields are omitted")
}

func TestNoopPublisher(t *testing.T) {
	var p NoopPublisher
	assert.NoError(t, p.Publish(Event{Type: TypeRunStarted}))
	assert.NoError(t, p.Close())
}
