package events

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	builderr "git.home.luguber.info/inful/sitepress/internal/errors"
)

// Event types emitted over the lifetime of a pipeline run.
const (
	TypeRunStarted  = "run.started"
	TypeRunFinished = "run.finished"
	TypeStepRun     = "step.run"
	TypeStepSkipped = "step.skipped"
)

// Event is a single pipeline occurrence, serialized as JSON on the wire.
type Event struct {
	Type    string    `json:"type"`
	RunID   string    `json:"run_id"`
	Source  string    `json:"source,omitempty"`
	Outputs []string  `json:"outputs,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	Outcome string    `json:"outcome,omitempty"`
	Time    time.Time `json:"time"`
}

// Publisher delivers events to interested subscribers. Publishing is best
// effort from the pipeline's perspective: a failed publish never fails a run.
type Publisher interface {
	Publish(ev Event) error
	Close() error
}

// NoopPublisher drops all events (default when events are not configured).
type NoopPublisher struct{}

func (NoopPublisher) Publish(Event) error { return nil }
func (NoopPublisher) Close() error        { return nil }

// NATSPublisher publishes events to a NATS subject hierarchy rooted at a
// configurable prefix, e.g. "sitepress.run.finished".
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher connects to the given NATS URL. An empty prefix defaults
// to "sitepress".
func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	if prefix == "" {
		prefix = "sitepress"
	}
	conn, err := nats.Connect(url, nats.Name("sitepress"))
	if err != nil {
		return nil, builderr.Wrap(err, builderr.CategoryNetwork, builderr.SeverityError,
			"connecting to event broker")
	}
	return &NATSPublisher{conn: conn, prefix: prefix}, nil
}

func (p *NATSPublisher) Publish(ev Event) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return builderr.Wrap(err, builderr.CategoryInternal, builderr.SeverityError,
			"encoding event")
	}
	return p.conn.Publish(p.prefix+"."+ev.Type, payload)
}

// Close flushes pending messages before closing the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
