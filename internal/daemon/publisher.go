package daemon

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/wikigen/internal/events"
)

// Publisher forwards cycle events to NATS so external consumers (dashboards,
// notification pipelines) can follow generation progress.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// envelope is the wire shape of a published event.
type envelope struct {
	Repo      string    `json:"repo"`
	Language  string    `json:"language"`
	Type      string    `json:"type"` // "state_changed" or "cycle_completed"
	Epoch     uint64    `json:"epoch"`
	State     string    `json:"state,omitempty"`
	Status    string    `json:"status,omitempty"`
	CycleID   string    `json:"cycle_id,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Pages     int       `json:"pages,omitempty"`
	Failed    int       `json:"failed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewPublisher connects to NATS.
func NewPublisher(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("wikigen-publisher"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, subject: subject}, nil
}

// Watch forwards state changes and cycle completions from one entry's bus.
// The returned function detaches the forwarders.
func (p *Publisher) Watch(slug, language string, bus *events.Bus) func() {
	states, unsubStates := events.Subscribe[events.StateChanged](bus, 16)
	cycles, unsubCycles := events.Subscribe[events.CycleCompleted](bus, 16)

	go func() {
		for evt := range states {
			p.publish(envelope{
				Repo: slug, Language: language, Type: "state_changed",
				Epoch: evt.Epoch, State: evt.State, Status: evt.Status,
				Timestamp: evt.ChangedAt,
			})
		}
	}()
	go func() {
		for evt := range cycles {
			p.publish(envelope{
				Repo: slug, Language: language, Type: "cycle_completed",
				Epoch: evt.Epoch, CycleID: evt.CycleID, Outcome: evt.Outcome,
				Pages: evt.Pages, Failed: evt.Failed,
				Timestamp: evt.CompletedAt,
			})
		}
	}()

	return func() {
		unsubStates()
		unsubCycles()
	}
}

func (p *Publisher) publish(env envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		slog.Warn("Failed to marshal event envelope", "error", err)
		return
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		slog.Warn("Failed to publish event to NATS", "subject", p.subject, "error", err)
	}
}

// Close drains the connection.
func (p *Publisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}
