package eventlog

import (
	"encoding/json"
	"fmt"

	"github.com/marcus-ai/marcus/internal/nats"
)

// subjectPrefix is the NATS subject namespace events are published under.
const subjectPrefix = "marcus.events."

// NATSPublisher broadcasts events over the embedded NATS server started by
// cmd/marcus, giving push-retry reconciliation (§4.7) and the stale-agent
// sweeper a durable, multi-subscriber broadcast channel instead of the
// teacher's ad hoc in-process Bus alone — the teacher already embeds
// nats-server for this reason (internal/nats/server.go).
type NATSPublisher struct {
	client *nats.Client
}

// NewNATSPublisher wraps an already-connected NATS client.
func NewNATSPublisher(client *nats.Client) *NATSPublisher {
	return &NATSPublisher{client: client}
}

// Publish broadcasts an event on a subject keyed by its type.
func (p *NATSPublisher) Publish(e Event) {
	if p == nil || p.client == nil {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	_ = p.client.Publish(fmt.Sprintf("%s%s", subjectPrefix, e.Type), data)
}
