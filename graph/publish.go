package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360studio/semstreams/message"
)

// InferredUpdatedSubject is where derived graph updates are published.
const InferredUpdatedSubject = "graph.inferred.updated"

// StreamPublisher is the subset of natsclient.Client used for publishing.
type StreamPublisher interface {
	PublishToStream(ctx context.Context, subject string, data []byte) error
}

// Publisher announces recomputed derived graphs to downstream indexers.
type Publisher struct {
	nc      StreamPublisher
	subject string
	source  string
}

// NewPublisher creates a publisher. A nil client turns publishing into a
// no-op.
func NewPublisher(nc StreamPublisher, subject string) *Publisher {
	if subject == "" {
		subject = InferredUpdatedSubject
	}
	return &Publisher{nc: nc, subject: subject, source: "semreason.inferred"}
}

// InferredUpdated publishes the new derived graph of an entry.
func (p *Publisher) InferredUpdated(ctx context.Context, entryURI, graphURI string, g Graph) error {
	if p == nil || p.nc == nil {
		return nil
	}

	now := time.Now()
	payload := &InferredPayload{
		EntryURI:   entryURI,
		GraphURI:   graphURI,
		TripleData: g.Triples(p.source, now),
		UpdatedAt:  now,
	}

	baseMsg := message.NewBaseMessage(InferredType, payload, "semreason")
	data, err := json.Marshal(baseMsg)
	if err != nil {
		return fmt.Errorf("marshal inferred graph: %w", err)
	}

	if err := p.nc.PublishToStream(ctx, p.subject, data); err != nil {
		return fmt.Errorf("publish inferred graph to %s: %w", p.subject, err)
	}
	return nil
}
