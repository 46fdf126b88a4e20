package graph

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
)

func init() {
	err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "graph",
		Category:    "inferred",
		Version:     "v1",
		Description: "Derived metadata graph recomputed for a repository entry",
		Factory:     func() any { return &InferredPayload{} },
	})
	if err != nil {
		panic("failed to register InferredPayload: " + err.Error())
	}
}

// InferredType is the message type for derived graph payloads.
var InferredType = message.Type{Domain: "graph", Category: "inferred", Version: "v1"}

// InferredPayload implements message.Payload and graph.Graphable for derived
// metadata of one entry. The entity id is the entry URI.
type InferredPayload struct {
	EntryURI   string           `json:"id"`
	GraphURI   string           `json:"graph"`
	TripleData []message.Triple `json:"triples"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

func (p *InferredPayload) EntityID() string          { return p.EntryURI }
func (p *InferredPayload) Triples() []message.Triple { return p.TripleData }
func (p *InferredPayload) Schema() message.Type      { return InferredType }

func (p *InferredPayload) Validate() error {
	if p.EntryURI == "" {
		return errors.New("entry URI is required")
	}
	if p.GraphURI == "" {
		return errors.New("graph URI is required")
	}
	return nil
}

func (p *InferredPayload) MarshalJSON() ([]byte, error) {
	type Alias InferredPayload
	return json.Marshal((*Alias)(p))
}

func (p *InferredPayload) UnmarshalJSON(data []byte) error {
	type Alias InferredPayload
	return json.Unmarshal(data, (*Alias)(p))
}
