package rdfexport

import (
	"encoding/json"
	"errors"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
)

func init() {
	err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "rdf",
		Category:    "export",
		Version:     "v1",
		Description: "Serialized derived metadata graph of one entry",
		Factory:     func() any { return &Payload{} },
	})
	if err != nil {
		panic("failed to register Payload: " + err.Error())
	}
}

// RDFExportType is the message type for RDF export payloads.
var RDFExportType = message.Type{Domain: "rdf", Category: "export", Version: "v1"}

// Payload carries one entry's derived graph rendered as RDF.
type Payload struct {
	EntryURI string `json:"entry_uri"`
	GraphURI string `json:"graph_uri"`
	Format   string `json:"format"` // turtle, ntriples, jsonld
	MIMEType string `json:"mime_type"`
	Content  string `json:"content"`
}

// Schema returns the message type for Payload interface.
func (p *Payload) Schema() message.Type { return RDFExportType }

// Validate validates the payload for Payload interface. Content may be empty:
// a cleared derived graph serializes to nothing.
func (p *Payload) Validate() error {
	if p.EntryURI == "" {
		return errors.New("entry_uri is required")
	}
	if p.Format == "" {
		return errors.New("format is required")
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *Payload) MarshalJSON() ([]byte, error) {
	type Alias Payload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Payload) UnmarshalJSON(data []byte) error {
	type Alias Payload
	return json.Unmarshal(data, (*Alias)(p))
}
