package reasoner

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
)

func init() {
	err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "repository",
		Category:    "entry",
		Version:     "v1",
		Description: "Repository entry updated or removed notification",
		Factory:     func() any { return &EntryEvent{} },
	})
	if err != nil {
		panic("failed to register EntryEvent payload: " + err.Error())
	}
}

// EntryEventType is the message type for entry notifications.
var EntryEventType = message.Type{Domain: "repository", Category: "entry", Version: "v1"}

// Entry event kinds.
const (
	EventUpdated = "updated"
	EventRemoved = "removed"
)

// EntryEvent notifies that an entry was created, modified or deleted.
type EntryEvent struct {
	Event    string `json:"event"`
	EntryURI string `json:"entry_uri"`
	// ResourceURI and GraphType describe removed entries, which can no
	// longer be resolved from the store.
	ResourceURI string `json:"resource_uri,omitempty"`
	GraphType   string `json:"graph_type,omitempty"`
}

// Schema returns the message type for the Payload interface.
func (e *EntryEvent) Schema() message.Type { return EntryEventType }

// Validate validates the payload for the Payload interface.
func (e *EntryEvent) Validate() error {
	switch e.Event {
	case EventUpdated, EventRemoved:
	case "":
		return errors.New("event is required")
	default:
		return fmt.Errorf("unknown event %q", e.Event)
	}
	if e.EntryURI == "" {
		return errors.New("entry_uri is required")
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e *EntryEvent) MarshalJSON() ([]byte, error) {
	type Alias EntryEvent
	return json.Marshal((*Alias)(e))
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *EntryEvent) UnmarshalJSON(data []byte) error {
	type Alias EntryEvent
	return json.Unmarshal(data, (*Alias)(e))
}
