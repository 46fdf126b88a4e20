package repository

import (
	"context"
	"errors"

	"github.com/c360studio/semreason/graph"
	"github.com/c360studio/semreason/vocabulary/reasoning"
)

// ErrNotFound is returned when an entry URI does not resolve.
var ErrNotFound = errors.New("entry not found")

// GraphType classifies what an entry describes.
type GraphType string

// Graph types the reasoning subsystem distinguishes.
const (
	GraphTypeNone    GraphType = "None"
	GraphTypeContext GraphType = "Context"
)

// ParseGraphType accepts a bare name or a terms IRI.
func ParseGraphType(s string) GraphType {
	switch s {
	case "", string(GraphTypeNone):
		return GraphTypeNone
	case string(GraphTypeContext), reasoning.ContextType:
		return GraphTypeContext
	default:
		return GraphType(s)
	}
}

// Entry is a repository entry resolved for reasoning.
type Entry struct {
	ID          string
	ContextID   string
	URI         string
	ResourceURI string
	GraphType   GraphType
	// Metadata is the entry's own metadata graph. It may be nil for entries
	// built from removal events.
	Metadata graph.Graph
}

// IsContext reports whether the entry denotes a whole context.
func (e *Entry) IsContext() bool {
	return e.GraphType == GraphTypeContext
}

// Resolver resolves entries and enumerates contexts.
type Resolver interface {
	// Entry resolves an entry URI. Missing entries yield ErrNotFound.
	Entry(ctx context.Context, entryURI string) (*Entry, error)

	// ContextEntries lists the entry URIs of a context.
	ContextEntries(ctx context.Context, contextID string) ([]string, error)

	// Contexts lists the ids of all contexts.
	Contexts(ctx context.Context) ([]string, error)
}
