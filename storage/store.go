// Package storage provides the quad stores the reasoning subsystem reads
// repository metadata from and writes derived graphs to. Backends are an
// in-process map, an embedded BadgerDB and a NATS KV bucket.
package storage

import (
	"context"

	"github.com/c360studio/semreason/graph"
)

// Pattern selects statements. Empty fields match anything.
type Pattern struct {
	Subject   string
	Predicate string
	Object    string
	Context   string
}

// Matches reports whether s satisfies the pattern.
func (p Pattern) Matches(s graph.Statement) bool {
	if p.Subject != "" && p.Subject != s.Subject {
		return false
	}
	if p.Predicate != "" && p.Predicate != s.Predicate {
		return false
	}
	if p.Object != "" && p.Object != s.Object {
		return false
	}
	if p.Context != "" && p.Context != s.Context {
		return false
	}
	return true
}

// Reader is the query side of a store.
type Reader interface {
	// Match returns every statement matching the pattern, with Context set
	// to the named graph holding it.
	Match(ctx context.Context, p Pattern) (graph.Graph, error)

	// Graph returns the statements of one named graph. A missing graph
	// yields an empty result, not an error.
	Graph(ctx context.Context, graphIRI string) (graph.Graph, error)

	// Contexts lists the named graphs that hold at least one statement.
	Contexts(ctx context.Context) ([]string, error)
}

// Store is a Reader that also owns its named graphs.
type Store interface {
	Reader

	// ReplaceGraph clears the named graph and inserts g in one transaction.
	// An empty g leaves the graph cleared.
	ReplaceGraph(ctx context.Context, graphIRI string, g graph.Graph) error

	// ClearGraph removes every statement of the named graph.
	ClearGraph(ctx context.Context, graphIRI string) error

	Close() error
}
