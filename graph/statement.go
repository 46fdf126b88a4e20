// Package graph holds the RDF statement model shared by the stores and the
// reasoning engine, and publishes derived graphs to the knowledge graph
// stream.
package graph

import (
	"sort"
	"time"

	"github.com/c360studio/semstreams/message"
)

// Statement is one RDF quad. Objects are IRIs unless Literal is set.
type Statement struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
	Literal   bool   `json:"literal,omitempty"`
	// Context is the named graph holding the statement.
	Context string `json:"context,omitempty"`
}

// IRI builds a statement whose object is a resource.
func IRI(subject, predicate, object string) Statement {
	return Statement{Subject: subject, Predicate: predicate, Object: object}
}

// Literal builds a statement whose object is a plain literal.
func Literal(subject, predicate, value string) Statement {
	return Statement{Subject: subject, Predicate: predicate, Object: value, Literal: true}
}

// In returns a copy of the statement placed in named graph context.
func (s Statement) In(context string) Statement {
	s.Context = context
	return s
}

// Triple returns the statement without its context, for set comparisons.
func (s Statement) Triple() Statement {
	s.Context = ""
	return s
}

// Graph is an ordered collection of statements.
type Graph []Statement

// Add appends a statement unless an equal triple is already present.
func (g *Graph) Add(s Statement) {
	if g.Contains(s) {
		return
	}
	*g = append(*g, s)
}

// Contains reports whether the graph holds the triple of s, ignoring context.
func (g Graph) Contains(s Statement) bool {
	t := s.Triple()
	for _, existing := range g {
		if existing.Triple() == t {
			return true
		}
	}
	return false
}

// Objects returns the objects of statements with the given predicate.
func (g Graph) Objects(predicate string) []string {
	var out []string
	for _, s := range g {
		if s.Predicate == predicate {
			out = append(out, s.Object)
		}
	}
	return out
}

// InContext returns a copy of the graph with every statement in context.
func (g Graph) InContext(context string) Graph {
	out := make(Graph, len(g))
	for i, s := range g {
		out[i] = s.In(context)
	}
	return out
}

// Sorted returns a copy ordered by subject, predicate, then object.
func (g Graph) Sorted() Graph {
	out := make(Graph, len(g))
	copy(out, g)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		if a.Predicate != b.Predicate {
			return a.Predicate < b.Predicate
		}
		return a.Object < b.Object
	})
	return out
}

// Triples converts the graph to semstreams triples.
func (g Graph) Triples(source string, at time.Time) []message.Triple {
	out := make([]message.Triple, 0, len(g))
	for _, s := range g {
		out = append(out, message.Triple{
			Subject:    s.Subject,
			Predicate:  s.Predicate,
			Object:     s.Object,
			Source:     source,
			Timestamp:  at,
			Confidence: 1.0,
		})
	}
	return out
}
