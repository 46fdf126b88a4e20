package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/c360studio/semreason/graph"
)

// MemoryStore keeps named graphs in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	graphs map[string]graph.Graph
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{graphs: make(map[string]graph.Graph)}
}

// Match implements Reader.
func (s *MemoryStore) Match(ctx context.Context, p Pattern) (graph.Graph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var out graph.Graph
	if p.Context != "" {
		for _, st := range s.graphs[p.Context] {
			if p.Matches(st) {
				out = append(out, st)
			}
		}
		return out, nil
	}

	for _, iri := range s.sortedContexts() {
		for _, st := range s.graphs[iri] {
			if p.Matches(st) {
				out = append(out, st)
			}
		}
	}
	return out, nil
}

// Graph implements Reader.
func (s *MemoryStore) Graph(ctx context.Context, graphIRI string) (graph.Graph, error) {
	return s.Match(ctx, Pattern{Context: graphIRI})
}

// Contexts implements Reader.
func (s *MemoryStore) Contexts(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.sortedContexts(), nil
}

// ReplaceGraph implements Store.
func (s *MemoryStore) ReplaceGraph(ctx context.Context, graphIRI string, g graph.Graph) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if len(g) == 0 {
		delete(s.graphs, graphIRI)
		return nil
	}
	var stored graph.Graph
	for _, st := range g {
		stored.Add(st.In(graphIRI))
	}
	s.graphs[graphIRI] = stored
	return nil
}

// ClearGraph implements Store.
func (s *MemoryStore) ClearGraph(ctx context.Context, graphIRI string) error {
	return s.ReplaceGraph(ctx, graphIRI, nil)
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.graphs = nil
	return nil
}

func (s *MemoryStore) sortedContexts() []string {
	out := make([]string, 0, len(s.graphs))
	for iri := range s.graphs {
		out = append(out, iri)
	}
	sort.Strings(out)
	return out
}
