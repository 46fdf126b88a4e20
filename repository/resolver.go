package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/c360studio/semreason/graph"
	"github.com/c360studio/semreason/storage"
	"github.com/c360studio/semreason/vocabulary/reasoning"
)

// StoreResolver resolves entries from the named graphs of a primary store.
// The entry graph ({base}/{ctx}/entry/{id}) carries the resource and graph
// type statements; the metadata graph carries the entry's metadata.
type StoreResolver struct {
	store storage.Reader
	uris  URIs
}

// NewStoreResolver creates a resolver over store.
func NewStoreResolver(store storage.Reader, uris URIs) *StoreResolver {
	return &StoreResolver{store: store, uris: uris}
}

// Entry implements Resolver.
func (r *StoreResolver) Entry(ctx context.Context, entryURI string) (*Entry, error) {
	parts, ok := r.uris.Split(entryURI)
	if !ok || parts.Kind != KindEntry {
		return nil, fmt.Errorf("%s: %w", entryURI, ErrNotFound)
	}

	info, err := r.store.Graph(ctx, entryURI)
	if err != nil {
		return nil, fmt.Errorf("load entry graph: %w", err)
	}
	md, err := r.store.Graph(ctx, r.uris.MetadataURI(parts.ContextID, parts.ID))
	if err != nil {
		return nil, fmt.Errorf("load metadata graph: %w", err)
	}
	if len(info) == 0 && len(md) == 0 {
		return nil, fmt.Errorf("%s: %w", entryURI, ErrNotFound)
	}

	entry := &Entry{
		ID:        parts.ID,
		ContextID: parts.ContextID,
		URI:       entryURI,
		GraphType: GraphTypeNone,
		Metadata:  md,
	}
	if objs := info.Objects(reasoning.Resource); len(objs) > 0 {
		entry.ResourceURI = objs[0]
	}
	if objs := info.Objects(reasoning.GraphType); len(objs) > 0 {
		entry.GraphType = ParseGraphType(objs[0])
	}

	if parts.ContextID == SystemContexts {
		entry.GraphType = GraphTypeContext
		if entry.ResourceURI == "" {
			entry.ResourceURI = r.uris.ContextURI(parts.ID)
		}
	}
	if entry.ResourceURI == "" {
		entry.ResourceURI = r.uris.ResourceURI(parts.ContextID, parts.ID)
	}
	return entry, nil
}

// ContextEntries implements Resolver. Any entry-scoped named graph in the
// context counts towards its entry.
func (r *StoreResolver) ContextEntries(ctx context.Context, contextID string) ([]string, error) {
	graphs, err := r.store.Contexts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list named graphs: %w", err)
	}

	seen := make(map[string]struct{})
	for _, g := range graphs {
		parts, ok := r.uris.Split(g)
		if !ok || parts.ContextID != contextID || parts.Kind == KindInferred {
			continue
		}
		seen[r.uris.EntryURI(parts.ContextID, parts.ID)] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for uri := range seen {
		out = append(out, uri)
	}
	sort.Strings(out)
	return out, nil
}

// Contexts implements Resolver.
func (r *StoreResolver) Contexts(ctx context.Context) ([]string, error) {
	entries, err := r.ContextEntries(ctx, SystemContexts)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, uri := range entries {
		if parts, ok := r.uris.Split(uri); ok {
			ids = append(ids, parts.ID)
		}
	}
	return ids, nil
}

// Save writes the entry and metadata graphs of e into store. It is the
// write counterpart of StoreResolver, used for seeding and tests.
func Save(ctx context.Context, store storage.Store, uris URIs, e *Entry) error {
	uri := uris.EntryURI(e.ContextID, e.ID)
	info := graph.Graph{graph.IRI(uri, reasoning.Resource, e.ResourceURI)}
	if e.GraphType != "" && e.GraphType != GraphTypeNone {
		info = append(info, graph.Literal(uri, reasoning.GraphType, string(e.GraphType)))
	}
	if err := store.ReplaceGraph(ctx, uri, info); err != nil {
		return fmt.Errorf("save entry graph: %w", err)
	}
	if err := store.ReplaceGraph(ctx, uris.MetadataURI(e.ContextID, e.ID), e.Metadata); err != nil {
		return fmt.Errorf("save metadata graph: %w", err)
	}
	return nil
}

// Delete removes the entry and metadata graphs of the entry from store.
func Delete(ctx context.Context, store storage.Store, uris URIs, contextID, id string) error {
	if err := store.ClearGraph(ctx, uris.EntryURI(contextID, id)); err != nil {
		return fmt.Errorf("delete entry graph: %w", err)
	}
	if err := store.ClearGraph(ctx, uris.MetadataURI(contextID, id)); err != nil {
		return fmt.Errorf("delete metadata graph: %w", err)
	}
	return nil
}
