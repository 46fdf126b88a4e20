package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/c360studio/semreason/graph"
	"github.com/c360studio/semreason/storage"
	"github.com/c360studio/semreason/vocabulary/reasoning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const base = "http://example.org/store"

func TestURIs_Fabricate(t *testing.T) {
	u := NewURIs(base)

	assert.Equal(t, "http://example.org/store/", u.Base())
	assert.Equal(t, "http://example.org/store/7/entry/42", u.EntryURI("7", "42"))
	assert.Equal(t, "http://example.org/store/7/metadata/42", u.MetadataURI("7", "42"))
	assert.Equal(t, "http://example.org/store/7/resource/42", u.ResourceURI("7", "42"))
	assert.Equal(t, "http://example.org/store/7/inferred/42", u.InferredURI("7", "42"))
	assert.Equal(t, "http://example.org/store/7", u.ContextURI("7"))
	assert.Equal(t, "http://example.org/store/_contexts/entry/7", u.ContextEntryURI("7"))
	assert.Equal(t, u, NewURIs(base+"/"))
}

func TestURIs_Split(t *testing.T) {
	u := NewURIs(base)

	tests := []struct {
		uri  string
		want Parts
		ok   bool
	}{
		{base + "/7/entry/42", Parts{ContextID: "7", Kind: KindEntry, ID: "42"}, true},
		{base + "/7/inferred/42", Parts{ContextID: "7", Kind: KindInferred, ID: "42"}, true},
		{base + "/7/bogus/42", Parts{}, false},
		{base + "/7", Parts{}, false},
		{base + "/7/entry/", Parts{}, false},
		{"http://elsewhere.org/7/entry/42", Parts{}, false},
	}

	for _, tt := range tests {
		got, ok := u.Split(tt.uri)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Split(%q) = %+v, %v; want %+v, %v", tt.uri, got, ok, tt.want, tt.ok)
		}
	}
}

func TestURIs_OwningEntryURI(t *testing.T) {
	u := NewURIs(base)

	for _, g := range []string{u.MetadataURI("7", "42"), u.InferredURI("7", "42"), u.EntryURI("7", "42")} {
		owner, ok := u.OwningEntryURI(g)
		require.True(t, ok, g)
		assert.Equal(t, u.EntryURI("7", "42"), owner)
	}

	_, ok := u.OwningEntryURI("urn:x")
	assert.False(t, ok)

	id, ok := u.ContextID(u.ContextURI("7"))
	require.True(t, ok)
	assert.Equal(t, "7", id)
	_, ok = u.ContextID(u.EntryURI("7", "1"))
	assert.False(t, ok)
}

func TestParseGraphType(t *testing.T) {
	assert.Equal(t, GraphTypeNone, ParseGraphType(""))
	assert.Equal(t, GraphTypeContext, ParseGraphType("Context"))
	assert.Equal(t, GraphTypeContext, ParseGraphType(reasoning.ContextType))
	assert.Equal(t, GraphType("List"), ParseGraphType("List"))
}

func seed(t *testing.T) (*storage.MemoryStore, URIs) {
	t.Helper()
	ctx := context.Background()
	u := NewURIs(base)
	s := storage.NewMemoryStore()

	require.NoError(t, Save(ctx, s, u, &Entry{
		ContextID:   SystemContexts,
		ID:          "7",
		ResourceURI: u.ContextURI("7"),
		GraphType:   GraphTypeContext,
		Metadata:    graph.Graph{graph.Literal(u.ContextURI("7"), reasoning.ReasoningFacts, "true")},
	}))
	require.NoError(t, Save(ctx, s, u, &Entry{
		ContextID:   "7",
		ID:          "1",
		ResourceURI: "http://ex.org/concept/c",
		Metadata:    graph.Graph{graph.IRI("http://ex.org/concept/c", reasoning.SKOSBroader, "http://ex.org/concept/b")},
	}))
	require.NoError(t, Save(ctx, s, u, &Entry{
		ContextID:   "7",
		ID:          "2",
		ResourceURI: "http://ex.org/concept/b",
	}))
	// Derived graphs do not make entries.
	require.NoError(t, s.ReplaceGraph(ctx, u.InferredURI("7", "99"), graph.Graph{graph.IRI("s", "p", "o")}))
	return s, u
}

func TestStoreResolver_Entry(t *testing.T) {
	s, u := seed(t)
	r := NewStoreResolver(s, u)
	ctx := context.Background()

	e, err := r.Entry(ctx, u.EntryURI("7", "1"))
	require.NoError(t, err)
	assert.Equal(t, "1", e.ID)
	assert.Equal(t, "7", e.ContextID)
	assert.Equal(t, "http://ex.org/concept/c", e.ResourceURI)
	assert.False(t, e.IsContext())
	require.Len(t, e.Metadata, 1)
	assert.Equal(t, "http://ex.org/concept/b", e.Metadata[0].Object)

	c, err := r.Entry(ctx, u.ContextEntryURI("7"))
	require.NoError(t, err)
	assert.True(t, c.IsContext())
	assert.Equal(t, u.ContextURI("7"), c.ResourceURI)
}

func TestStoreResolver_NotFound(t *testing.T) {
	s, u := seed(t)
	r := NewStoreResolver(s, u)
	ctx := context.Background()

	_, err := r.Entry(ctx, u.EntryURI("7", "404"))
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = r.Entry(ctx, u.MetadataURI("7", "1"))
	assert.ErrorIs(t, err, ErrNotFound, "only entry URIs resolve")
}

func TestStoreResolver_Listing(t *testing.T) {
	s, u := seed(t)
	r := NewStoreResolver(s, u)
	ctx := context.Background()

	entries, err := r.ContextEntries(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, []string{u.EntryURI("7", "1"), u.EntryURI("7", "2")}, entries)

	contexts, err := r.Contexts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"7"}, contexts)
}

func TestDelete(t *testing.T) {
	s, u := seed(t)
	ctx := context.Background()

	require.NoError(t, Delete(ctx, s, u, "7", "1"))
	_, err := NewStoreResolver(s, u).Entry(ctx, u.EntryURI("7", "1"))
	assert.ErrorIs(t, err, ErrNotFound)
}
