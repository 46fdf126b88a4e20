package reasoning

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c360studio/semreason/auth"
	"github.com/c360studio/semreason/graph"
	"github.com/c360studio/semreason/repository"
	"github.com/c360studio/semreason/storage"
	"github.com/c360studio/semreason/vocabulary/reasoning"
	"github.com/stretchr/testify/require"
)

const (
	base    = "http://example.org/store"
	animal  = "http://example.org/concept/animal"
	mammal  = "http://example.org/concept/mammal"
	dog     = "http://example.org/concept/dog"
	reptile = "http://example.org/concept/reptile"
	subject = "http://purl.org/dc/terms/subject"
)

var errStore = errors.New("store unavailable")

// countingStore counts every call that reaches the wrapped store and can
// fail graph replacement a number of times.
type countingStore struct {
	storage.Store
	calls        atomic.Int64
	failReplaces atomic.Int64
}

func (s *countingStore) Match(ctx context.Context, p storage.Pattern) (graph.Graph, error) {
	s.calls.Add(1)
	return s.Store.Match(ctx, p)
}

func (s *countingStore) Graph(ctx context.Context, iri string) (graph.Graph, error) {
	s.calls.Add(1)
	return s.Store.Graph(ctx, iri)
}

func (s *countingStore) Contexts(ctx context.Context) ([]string, error) {
	s.calls.Add(1)
	return s.Store.Contexts(ctx)
}

func (s *countingStore) ReplaceGraph(ctx context.Context, iri string, g graph.Graph) error {
	s.calls.Add(1)
	if s.failReplaces.Load() != 0 {
		s.failReplaces.Add(-1)
		return errStore
	}
	return s.Store.ReplaceGraph(ctx, iri, g)
}

func (s *countingStore) ClearGraph(ctx context.Context, iri string) error {
	s.calls.Add(1)
	return s.Store.ClearGraph(ctx, iri)
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	uris     repository.URIs
	primary  *countingStore
	derived  *countingStore
	resolver *repository.StoreResolver
	engine   *Engine
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryInitialInterval = time.Millisecond
	cfg.RetryMaxInterval = 2 * time.Millisecond
	return cfg
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	uris := repository.NewURIs(base)
	f := &fixture{
		t:       t,
		ctx:     auth.WithCaller(context.Background(), "admin"),
		uris:    uris,
		primary: &countingStore{Store: storage.NewMemoryStore()},
		derived: &countingStore{Store: storage.NewMemoryStore()},
	}
	f.resolver = repository.NewStoreResolver(f.primary, uris)

	e, err := New(Dependencies{
		Primary:    f.primary,
		Derived:    f.derived,
		Entries:    f.resolver,
		URIs:       uris,
		Authorizer: auth.NewStaticAuthorizer("admin", nil),
	}, cfg)
	require.NoError(t, err)
	f.engine = e
	return f
}

// save writes an entry describing resource into the primary store and
// returns it as the resolver sees it.
func (f *fixture) save(contextID, id, resource string, md ...graph.Statement) *repository.Entry {
	f.t.Helper()
	entry := &repository.Entry{
		ID:          id,
		ContextID:   contextID,
		ResourceURI: resource,
		Metadata:    graph.Graph(md),
	}
	require.NoError(f.t, repository.Save(f.ctx, f.primary, f.uris, entry))
	resolved, err := f.resolver.Entry(f.ctx, f.uris.EntryURI(contextID, id))
	require.NoError(f.t, err)
	return resolved
}

// concept saves an entry in contextID whose resource is narrower than parent.
func (f *fixture) concept(contextID, id, resource, parent string) *repository.Entry {
	return f.save(contextID, id, resource, graph.IRI(resource, reasoning.SKOSBroader, parent))
}

// contextEntry saves the _contexts entry of contextID, with or without the
// reasoning marker.
func (f *fixture) contextEntry(contextID string, facts bool) *repository.Entry {
	f.t.Helper()
	var md []graph.Statement
	if facts {
		md = append(md, graph.Literal(f.uris.ContextURI(contextID), reasoning.ReasoningFacts, "true"))
	}
	entry := f.save(repository.SystemContexts, contextID, f.uris.ContextURI(contextID), md...)
	require.True(f.t, entry.IsContext())
	return entry
}

func (f *fixture) derivedGraph(entry *repository.Entry) graph.Graph {
	f.t.Helper()
	g, err := f.derived.Graph(f.ctx, f.uris.InferredURI(entry.ContextID, entry.ID))
	require.NoError(f.t, err)
	return g
}
