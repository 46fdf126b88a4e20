package reasoner

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/c360studio/semreason/auth"
	"github.com/c360studio/semreason/graph"
	"github.com/c360studio/semreason/repository"
	"github.com/c360studio/semreason/storage"
	"github.com/c360studio/semreason/vocabulary/reasoning"
	"github.com/c360studio/semstreams/component"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testBase = "http://example.org/store"
	animal   = "http://example.org/concept/animal"
	mammal   = "http://example.org/concept/mammal"
	dog      = "http://example.org/concept/dog"
	photo    = "http://example.org/photo/1"
	dcSubj   = "http://purl.org/dc/terms/subject"
)

// newTestComponent wires a component to in-memory stores without NATS.
func newTestComponent(t *testing.T) *Component {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseURL = testBase
	c := newComponent(cfg, nil, slog.Default())
	require.NoError(t, c.wire(storage.NewMemoryStore(), storage.NewMemoryStore(), nil))
	return c
}

// seed stores animal <- mammal <- dog in fact context 1 and a photo tagged
// dog in context 2.
func seed(t *testing.T, c *Component) {
	t.Helper()
	ctx := context.Background()
	save := func(contextID, id, resource string, md ...graph.Statement) {
		require.NoError(t, repository.Save(ctx, c.primary, c.uris, &repository.Entry{
			ID: id, ContextID: contextID, ResourceURI: resource, Metadata: graph.Graph(md),
		}))
	}
	save("1", "mammal", mammal, graph.IRI(mammal, reasoning.SKOSBroader, animal))
	save("1", "dog", dog, graph.IRI(dog, reasoning.SKOSBroader, mammal))
	save("2", "photo", photo, graph.IRI(photo, dcSubj, dog))
	save(repository.SystemContexts, "1", c.uris.ContextURI("1"),
		graph.Literal(c.uris.ContextURI("1"), reasoning.ReasoningFacts, "true"))
	save(repository.SystemContexts, "2", c.uris.ContextURI("2"))
}

// enable notifies the component that context 1 changed and runs one worker
// batch.
func enable(t *testing.T, c *Component) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, c.HandleEvent(ctx, &EntryEvent{
		Event:    EventUpdated,
		EntryURI: c.uris.ContextEntryURI("1"),
	}))
	c.Engine().ProcessBatch(ctx)
}

func TestNewComponent_AppliesDefaults(t *testing.T) {
	disc, err := NewComponent(json.RawMessage(`{"base_url": "http://example.org/store"}`), component.Dependencies{})
	require.NoError(t, err)

	c := disc.(*Component)
	assert.Equal(t, "repository.entry.>", c.inputSubject)
	assert.Equal(t, "REPOSITORY", c.inputStream)
	assert.Equal(t, graph.InferredUpdatedSubject, c.outputSubject)
	assert.Equal(t, "http://example.org/store/", c.uris.Base())
	assert.Equal(t, storage.BucketRepository, c.config.PrimaryBucket)
	assert.Nil(t, c.Engine())

	assert.Equal(t, "reasoner", c.Meta().Name)
	require.Len(t, c.InputPorts(), 1)
	require.Len(t, c.OutputPorts(), 1)
	assert.Equal(t, "entry_events", c.InputPorts()[0].Name)
	assert.False(t, c.Health().Healthy)
}

func TestNewComponent_InvalidConfig(t *testing.T) {
	_, err := NewComponent(json.RawMessage(`{"derived_store": "rocksdb"}`), component.Dependencies{})
	assert.ErrorContains(t, err, "derived_store")

	_, err = NewComponent(json.RawMessage(`{not json`), component.Dependencies{})
	assert.Error(t, err)
}

func TestComponent_StartRequiresNATS(t *testing.T) {
	c := newComponent(DefaultConfig(), nil, nil)
	err := c.Start(context.Background())
	assert.ErrorContains(t, err, "NATS client required")
	assert.NoError(t, c.Stop(0))
}

type fakeRegistry struct {
	got component.RegistrationConfig
}

func (r *fakeRegistry) RegisterWithConfig(cfg component.RegistrationConfig) error {
	r.got = cfg
	return nil
}

func TestRegister(t *testing.T) {
	assert.Error(t, Register(nil))

	reg := &fakeRegistry{}
	require.NoError(t, Register(reg))
	assert.Equal(t, "reasoner", reg.got.Name)
	assert.Equal(t, "processor", reg.got.Type)
	assert.NotNil(t, reg.got.Factory)
}

func TestHandleEvent_UpdatedContextEnablesReasoning(t *testing.T) {
	c := newTestComponent(t)
	seed(t, c)

	enable(t, c)

	assert.True(t, c.Engine().IsFactContext("1"))
	g, err := c.derived.Graph(context.Background(), c.uris.InferredURI("2", "photo"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{mammal, animal}, g.Objects(dcSubj))
}

func TestHandleEvent_UpdatedMissingEntryIsIgnored(t *testing.T) {
	c := newTestComponent(t)
	err := c.HandleEvent(context.Background(), &EntryEvent{
		Event:    EventUpdated,
		EntryURI: c.uris.EntryURI("1", "ghost"),
	})
	assert.NoError(t, err)
}

func TestHandleEvent_RemovedUsesEventFields(t *testing.T) {
	c := newTestComponent(t)
	seed(t, c)
	enable(t, c)
	ctx := context.Background()

	// The store no longer has the entry by the time the event arrives.
	require.NoError(t, repository.Delete(ctx, c.primary, c.uris, "1", "mammal"))
	require.NoError(t, c.HandleEvent(ctx, &EntryEvent{
		Event:       EventRemoved,
		EntryURI:    c.uris.EntryURI("1", "mammal"),
		ResourceURI: mammal,
	}))

	_, ok := c.Engine().Parent(dog)
	assert.False(t, ok, "dog promoted to root")

	c.Engine().ProcessBatch(ctx)
	g, err := c.derived.Graph(ctx, c.uris.InferredURI("2", "photo"))
	require.NoError(t, err)
	assert.Empty(t, g, "dog has no ancestors left")
}

func TestHandleEvent_Errors(t *testing.T) {
	c := newTestComponent(t)

	err := c.HandleEvent(context.Background(), &EntryEvent{Event: "renamed", EntryURI: "x"})
	assert.ErrorContains(t, err, "invalid event")

	err = c.HandleEvent(context.Background(), &EntryEvent{Event: EventRemoved, EntryURI: "urn:not-an-entry"})
	assert.ErrorContains(t, err, "not an entry URI")

	unwired := newComponent(DefaultConfig(), nil, nil)
	err = unwired.HandleEvent(context.Background(), &EntryEvent{Event: EventUpdated, EntryURI: "x"})
	assert.True(t, errors.Is(err, errNotStarted))
}

func TestEntryFromEvent(t *testing.T) {
	c := newTestComponent(t)

	tests := []struct {
		name     string
		event    EntryEvent
		resource string
		context  bool
	}{
		{
			name:     "explicit resource",
			event:    EntryEvent{EntryURI: c.uris.EntryURI("1", "dog"), ResourceURI: dog},
			resource: dog,
		},
		{
			name:     "default resource",
			event:    EntryEvent{EntryURI: c.uris.EntryURI("1", "dog")},
			resource: c.uris.ResourceURI("1", "dog"),
		},
		{
			name:     "context entry",
			event:    EntryEvent{EntryURI: c.uris.ContextEntryURI("7")},
			resource: c.uris.ContextURI("7"),
			context:  true,
		},
		{
			name:     "graph type from event",
			event:    EntryEvent{EntryURI: c.uris.EntryURI("1", "x"), GraphType: "Context"},
			resource: c.uris.ResourceURI("1", "x"),
			context:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := c.entryFromEvent(&tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.resource, entry.ResourceURI)
			assert.Equal(t, tt.context, entry.IsContext())
		})
	}
}

func TestEntryEvent_Validate(t *testing.T) {
	tests := []struct {
		event   EntryEvent
		wantErr bool
	}{
		{EntryEvent{Event: EventUpdated, EntryURI: "u"}, false},
		{EntryEvent{Event: EventRemoved, EntryURI: "u"}, false},
		{EntryEvent{EntryURI: "u"}, true},
		{EntryEvent{Event: "moved", EntryURI: "u"}, true},
		{EntryEvent{Event: EventUpdated}, true},
	}
	for _, tt := range tests {
		if err := tt.event.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("Validate(%+v) error = %v, wantErr %v", tt.event, err, tt.wantErr)
		}
	}
	assert.Equal(t, EntryEventType, (&EntryEvent{}).Schema())
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	engineCfg := cfg.EngineConfig()
	assert.Equal(t, 100, engineCfg.BatchSize)
	assert.Equal(t, 5, engineCfg.RetryMaxAttempts)
	assert.Equal(t, "memory", cfg.StorageOptions().Type)

	cfg.StoreTimeout = "soon"
	assert.ErrorContains(t, cfg.Validate(), "store_timeout")
	assert.Equal(t, 30*time.Second, cfg.GetStoreTimeout())

	cfg = DefaultConfig()
	cfg.DerivedStore = storage.TypeBadger
	assert.ErrorContains(t, cfg.Validate(), "derived_path")
	cfg.DerivedPath = t.TempDir()
	assert.NoError(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.BaseURL = ""
	assert.Error(t, cfg.Validate())
}

func TestAuthorizerHotSwap(t *testing.T) {
	c := newTestComponent(t)
	carol := auth.WithCaller(context.Background(), "carol")
	assert.False(t, c.Authorizer().IsCallerAdmin(carol))

	c.Authorizer().SetAdmins("admin", []string{"carol"})
	assert.True(t, c.Authorizer().IsCallerAdmin(carol))
}
