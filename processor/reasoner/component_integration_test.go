//go:build integration

package reasoner

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/c360studio/semreason/graph"
	"github.com/c360studio/semreason/repository"
	"github.com/c360studio/semreason/storage"
	"github.com/c360studio/semreason/vocabulary/reasoning"
	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/stretchr/testify/require"
)

func TestComponent_ConsumesEntryEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tc := natsclient.NewTestClient(t, natsclient.WithJetStream())
	js, err := tc.Client.JetStream()
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.BaseURL = testBase
	cfg.PrimaryBucket = "TEST_REPOSITORY"
	c := newComponent(cfg, tc.Client, slog.Default())
	require.NoError(t, c.Start(ctx))
	defer func() { _ = c.Stop(5 * time.Second) }()

	// The repository writes into the same bucket the component reads.
	primary, err := storage.NewKVStore(ctx, js, cfg.PrimaryBucket)
	require.NoError(t, err)
	save := func(contextID, id, resource string, md ...graph.Statement) {
		require.NoError(t, repository.Save(ctx, primary, c.uris, &repository.Entry{
			ID: id, ContextID: contextID, ResourceURI: resource, Metadata: graph.Graph(md),
		}))
	}
	save("1", "mammal", mammal, graph.IRI(mammal, reasoning.SKOSBroader, animal))
	save("2", "photo", photo, graph.IRI(photo, dcSubj, mammal))
	save(repository.SystemContexts, "1", c.uris.ContextURI("1"),
		graph.Literal(c.uris.ContextURI("1"), reasoning.ReasoningFacts, "true"))

	event := &EntryEvent{Event: EventUpdated, EntryURI: c.uris.ContextEntryURI("1")}
	data, err := json.Marshal(message.NewBaseMessage(EntryEventType, event, "test"))
	require.NoError(t, err)
	require.NoError(t, tc.Client.PublishToStream(ctx, "repository.entry.updated", data))

	require.Eventually(t, func() bool {
		g, err := c.derived.Graph(ctx, c.uris.InferredURI("2", "photo"))
		return err == nil && len(g) == 1 && g[0].Object == animal
	}, 10*time.Second, 50*time.Millisecond)
}
