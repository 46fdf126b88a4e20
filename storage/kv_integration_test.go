//go:build integration

package storage

import (
	"context"
	"testing"

	"github.com/c360studio/semreason/graph"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/stretchr/testify/require"
)

func TestKVStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		tc := natsclient.NewTestClient(t, natsclient.WithJetStream())
		js, err := tc.Client.JetStream()
		require.NoError(t, err)

		s, err := NewKVStore(context.Background(), js, "TEST_GRAPHS")
		require.NoError(t, err)
		return s
	})
}

func TestKVStore_ReopenBucket(t *testing.T) {
	ctx := context.Background()
	tc := natsclient.NewTestClient(t, natsclient.WithJetStream())
	js, err := tc.Client.JetStream()
	require.NoError(t, err)

	s, err := NewKVStore(ctx, js, "TEST_REOPEN")
	require.NoError(t, err)
	require.NoError(t, s.ReplaceGraph(ctx, "urn:g", graph.Graph{graph.IRI("urn:s", "urn:p", "urn:o")}))

	again, err := NewKVStore(ctx, js, "TEST_REOPEN")
	require.NoError(t, err)
	g, err := again.Graph(ctx, "urn:g")
	require.NoError(t, err)
	require.Len(t, g, 1)
}
