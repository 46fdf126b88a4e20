package graph

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	subject string
	data    []byte
	err     error
}

func (r *recordingPublisher) PublishToStream(_ context.Context, subject string, data []byte) error {
	r.subject = subject
	r.data = data
	return r.err
}

func TestGraph_AddDeduplicatesTriples(t *testing.T) {
	var g Graph
	g.Add(IRI("s", "p", "o").In("g1"))
	g.Add(IRI("s", "p", "o").In("g2"))
	g.Add(Literal("s", "p", "o"))

	require.Len(t, g, 2, "literal and IRI objects are distinct")
	assert.True(t, g.Contains(IRI("s", "p", "o")))
	assert.False(t, g.Contains(IRI("s", "p", "x")))
}

func TestGraph_ObjectsAndSorting(t *testing.T) {
	g := Graph{
		IRI("s2", "p", "b"),
		IRI("s1", "q", "c"),
		IRI("s1", "p", "a"),
	}

	assert.Equal(t, []string{"b", "a"}, g.Objects("p"))

	sorted := g.Sorted()
	assert.Equal(t, "a", sorted[0].Object)
	assert.Equal(t, "c", sorted[1].Object)
	assert.Equal(t, "b", sorted[2].Object)
	assert.Equal(t, "b", g[0].Object, "Sorted must not reorder the receiver")
}

func TestGraph_InContext(t *testing.T) {
	g := Graph{IRI("s", "p", "o")}.InContext("urn:g")
	assert.Equal(t, "urn:g", g[0].Context)
}

func TestGraph_Triples(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	triples := Graph{IRI("s", "p", "o")}.Triples("test", at)

	require.Len(t, triples, 1)
	assert.Equal(t, "s", triples[0].Subject)
	assert.Equal(t, "o", triples[0].Object)
	assert.Equal(t, "test", triples[0].Source)
	assert.Equal(t, at, triples[0].Timestamp)
	assert.Equal(t, 1.0, triples[0].Confidence)
}

func TestPublisher_InferredUpdated(t *testing.T) {
	rec := &recordingPublisher{}
	p := NewPublisher(rec, "")

	err := p.InferredUpdated(context.Background(), "urn:entry", "urn:inferred", Graph{IRI("s", "p", "o")})
	require.NoError(t, err)
	assert.Equal(t, InferredUpdatedSubject, rec.subject)

	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.data, &envelope))
	assert.Contains(t, string(rec.data), "urn:inferred")
}

func TestPublisher_Errors(t *testing.T) {
	rec := &recordingPublisher{err: errors.New("nats down")}
	p := NewPublisher(rec, "custom.subject")

	err := p.InferredUpdated(context.Background(), "urn:entry", "urn:inferred", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "custom.subject")
}

func TestPublisher_NilClientIsNoOp(t *testing.T) {
	p := NewPublisher(nil, "")
	assert.NoError(t, p.InferredUpdated(context.Background(), "e", "g", nil))

	var nilPublisher *Publisher
	assert.NoError(t, nilPublisher.InferredUpdated(context.Background(), "e", "g", nil))
}

func TestInferredPayload_Validate(t *testing.T) {
	p := &InferredPayload{}
	assert.Error(t, p.Validate())
	p.EntryURI = "urn:e"
	assert.Error(t, p.Validate())
	p.GraphURI = "urn:g"
	assert.NoError(t, p.Validate())
	assert.Equal(t, InferredType, p.Schema())
}
