package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/c360studio/semreason/graph"
	"github.com/nats-io/nats.go/jetstream"
)

// Default bucket names.
const (
	BucketRepository = "SEMREASON_REPOSITORY"
	BucketInferred   = "SEMREASON_INFERRED"
)

// kvGraph is the value stored per named graph.
type kvGraph struct {
	IRI        string            `json:"iri"`
	Statements []graph.Statement `json:"statements"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// KVStore keeps one NATS KV entry per named graph. Writing a whole graph is
// a single Put, so ReplaceGraph is atomic.
type KVStore struct {
	kv jetstream.KeyValue
}

// NewKVStore opens the bucket, creating it if it does not exist.
func NewKVStore(ctx context.Context, js jetstream.JetStream, bucket string) (*KVStore, error) {
	kv, err := getOrCreateBucket(ctx, js, bucket)
	if err != nil {
		return nil, fmt.Errorf("create %s bucket: %w", bucket, err)
	}
	return &KVStore{kv: kv}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	return js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Named graphs for %s", name),
		History:     1,
	})
}

// Match implements Reader. Without a context the whole bucket is scanned.
func (s *KVStore) Match(ctx context.Context, p Pattern) (graph.Graph, error) {
	if p.Context != "" {
		g, err := s.load(ctx, p.Context)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return filter(g, p), nil
	}

	iris, err := s.Contexts(ctx)
	if err != nil {
		return nil, err
	}

	var out graph.Graph
	for _, iri := range iris {
		g, err := s.load(ctx, iri)
		if errors.Is(err, ErrNotFound) {
			continue // deleted between listing and loading
		}
		if err != nil {
			return nil, err
		}
		out = append(out, filter(g, p)...)
	}
	return out, nil
}

// Graph implements Reader.
func (s *KVStore) Graph(ctx context.Context, graphIRI string) (graph.Graph, error) {
	return s.Match(ctx, Pattern{Context: graphIRI})
}

// Contexts implements Reader.
func (s *KVStore) Contexts(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list graph keys: %w", err)
	}

	iris := make([]string, 0, len(keys))
	for _, key := range keys {
		iri, err := decodeKey(key)
		if err != nil {
			continue // not written by this store
		}
		iris = append(iris, iri)
	}
	sort.Strings(iris)
	return iris, nil
}

// ReplaceGraph implements Store.
func (s *KVStore) ReplaceGraph(ctx context.Context, graphIRI string, g graph.Graph) error {
	if len(g) == 0 {
		return s.ClearGraph(ctx, graphIRI)
	}

	var stored graph.Graph
	for _, st := range g {
		t := st.Triple()
		stored.Add(t)
	}
	data, err := json.Marshal(kvGraph{IRI: graphIRI, Statements: stored, UpdatedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}
	if _, err := s.kv.Put(ctx, encodeKey(graphIRI), data); err != nil {
		return fmt.Errorf("put graph %s: %w", graphIRI, err)
	}
	return nil
}

// ClearGraph implements Store.
func (s *KVStore) ClearGraph(ctx context.Context, graphIRI string) error {
	err := s.kv.Delete(ctx, encodeKey(graphIRI))
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete graph %s: %w", graphIRI, err)
	}
	return nil
}

// Close implements Store. The bucket belongs to the NATS connection, which
// is closed by its owner.
func (s *KVStore) Close() error {
	return nil
}

func (s *KVStore) load(ctx context.Context, graphIRI string) (graph.Graph, error) {
	entry, err := s.kv.Get(ctx, encodeKey(graphIRI))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get graph %s: %w", graphIRI, err)
	}

	var v kvGraph
	if err := json.Unmarshal(entry.Value(), &v); err != nil {
		return nil, fmt.Errorf("unmarshal graph %s: %w", graphIRI, err)
	}
	return graph.Graph(v.Statements).InContext(graphIRI), nil
}

func filter(g graph.Graph, p Pattern) graph.Graph {
	var out graph.Graph
	for _, st := range g {
		if p.Matches(st) {
			out = append(out, st)
		}
	}
	return out
}

// encodeKey maps a graph IRI onto the KV key alphabet.
func encodeKey(iri string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(iri))
}

func decodeKey(key string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(key)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted)
}
