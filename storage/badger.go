package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/c360studio/semreason/graph"
	"github.com/dgraph-io/badger/v4"
)

// Key prefixes. Graph rows are keyed g/<graph>\x00<digest>, object index
// rows o/<object>\x00<graph>\x00<digest>. Both carry the JSON statement.
const (
	graphRowPrefix  = "g/"
	objectRowPrefix = "o/"
	keySep          = "\x00"
)

// BadgerConfig configures an embedded BadgerDB store.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	InMemory   bool
	SyncWrites bool

	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval     time.Duration
	GCDiscardRatio float64

	// Logger receives BadgerDB's internal log output. Nil silences it.
	Logger *slog.Logger
}

// DefaultBadgerConfig returns durable settings for a store at path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// BadgerStore persists named graphs in an embedded BadgerDB with an object
// index for reverse lookups.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger

	stopGC chan struct{}
	gcDone chan struct{}
	once   sync.Once
}

// badgerLogger adapts slog to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadger opens or creates a BadgerDB store.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &BadgerStore{db: db, logger: logger}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 || ratio >= 1 {
			ratio = 0.5
		}
		s.stopGC = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, ratio)
	}
	return s, nil
}

func (s *BadgerStore) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("badger value log GC error", "error", err)
			}
		}
	}
}

// Match implements Reader. Object patterns use the object index.
func (s *BadgerStore) Match(ctx context.Context, p Pattern) (graph.Graph, error) {
	prefix := graphRowPrefix
	switch {
	case p.Context != "":
		prefix = graphRowPrefix + p.Context + keySep
	case p.Object != "":
		prefix = objectRowPrefix + p.Object + keySep
	}

	var out graph.Graph
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var st graph.Statement
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &st)
			}); err != nil {
				return fmt.Errorf("decode statement %q: %w", it.Item().Key(), err)
			}
			if p.Matches(st) {
				out = append(out, st)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Graph implements Reader.
func (s *BadgerStore) Graph(ctx context.Context, graphIRI string) (graph.Graph, error) {
	return s.Match(ctx, Pattern{Context: graphIRI})
}

// Contexts implements Reader.
func (s *BadgerStore) Contexts(ctx context.Context) ([]string, error) {
	var out []string
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(graphRowPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		last := ""
		for it.Rewind(); it.Valid(); it.Next() {
			key := strings.TrimPrefix(string(it.Item().Key()), graphRowPrefix)
			iri, _, ok := strings.Cut(key, keySep)
			if !ok || iri == last {
				continue
			}
			out = append(out, iri)
			last = iri
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReplaceGraph implements Store.
func (s *BadgerStore) ReplaceGraph(ctx context.Context, graphIRI string, g graph.Graph) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		if err := clearGraphTxn(txn, graphIRI); err != nil {
			return err
		}

		seen := make(map[string]struct{}, len(g))
		for _, st := range g {
			st = st.In(graphIRI)
			digest := statementDigest(st)
			if _, dup := seen[digest]; dup {
				continue
			}
			seen[digest] = struct{}{}

			data, err := json.Marshal(st)
			if err != nil {
				return fmt.Errorf("encode statement: %w", err)
			}
			if err := txn.Set(graphRowKey(graphIRI, digest), data); err != nil {
				return fmt.Errorf("write statement: %w", err)
			}
			if err := txn.Set(objectRowKey(st.Object, graphIRI, digest), data); err != nil {
				return fmt.Errorf("write object index: %w", err)
			}
		}
		return nil
	})
}

// ClearGraph implements Store.
func (s *BadgerStore) ClearGraph(ctx context.Context, graphIRI string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return clearGraphTxn(txn, graphIRI)
	})
}

// Close stops value log GC and closes the database.
func (s *BadgerStore) Close() error {
	var err error
	s.once.Do(func() {
		if s.stopGC != nil {
			close(s.stopGC)
			<-s.gcDone
		}
		err = s.db.Close()
	})
	return err
}

func (s *BadgerStore) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return ErrClosed
	}
	return s.db.View(fn)
}

func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return ErrClosed
	}
	return s.db.Update(fn)
}

// clearGraphTxn deletes the graph rows of graphIRI and their object index
// rows. Keys are collected before deletion so the iterator is closed first.
func clearGraphTxn(txn *badger.Txn, graphIRI string) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(graphRowPrefix + graphIRI + keySep)
	it := txn.NewIterator(opts)

	var doomed [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		var st graph.Statement
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &st)
		}); err != nil {
			it.Close()
			return fmt.Errorf("decode statement: %w", err)
		}
		doomed = append(doomed,
			item.KeyCopy(nil),
			objectRowKey(st.Object, graphIRI, statementDigest(st)))
	}
	it.Close()

	for _, key := range doomed {
		if err := txn.Delete(key); err != nil {
			return fmt.Errorf("delete %q: %w", key, err)
		}
	}
	return nil
}

func graphRowKey(graphIRI, digest string) []byte {
	return []byte(graphRowPrefix + graphIRI + keySep + digest)
}

func objectRowKey(object, graphIRI, digest string) []byte {
	return []byte(objectRowPrefix + object + keySep + graphIRI + keySep + digest)
}

func statementDigest(st graph.Statement) string {
	kind := "i"
	if st.Literal {
		kind = "l"
	}
	sum := sha256.Sum256([]byte(st.Subject + keySep + st.Predicate + keySep + kind + keySep + st.Object))
	return hex.EncodeToString(sum[:16])
}
