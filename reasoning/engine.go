// Package reasoning keeps the forest index in step with repository entry
// mutations and recomputes derived metadata for entries whose ancestor sets
// changed.
//
// Notification handlers call EntryUpdated and EntryRemoved concurrently.
// They edit forest partitions under per-partition locks and enqueue change
// records. A single worker started with Run drains the queue in batches,
// finds the affected entries in the stores and recomputes their derived
// metadata.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semreason/auth"
	"github.com/c360studio/semreason/forest"
	"github.com/c360studio/semreason/graph"
	"github.com/c360studio/semreason/inferred"
	"github.com/c360studio/semreason/repository"
	"github.com/c360studio/semreason/storage"
	"github.com/c360studio/semreason/vocabulary/reasoning"
)

// Config tunes the engine.
type Config struct {
	// BatchSize caps the change records drained per worker cycle.
	BatchSize int

	// StoreTimeout bounds the store work of one worker batch.
	StoreTimeout time.Duration

	// RetryMaxAttempts caps retries of failed recomputations. Zero disables
	// retries.
	RetryMaxAttempts     int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	// Parallelism bounds concurrent recomputations in full recalculations.
	Parallelism int

	// RecalculateOnStartup runs a full recalculation in Bootstrap.
	RecalculateOnStartup bool
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:            100,
		StoreTimeout:         30 * time.Second,
		RetryMaxAttempts:     5,
		RetryInitialInterval: time.Second,
		RetryMaxInterval:     time.Minute,
		Parallelism:          4,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("store timeout must be positive, got %s", c.StoreTimeout)
	}
	if c.RetryMaxAttempts < 0 {
		return fmt.Errorf("retry max attempts must not be negative, got %d", c.RetryMaxAttempts)
	}
	if c.RetryMaxAttempts > 0 && c.RetryInitialInterval <= 0 {
		return errors.New("retry initial interval must be positive when retries are enabled")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive, got %d", c.Parallelism)
	}
	return nil
}

// Dependencies are the collaborators of an Engine.
type Dependencies struct {
	// Primary is the repository's triple store.
	Primary storage.Reader
	// Derived holds the derived metadata graphs.
	Derived    storage.Store
	Entries    repository.Resolver
	URIs       repository.URIs
	Authorizer auth.Authorizer
	// Notifier is optional.
	Notifier inferred.Notifier
	Logger   *slog.Logger
}

// Engine is the reasoning engine.
type Engine struct {
	primary storage.Reader
	derived storage.Store
	entries repository.Resolver
	uris    repository.URIs
	authz   auth.Authorizer
	md      *inferred.Manager
	cfg     Config
	logger  *slog.Logger

	idx atomic.Pointer[forest.Index]

	// structMu is held shared by notification handlers and exclusively by
	// a wholesale index rebuild.
	structMu sync.RWMutex
	// contextMu serializes fact-context enabling and retirement.
	contextMu sync.Mutex

	factMu       sync.RWMutex
	factContexts map[string]struct{}
	// loading holds forest edits for contexts whose partition is being
	// bulk-loaded. Entries are added and removed under factMu held
	// exclusively.
	loading map[string]*heldEdits

	queue   *forest.Queue
	retries *retrySet
}

// New creates an engine with an empty forest index.
func New(deps Dependencies, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Primary == nil || deps.Derived == nil || deps.Entries == nil {
		return nil, errors.New("primary store, derived store and entry resolver are required")
	}
	if deps.Authorizer == nil {
		return nil, errors.New("authorizer is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		primary:      deps.Primary,
		derived:      deps.Derived,
		entries:      deps.Entries,
		uris:         deps.URIs,
		authz:        deps.Authorizer,
		cfg:          cfg,
		logger:       logger,
		factContexts: make(map[string]struct{}),
		loading:      make(map[string]*heldEdits),
		queue:        forest.NewQueue(),
		retries:      newRetrySet(cfg),
	}
	e.idx.Store(forest.NewIndex())

	md, err := inferred.NewManager(inferred.Config{
		Store:      deps.Derived,
		URIs:       deps.URIs,
		Authorizer: deps.Authorizer,
		Ancestry:   func() inferred.Ancestry { return e.idx.Load() },
		Notifier:   deps.Notifier,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	e.md = md
	return e, nil
}

// Inferred returns the derived metadata handle of entry.
func (e *Engine) Inferred(entry *repository.Entry) *inferred.Metadata {
	return e.md.For(entry)
}

// EntryUpdated reacts to a created or modified entry.
func (e *Engine) EntryUpdated(ctx context.Context, entry *repository.Entry) error {
	var errs []error

	_, err := e.md.For(entry).Update(ctx)
	recordRecompute("entry_updated", err)
	if err != nil {
		errs = append(errs, err)
	}

	e.structMu.RLock()
	defer e.structMu.RUnlock()

	parent := hierarchicalParent(entry.Metadata)
	e.editForest(entry.ContextID, func(x *forest.Index) {
		x.Reparent(entry.ResourceURI, parent, entry.ContextID, e.enqueue)
	})

	if entry.IsContext() {
		if err := e.checkContext(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EntryRemoved reacts to a deleted entry.
func (e *Engine) EntryRemoved(ctx context.Context, entry *repository.Entry) error {
	var errs []error
	if err := e.md.For(entry).Remove(auth.System(ctx)); err != nil {
		errs = append(errs, err)
	}

	e.structMu.RLock()
	defer e.structMu.RUnlock()

	e.editForest(entry.ContextID, func(x *forest.Index) {
		if c, ok := x.Remove(entry.ResourceURI, entry.ContextID); ok {
			e.enqueue(c)
		}
	})

	if entry.IsContext() {
		e.contextMu.Lock()
		// The RemoveAll record lets the worker clear ancestors that entries
		// in other contexts derived from the retired partition.
		if change, err := e.idx.Load().RemoveAllIn(entry.ID); err == nil {
			e.enqueue(change)
			partitions.Set(float64(len(e.idx.Load().Partitions())))
			e.logger.Info("Retired forest partition of removed context", "context", entry.ID)
		}
		e.setFactContext(entry.ID, false)
		e.contextMu.Unlock()
	}
	return errors.Join(errs...)
}

// checkContext enables or retires the forest partition of a context entry
// depending on the marker statement on its resource.
func (e *Engine) checkContext(ctx context.Context, entry *repository.Entry) error {
	e.contextMu.Lock()
	defer e.contextMu.Unlock()

	contextID := entry.ID
	marker, err := e.primary.Match(ctx, storage.Pattern{
		Subject:   entry.ResourceURI,
		Predicate: reasoning.ReasoningFacts,
	})
	if err != nil {
		return fmt.Errorf("check reasoning marker of %s: %w", contextID, err)
	}

	enabled := e.IsFactContext(contextID)
	switch {
	case len(marker) > 0 && !enabled:
		e.beginLoad(contextID)
		p, err := e.loadPartition(ctx, contextID)
		if err != nil {
			e.abortLoad(contextID)
			return err
		}
		change := p.InitDone()
		e.idx.Load().Attach(p)
		partitions.Set(float64(len(e.idx.Load().Partitions())))
		e.enqueue(change)
		replayed := e.finishLoad(contextID)
		e.logger.Info("Context enabled for reasoning",
			"context", contextID,
			"nodes", len(change.Nodes),
			"replayed_edits", replayed)

	case len(marker) == 0 && enabled:
		change, err := e.idx.Load().RemoveAllIn(contextID)
		partitions.Set(float64(len(e.idx.Load().Partitions())))
		e.setFactContext(contextID, false)
		if err == nil {
			e.enqueue(change)
		}
		e.logger.Info("Context disabled for reasoning", "context", contextID)
	}
	return nil
}

// loadPartition bulk-loads a partition from the metadata of every entry in
// the context.
func (e *Engine) loadPartition(ctx context.Context, contextID string) (*forest.Partition, error) {
	uris, err := e.entries.ContextEntries(ctx, contextID)
	if err != nil {
		return nil, fmt.Errorf("list entries of %s: %w", contextID, err)
	}

	p := forest.NewPartition(contextID)
	for _, uri := range uris {
		entry, err := e.entries.Entry(ctx, uri)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", uri, err)
		}
		for _, st := range entry.Metadata {
			if !st.Literal && reasoning.IsHierarchical(st.Predicate) {
				p.InitAddTo(st.Subject, st.Object)
			}
		}
	}
	return p, nil
}

// IsFactContext reports whether the context is mirrored into the forest.
func (e *Engine) IsFactContext(contextID string) bool {
	e.factMu.RLock()
	defer e.factMu.RUnlock()
	_, ok := e.factContexts[contextID]
	return ok
}

// FactContexts returns the fact-enabled context ids, sorted.
func (e *Engine) FactContexts() []string {
	e.factMu.RLock()
	defer e.factMu.RUnlock()
	out := make([]string, 0, len(e.factContexts))
	for id := range e.factContexts {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (e *Engine) setFactContext(contextID string, enabled bool) {
	e.factMu.Lock()
	defer e.factMu.Unlock()
	if enabled {
		e.factContexts[contextID] = struct{}{}
	} else {
		delete(e.factContexts, contextID)
	}
}

// heldEdits collects the forest edits that arrive while a partition loads.
type heldEdits struct {
	mu    sync.Mutex
	edits []func(*forest.Index)
}

// editForest applies edit when contextID is fact-enabled. While the
// context's partition is loading, the edit is held and replayed on the
// attached partition by finishLoad.
func (e *Engine) editForest(contextID string, edit func(*forest.Index)) {
	e.factMu.RLock()
	defer e.factMu.RUnlock()

	if _, ok := e.factContexts[contextID]; ok {
		edit(e.idx.Load())
		return
	}
	if held, ok := e.loading[contextID]; ok {
		held.mu.Lock()
		held.edits = append(held.edits, edit)
		held.mu.Unlock()
	}
}

func (e *Engine) beginLoad(contextID string) {
	e.factMu.Lock()
	defer e.factMu.Unlock()
	e.loading[contextID] = &heldEdits{}
}

func (e *Engine) abortLoad(contextID string) {
	e.factMu.Lock()
	defer e.factMu.Unlock()
	delete(e.loading, contextID)
}

// finishLoad marks contextID fact-enabled and replays the held edits in
// arrival order. Handlers block on factMu until the replay is done, so no
// later edit can be overtaken by an older one.
func (e *Engine) finishLoad(contextID string) int {
	e.factMu.Lock()
	defer e.factMu.Unlock()

	held := e.loading[contextID]
	delete(e.loading, contextID)
	e.factContexts[contextID] = struct{}{}
	if held == nil {
		return 0
	}
	x := e.idx.Load()
	for _, edit := range held.edits {
		edit(x)
	}
	return len(held.edits)
}

func (e *Engine) enqueue(c forest.Change) {
	e.queue.Push(c)
	changesEnqueued.WithLabelValues(c.Kind.String()).Inc()
	queueDepth.Set(float64(e.queue.Len()))
}

// hierarchicalParent returns the object of the last hierarchical statement
// in md. Several parents collapse to the last one.
func hierarchicalParent(md graph.Graph) string {
	parent := ""
	for _, st := range md {
		if !st.Literal && reasoning.IsHierarchical(st.Predicate) {
			parent = st.Object
		}
	}
	return parent
}

func recordRecompute(trigger string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	recomputations.WithLabelValues(trigger, result).Inc()
}
