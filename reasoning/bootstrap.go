package reasoning

import (
	"context"
	"fmt"

	"github.com/c360studio/semreason/auth"
	"github.com/c360studio/semreason/forest"
	"github.com/c360studio/semreason/repository"
	"github.com/c360studio/semreason/storage"
	"github.com/c360studio/semreason/vocabulary/reasoning"
)

// Bootstrap detects the fact contexts in the primary store, builds the
// forest index and, when configured, recalculates every derived graph.
func (e *Engine) Bootstrap(ctx context.Context) error {
	ctx = auth.System(ctx)

	contexts, err := e.detectFactContexts(ctx)
	if err != nil {
		return err
	}

	e.factMu.Lock()
	e.factContexts = make(map[string]struct{}, len(contexts))
	for _, id := range contexts {
		e.factContexts[id] = struct{}{}
	}
	e.factMu.Unlock()

	if err := e.rebuild(ctx); err != nil {
		return err
	}
	e.logger.Info("Reasoning engine bootstrapped", "fact_contexts", len(contexts))

	if !e.cfg.RecalculateOnStartup {
		return nil
	}
	if _, err := e.RecalculateInferredMetadata(ctx); err != nil {
		return fmt.Errorf("recalculate on startup: %w", err)
	}
	return nil
}

// detectFactContexts returns the ids of contexts whose resource carries the
// reasoning marker. A marker whose subject is not a context resource is
// attributed to the _contexts entry graph it was stored in.
func (e *Engine) detectFactContexts(ctx context.Context) ([]string, error) {
	markers, err := e.primary.Match(ctx, storage.Pattern{Predicate: reasoning.ReasoningFacts})
	if err != nil {
		return nil, fmt.Errorf("scan reasoning markers: %w", err)
	}

	found := make(forest.NodeSet)
	for _, st := range markers {
		if id, ok := e.uris.ContextID(st.Subject); ok {
			found.Add(id)
			continue
		}
		if parts, ok := e.uris.Split(st.Context); ok && parts.ContextID == repository.SystemContexts {
			found.Add(parts.ID)
		}
	}
	return found.Sorted(), nil
}

// rebuild scans the hierarchical statements of the fact contexts into a new
// index and swaps it in. Handlers are held off for the duration.
func (e *Engine) rebuild(ctx context.Context) error {
	e.structMu.Lock()
	defer e.structMu.Unlock()

	facts := make(map[string]struct{})
	for _, id := range e.FactContexts() {
		facts[id] = struct{}{}
	}

	idx := forest.NewIndex()
	for id := range facts {
		idx.AddPartition(id)
	}
	for _, pred := range reasoning.HierarchicalPredicates() {
		hits, err := e.primary.Match(ctx, storage.Pattern{Predicate: pred})
		if err != nil {
			return fmt.Errorf("scan %s: %w", pred, err)
		}
		for _, st := range hits {
			if st.Literal {
				continue
			}
			parts, ok := e.uris.Split(st.Context)
			if !ok || parts.Kind != repository.KindMetadata {
				continue
			}
			if _, fact := facts[parts.ContextID]; !fact {
				continue
			}
			idx.InitAddTo(st.Subject, st.Object, parts.ContextID)
		}
	}
	idx.InitDone()

	e.idx.Store(idx)
	partitions.Set(float64(len(idx.Partitions())))
	e.logger.Info("Forest index rebuilt", "partitions", len(facts))
	return nil
}
