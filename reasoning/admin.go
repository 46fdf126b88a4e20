package reasoning

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/c360studio/semreason/auth"
	"github.com/c360studio/semreason/forest"
	"github.com/c360studio/semreason/repository"
	"golang.org/x/sync/errgroup"
)

// Status is a point-in-time view of the engine.
type Status struct {
	QueueDepth     int      `json:"queue_depth"`
	PendingRetries int      `json:"pending_retries"`
	Partitions     []string `json:"partitions"`
	FactContexts   []string `json:"fact_contexts"`
}

// Status reports queue, retry and forest state.
func (e *Engine) Status() Status {
	return Status{
		QueueDepth:     e.queue.Len(),
		PendingRetries: e.retries.len(),
		Partitions:     e.idx.Load().Partitions(),
		FactContexts:   e.FactContexts(),
	}
}

// Ancestors returns the ancestors of node in the forest.
func (e *Engine) Ancestors(node string) (forest.NodeSet, bool) {
	return e.idx.Load().Ancestors(node)
}

// Parent returns the parent of node in the forest.
func (e *Engine) Parent(node string) (string, bool) {
	return e.idx.Load().Parent(node)
}

// Locate returns the partition that answers lookups for node.
func (e *Engine) Locate(node string) (string, bool) {
	return e.idx.Load().Locate(node)
}

// RecalcResult summarizes a recalculation.
type RecalcResult struct {
	Entries int `json:"entries"`
	Updated int `json:"updated"`
	Cleared int `json:"cleared"`
}

// RebuildForestIndex rescans the hierarchical statements of every fact
// context and swaps in a freshly built index. It requires an admin caller.
func (e *Engine) RebuildForestIndex(ctx context.Context) error {
	if !e.authz.IsCallerAdmin(ctx) {
		return auth.ErrForbidden
	}
	return e.rebuild(ctx)
}

// RecalculateInferredMetadata recomputes the derived metadata of every
// entry in every context, then clears derived graphs whose entry was not
// visited. It requires an admin caller.
func (e *Engine) RecalculateInferredMetadata(ctx context.Context) (RecalcResult, error) {
	if !e.authz.IsCallerAdmin(ctx) {
		return RecalcResult{}, auth.ErrForbidden
	}

	contexts, err := e.entries.Contexts(ctx)
	if err != nil {
		return RecalcResult{}, fmt.Errorf("list contexts: %w", err)
	}
	contexts = append(contexts, repository.SystemContexts)

	var uris []string
	for _, id := range contexts {
		entries, err := e.entries.ContextEntries(ctx, id)
		if err != nil {
			return RecalcResult{}, fmt.Errorf("list entries of %s: %w", id, err)
		}
		uris = append(uris, entries...)
	}

	var updated atomic.Int64
	keep := make(map[string]struct{}, len(uris))
	for _, uri := range uris {
		if parts, ok := e.uris.Split(uri); ok {
			keep[e.uris.InferredURI(parts.ContextID, parts.ID)] = struct{}{}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Parallelism)
	for _, uri := range uris {
		g.Go(func() error {
			ok, err := e.recalculate(gctx, uri, "full_recalc")
			if ok {
				updated.Add(1)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return RecalcResult{Entries: len(uris), Updated: int(updated.Load())}, err
	}

	cleared, err := e.clearOrphans(ctx, keep)
	res := RecalcResult{Entries: len(uris), Updated: int(updated.Load()), Cleared: cleared}
	if err != nil {
		return res, err
	}
	e.logger.Info("Recalculated derived metadata",
		"entries", res.Entries,
		"updated", res.Updated,
		"cleared", res.Cleared)
	return res, nil
}

// RecalculateKnownInferredMetadata recomputes the derived metadata of
// entries that already own a derived graph. Graphs whose entry no longer
// resolves are cleared. It requires an admin caller.
func (e *Engine) RecalculateKnownInferredMetadata(ctx context.Context) (RecalcResult, error) {
	if !e.authz.IsCallerAdmin(ctx) {
		return RecalcResult{}, auth.ErrForbidden
	}

	graphs, err := e.derived.Contexts(ctx)
	if err != nil {
		return RecalcResult{}, fmt.Errorf("list derived graphs: %w", err)
	}

	var updated, cleared atomic.Int64
	entries := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Parallelism)
	for _, graphIRI := range graphs {
		uri, ok := e.uris.OwningEntryURI(graphIRI)
		if !ok {
			continue
		}
		entries++
		g.Go(func() error {
			ok, err := e.recalculate(gctx, uri, "known_recalc")
			if err != nil {
				return err
			}
			if ok {
				updated.Add(1)
				return nil
			}
			if err := e.derived.ClearGraph(gctx, graphIRI); err != nil {
				return fmt.Errorf("clear orphan %s: %w", graphIRI, err)
			}
			cleared.Add(1)
			return nil
		})
	}
	err = g.Wait()
	res := RecalcResult{Entries: entries, Updated: int(updated.Load()), Cleared: int(cleared.Load())}
	if err != nil {
		return res, err
	}
	e.logger.Info("Recalculated known derived metadata",
		"entries", res.Entries,
		"updated", res.Updated,
		"cleared", res.Cleared)
	return res, nil
}

// recalculate updates the derived metadata of uri. It reports false when
// the entry does not resolve.
func (e *Engine) recalculate(ctx context.Context, uri, trigger string) (bool, error) {
	entry, err := e.entries.Entry(ctx, uri)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", uri, err)
	}
	_, err = e.md.For(entry).Update(ctx)
	recordRecompute(trigger, err)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) clearOrphans(ctx context.Context, keep map[string]struct{}) (int, error) {
	graphs, err := e.derived.Contexts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list derived graphs: %w", err)
	}
	cleared := 0
	for _, graphIRI := range graphs {
		if _, ok := keep[graphIRI]; ok {
			continue
		}
		if err := e.derived.ClearGraph(ctx, graphIRI); err != nil {
			return cleared, fmt.Errorf("clear orphan %s: %w", graphIRI, err)
		}
		cleared++
	}
	return cleared, nil
}
