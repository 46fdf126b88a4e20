package reasoning

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/c360studio/semreason/auth"
	"github.com/c360studio/semreason/forest"
	"github.com/c360studio/semreason/repository"
	"github.com/c360studio/semreason/storage"
	"github.com/google/uuid"
)

// BatchResult summarizes one worker cycle.
type BatchResult struct {
	ID       string
	Changes  int
	Entries  int
	Updated  int
	Deferred int
	Dropped  int
}

// Run drains the change queue until ctx is cancelled. It returns nil on
// cancellation.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("Reasoning worker started", "batch_size", e.cfg.BatchSize)
	defer e.logger.Info("Reasoning worker stopped")

	for {
		if err := e.wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		e.ProcessBatch(ctx)
	}
}

// wait blocks until changes are queued, a retry falls due or ctx ends.
// It returns an error only when the wait was cut short without work.
func (e *Engine) wait(ctx context.Context) error {
	if e.queue.Len() > 0 {
		return nil
	}
	waitCtx := ctx
	if d, ok := e.retries.nextIn(time.Now()); ok {
		if d == 0 {
			return nil
		}
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	err := e.queue.Wait(waitCtx)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// ProcessBatch runs one worker cycle: it drains up to BatchSize change
// records plus every retry that fell due, finds the entries they affect and
// recomputes their derived metadata.
func (e *Engine) ProcessBatch(ctx context.Context) BatchResult {
	start := time.Now()
	res := BatchResult{ID: uuid.New().String()}

	changes := e.queue.Drain(e.cfg.BatchSize)
	queueDepth.Set(float64(e.queue.Len()))
	due := e.retries.due(start)

	var pending []*obligation
	for i := range changes {
		c := changes[i]
		pending = append(pending, &obligation{change: &c})
	}
	pending = append(pending, due...)
	res.Changes = len(changes)

	if len(pending) == 0 {
		return res
	}

	opCtx, cancel := context.WithTimeout(auth.System(ctx), e.cfg.StoreTimeout)
	defer cancel()

	logger := e.logger.With("batch", res.ID)
	logger.Debug("Processing reasoning batch",
		"changes", len(changes),
		"retries", len(due))

	// Entry URI to the obligation it came from, when it was a retry.
	entries := make(map[string]*obligation)
	for _, o := range pending {
		if o.change == nil {
			if _, seen := entries[o.entryURI]; !seen {
				entries[o.entryURI] = o
			}
			continue
		}
		uris, err := e.affectedEntries(opCtx, *o.change)
		if err != nil {
			logger.Warn("Failed to look up entries affected by change",
				"change", o.change.String(),
				"error", err)
			e.deferWork(o, start, &res)
			continue
		}
		for _, uri := range uris {
			if _, seen := entries[uri]; !seen {
				entries[uri] = nil
			}
		}
	}
	res.Entries = len(entries)

	uris := make([]string, 0, len(entries))
	for uri := range entries {
		uris = append(uris, uri)
	}
	sort.Strings(uris)

	for _, uri := range uris {
		err := e.recompute(opCtx, uri)
		if err == nil {
			res.Updated++
			continue
		}
		logger.Warn("Failed to recompute derived metadata",
			"entry", uri,
			"error", err)
		o := entries[uri]
		if o == nil {
			o = &obligation{entryURI: uri}
		}
		e.deferWork(o, start, &res)
	}

	result := "success"
	if res.Deferred > 0 || res.Dropped > 0 {
		result = "partial"
	}
	batchesProcessed.WithLabelValues(result).Inc()
	batchDuration.Observe(time.Since(start).Seconds())

	logger.Debug("Reasoning batch done",
		"entries", res.Entries,
		"updated", res.Updated,
		"deferred", res.Deferred,
		"dropped", res.Dropped,
		"duration", time.Since(start))
	return res
}

// affectedEntries returns the entries whose metadata or derived metadata
// references a node of c. Derived graphs list ancestors, so the derived
// store also yields entries referencing descendants of the changed nodes.
func (e *Engine) affectedEntries(ctx context.Context, c forest.Change) ([]string, error) {
	class := "orig"
	if c.Vanished() {
		class = "inferred"
	}
	changesDrained.WithLabelValues(class).Inc()

	nodes := make([]string, 0, len(c.Nodes)+len(c.Promoted))
	nodes = append(nodes, c.Nodes...)
	nodes = append(nodes, c.Promoted...)

	stores := []storage.Reader{e.primary, e.derived}
	if c.Vanished() {
		stores = []storage.Reader{e.derived, e.primary}
	}

	found := make(forest.NodeSet)
	for _, node := range nodes {
		for _, store := range stores {
			hits, err := store.Match(ctx, storage.Pattern{Object: node})
			if err != nil {
				return nil, err
			}
			for _, st := range hits {
				if st.Literal {
					continue
				}
				if uri, ok := e.uris.OwningEntryURI(st.Context); ok {
					found.Add(uri)
				}
			}
		}
	}
	return found.Sorted(), nil
}

// recompute resolves uri and updates its derived metadata. Entries that no
// longer exist are skipped.
func (e *Engine) recompute(ctx context.Context, uri string) error {
	entry, err := e.entries.Entry(ctx, uri)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = e.md.For(entry).Update(ctx)
	recordRecompute("forest_change", err)
	return err
}

func (e *Engine) deferWork(o *obligation, now time.Time, res *BatchResult) {
	if e.retries.schedule(o, now) {
		res.Deferred++
		retries.WithLabelValues("scheduled").Inc()
		return
	}
	res.Dropped++
	retries.WithLabelValues("abandoned").Inc()
	e.logger.Error("Giving up on derived metadata recompute",
		"entry", o.entryURI,
		"change", changeLabel(o.change),
		"attempts", o.attempts)
}

func changeLabel(c *forest.Change) string {
	if c == nil {
		return ""
	}
	return c.String()
}
