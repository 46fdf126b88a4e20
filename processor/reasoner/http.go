package reasoner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/c360studio/semreason/auth"
	"github.com/c360studio/semreason/export"
	"github.com/c360studio/semreason/reasoning"
	"github.com/c360studio/semreason/repository"
	"github.com/c360studio/semreason/storage"
	"github.com/google/uuid"
)

// RemoteUserHeader carries the authenticated caller, set by the fronting
// proxy.
const RemoteUserHeader = "X-Remote-User"

// Recalculation scopes.
const (
	ScopeAll   = "all"
	ScopeKnown = "known"
)

// Job states.
const (
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// DefaultJobLimit is the number of finished jobs kept for lookup. Older
// finished jobs are evicted first; running jobs are never evicted.
const DefaultJobLimit = 100

// Job tracks an asynchronous recalculation.
type Job struct {
	ID         string                  `json:"id"`
	Scope      string                  `json:"scope"`
	Caller     string                  `json:"caller"`
	State      string                  `json:"state"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt *time.Time              `json:"finished_at,omitempty"`
	Result     *reasoning.RecalcResult `json:"result,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

// AncestorsResponse is the response body for GET ancestors.
type AncestorsResponse struct {
	Node      string   `json:"node"`
	Partition string   `json:"partition,omitempty"`
	Ancestors []string `json:"ancestors"`
}

// ParentResponse is the response body for GET parent.
type ParentResponse struct {
	Node      string `json:"node"`
	Partition string `json:"partition,omitempty"`
	Parent    string `json:"parent"`
}

// StatusResponse is the response body for GET status.
type StatusResponse struct {
	reasoning.Status
	Running         bool  `json:"running"`
	EventsProcessed int64 `json:"events_processed"`
	EventErrors     int64 `json:"event_errors"`
}

// RebuildResponse is the response body for POST rebuild.
type RebuildResponse struct {
	Partitions int `json:"partitions"`
}

// RegisterHTTPHandlers registers the reasoner HTTP handlers under the given
// prefix:
//
//	POST <prefix>recalculate?scope=all|known
//	POST <prefix>rebuild
//	GET  <prefix>jobs?id=
//	GET  <prefix>ancestors?node=
//	GET  <prefix>parent?node=
//	GET  <prefix>inferred?entry=&format=
//	GET  <prefix>status
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}

	mux.HandleFunc(prefix+"recalculate", c.handleRecalculate)
	mux.HandleFunc(prefix+"rebuild", c.handleRebuild)
	mux.HandleFunc(prefix+"jobs", c.handleJobs)
	mux.HandleFunc(prefix+"ancestors", c.handleAncestors)
	mux.HandleFunc(prefix+"parent", c.handleParent)
	mux.HandleFunc(prefix+"inferred", c.handleInferred)
	mux.HandleFunc(prefix+"status", c.handleStatus)
}

// callerContext attaches the remote user of r to its context.
func callerContext(r *http.Request) context.Context {
	if user := strings.TrimSpace(r.Header.Get(RemoteUserHeader)); user != "" {
		return auth.WithCaller(r.Context(), user)
	}
	return r.Context()
}

// handleRecalculate starts a recalculation and answers with its job.
func (c *Component) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	engine := c.Engine()
	if engine == nil {
		http.Error(w, errNotStarted.Error(), http.StatusServiceUnavailable)
		return
	}

	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = ScopeAll
	}
	var run func(context.Context) (reasoning.RecalcResult, error)
	switch scope {
	case ScopeAll:
		run = engine.RecalculateInferredMetadata
	case ScopeKnown:
		run = engine.RecalculateKnownInferredMetadata
	default:
		http.Error(w, "scope must be all or known", http.StatusBadRequest)
		return
	}

	ctx := callerContext(r)
	if !c.authz.IsCallerAdmin(ctx) {
		writeError(w, auth.ErrForbidden)
		return
	}

	caller := auth.Caller(ctx)
	job := c.startJob(scope, caller)
	jobCtx := auth.WithCaller(c.lifecycleContext(), caller)
	go func() {
		res, err := run(jobCtx)
		c.finishJob(job.ID, res, err)
	}()

	writeJSON(w, http.StatusAccepted, job)
}

func (c *Component) startJob(scope, caller string) Job {
	job := &Job{
		ID:        uuid.New().String(),
		Scope:     scope,
		Caller:    caller,
		State:     JobRunning,
		StartedAt: time.Now(),
	}
	c.jobsMu.Lock()
	c.jobs[job.ID] = job
	c.jobsMu.Unlock()

	c.logger.Info("Recalculation started", "job", job.ID, "scope", scope, "caller", caller)
	return *job
}

func (c *Component) finishJob(id string, res reasoning.RecalcResult, err error) {
	now := time.Now()

	c.jobsMu.Lock()
	defer c.jobsMu.Unlock()
	job, ok := c.jobs[id]
	if !ok {
		return
	}
	job.FinishedAt = &now
	job.Result = &res
	defer c.evictJobsLocked()
	if err != nil {
		job.State = JobFailed
		job.Error = err.Error()
		c.logger.Error("Recalculation failed", "job", id, "error", err)
		return
	}
	job.State = JobSucceeded
	c.logger.Info("Recalculation finished", "job", id, "updated", res.Updated, "cleared", res.Cleared)
}

// evictJobsLocked drops the oldest finished jobs beyond jobLimit.
func (c *Component) evictJobsLocked() {
	finished := make([]*Job, 0, len(c.jobs))
	for _, job := range c.jobs {
		if job.FinishedAt != nil {
			finished = append(finished, job)
		}
	}
	if len(finished) <= c.jobLimit {
		return
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].FinishedAt.Before(*finished[j].FinishedAt)
	})
	for _, job := range finished[:len(finished)-c.jobLimit] {
		delete(c.jobs, job.ID)
	}
}

// handleJobs returns one recalculation job.
func (c *Component) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	c.jobsMu.Lock()
	job, ok := c.jobs[id]
	var snapshot Job
	if ok {
		snapshot = *job
	}
	c.jobsMu.Unlock()

	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// handleRebuild rebuilds the forest index synchronously.
func (c *Component) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	engine := c.Engine()
	if engine == nil {
		http.Error(w, errNotStarted.Error(), http.StatusServiceUnavailable)
		return
	}

	if err := engine.RebuildForestIndex(callerContext(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RebuildResponse{Partitions: len(engine.Status().Partitions)})
}

func (c *Component) handleAncestors(w http.ResponseWriter, r *http.Request) {
	engine, node, ok := c.nodeQuery(w, r)
	if !ok {
		return
	}
	ancestors, found := engine.Ancestors(node)
	if !found {
		http.Error(w, "node not in any forest", http.StatusNotFound)
		return
	}
	partition, _ := engine.Locate(node)
	writeJSON(w, http.StatusOK, AncestorsResponse{
		Node:      node,
		Partition: partition,
		Ancestors: ancestors.Sorted(),
	})
}

func (c *Component) handleParent(w http.ResponseWriter, r *http.Request) {
	engine, node, ok := c.nodeQuery(w, r)
	if !ok {
		return
	}
	parent, found := engine.Parent(node)
	if !found {
		http.Error(w, "node has no parent", http.StatusNotFound)
		return
	}
	partition, _ := engine.Locate(node)
	writeJSON(w, http.StatusOK, ParentResponse{Node: node, Partition: partition, Parent: parent})
}

// nodeQuery validates a GET request carrying a node parameter.
func (c *Component) nodeQuery(w http.ResponseWriter, r *http.Request) (*reasoning.Engine, string, bool) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil, "", false
	}
	engine := c.Engine()
	if engine == nil {
		http.Error(w, errNotStarted.Error(), http.StatusServiceUnavailable)
		return nil, "", false
	}
	node := r.URL.Query().Get("node")
	if node == "" {
		http.Error(w, "node is required", http.StatusBadRequest)
		return nil, "", false
	}
	return engine, node, true
}

// handleInferred exports the derived graph of an entry.
func (c *Component) handleInferred(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	engine := c.Engine()
	if engine == nil {
		http.Error(w, errNotStarted.Error(), http.StatusServiceUnavailable)
		return
	}

	entryURI := r.URL.Query().Get("entry")
	if entryURI == "" {
		http.Error(w, "entry is required", http.StatusBadRequest)
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := callerContext(r)
	c.mu.RLock()
	resolver := c.resolver
	c.mu.RUnlock()
	entry, err := resolver.Entry(ctx, entryURI)
	if err != nil {
		writeError(w, err)
		return
	}

	g, err := engine.Inferred(entry).Graph(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := export.Serialize(g, format, c.uris.Base())
	if err != nil {
		c.logger.Error("Failed to serialize derived graph", "entry", entryURI, "error", err)
		http.Error(w, "serialization failed", http.StatusInternalServerError)
		return
	}

	info, _ := export.GetFormatInfo(format)
	w.Header().Set("Content-Type", info.MIMEType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}

func (c *Component) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := StatusResponse{
		Running:         c.Health().Healthy,
		EventsProcessed: c.eventsProcessed.Load(),
		EventErrors:     c.eventErrors.Load(),
	}
	if engine := c.Engine(); engine != nil {
		resp.Status = engine.Status()
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeError maps engine and store errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeJSON marshals v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
