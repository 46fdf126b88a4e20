package reasoner

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/c360studio/semreason/reasoning"
	"github.com/c360studio/semreason/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// registerHandlers wires the component's handlers into a fresh mux and
// returns a test server.
func registerHandlers(c *Component) *httptest.Server {
	mux := http.NewServeMux()
	c.RegisterHTTPHandlers("reasoner", mux)
	return httptest.NewServer(mux)
}

func do(t *testing.T, method, rawURL, user string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, rawURL, nil)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set(RemoteUserHeader, user)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHandlers_NotStarted(t *testing.T) {
	c := newComponent(DefaultConfig(), nil, slog.Default())
	srv := registerHandlers(c)
	defer srv.Close()

	resp := do(t, http.MethodGet, srv.URL+"/reasoner/ancestors?node=x", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/reasoner/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[StatusResponse](t, resp)
	assert.False(t, status.Running)
	assert.Empty(t, status.Partitions)
}

func TestHandleStatus(t *testing.T) {
	c := newTestComponent(t)
	seed(t, c)
	enable(t, c)
	srv := registerHandlers(c)
	defer srv.Close()

	resp := do(t, http.MethodGet, srv.URL+"/reasoner/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[StatusResponse](t, resp)
	assert.Equal(t, []string{"1"}, status.Partitions)
	assert.Equal(t, []string{"1"}, status.FactContexts)
	assert.Zero(t, status.QueueDepth)

	resp = do(t, http.MethodPost, srv.URL+"/reasoner/status", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandleAncestorsAndParent(t *testing.T) {
	c := newTestComponent(t)
	seed(t, c)
	enable(t, c)
	srv := registerHandlers(c)
	defer srv.Close()

	resp := do(t, http.MethodGet, srv.URL+"/reasoner/ancestors?node="+url.QueryEscape(dog), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	anc := decode[AncestorsResponse](t, resp)
	assert.Equal(t, dog, anc.Node)
	assert.Equal(t, "1", anc.Partition)
	assert.Equal(t, []string{animal, mammal}, anc.Ancestors)

	resp = do(t, http.MethodGet, srv.URL+"/reasoner/parent?node="+url.QueryEscape(dog), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, mammal, decode[ParentResponse](t, resp).Parent)

	tests := []struct {
		path string
		want int
	}{
		{"/reasoner/ancestors?node=urn:unknown", http.StatusNotFound},
		{"/reasoner/ancestors", http.StatusBadRequest},
		{"/reasoner/parent?node=" + url.QueryEscape(animal), http.StatusNotFound},
		{"/reasoner/parent", http.StatusBadRequest},
	}
	for _, tt := range tests {
		resp := do(t, http.MethodGet, srv.URL+tt.path, "")
		if resp.StatusCode != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
	}
}

func TestHandleRebuild(t *testing.T) {
	c := newTestComponent(t)
	seed(t, c)
	enable(t, c)
	srv := registerHandlers(c)
	defer srv.Close()

	resp := do(t, http.MethodPost, srv.URL+"/reasoner/rebuild", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/reasoner/rebuild", "bob")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/reasoner/rebuild", "admin")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decode[RebuildResponse](t, resp).Partitions)

	resp = do(t, http.MethodGet, srv.URL+"/reasoner/rebuild", "admin")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandleRecalculate(t *testing.T) {
	c := newTestComponent(t)
	seed(t, c)
	enable(t, c)
	srv := registerHandlers(c)
	defer srv.Close()

	resp := do(t, http.MethodPost, srv.URL+"/reasoner/recalculate", "bob")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/reasoner/recalculate?scope=some", "admin")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	for _, scope := range []string{ScopeAll, ScopeKnown} {
		resp = do(t, http.MethodPost, srv.URL+"/reasoner/recalculate?scope="+scope, "admin")
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		job := decode[Job](t, resp)
		assert.Equal(t, scope, job.Scope)
		assert.Equal(t, "admin", job.Caller)
		require.NotEmpty(t, job.ID)

		var finished Job
		require.Eventually(t, func() bool {
			r, err := http.Get(srv.URL + "/reasoner/jobs?id=" + job.ID)
			if err != nil {
				return false
			}
			defer r.Body.Close()
			if r.StatusCode != http.StatusOK {
				return false
			}
			if err := json.NewDecoder(r.Body).Decode(&finished); err != nil {
				return false
			}
			return finished.State != JobRunning
		}, 2*time.Second, 10*time.Millisecond)

		assert.Equal(t, JobSucceeded, finished.State, finished.Error)
		require.NotNil(t, finished.Result)
		assert.NotZero(t, finished.Result.Updated)
	}

	resp = do(t, http.MethodGet, srv.URL+"/reasoner/jobs?id=nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = do(t, http.MethodGet, srv.URL+"/reasoner/jobs", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleInferred(t *testing.T) {
	c := newTestComponent(t)
	seed(t, c)
	enable(t, c)
	srv := registerHandlers(c)
	defer srv.Close()

	entry := url.QueryEscape(c.uris.EntryURI("2", "photo"))

	resp := do(t, http.MethodGet, srv.URL+"/reasoner/inferred?entry="+entry, "bob")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/turtle", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "animal"), "turtle output: %s", body)

	resp = do(t, http.MethodGet, srv.URL+"/reasoner/inferred?format=ntriples&entry="+entry, "bob")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/n-triples", resp.Header.Get("Content-Type"))

	resp = do(t, http.MethodGet, srv.URL+"/reasoner/inferred?format=rdfxml&entry="+entry, "bob")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/reasoner/inferred?entry="+url.QueryEscape(c.uris.EntryURI("2", "ghost")), "bob")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/reasoner/inferred", "bob")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleInferred_ReadPolicy(t *testing.T) {
	c := newTestComponent(t)
	seed(t, c)
	enable(t, c)
	c.Authorizer().ReadPolicy = func(_ context.Context, _ string, e *repository.Entry) bool {
		return e.ContextID != "2"
	}
	srv := registerHandlers(c)
	defer srv.Close()

	entry := url.QueryEscape(c.uris.EntryURI("2", "photo"))
	resp := do(t, http.MethodGet, srv.URL+"/reasoner/inferred?entry="+entry, "bob")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = do(t, http.MethodGet, srv.URL+"/reasoner/inferred?entry="+entry, "admin")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFinishJob_EvictsOldestFinished(t *testing.T) {
	c := newTestComponent(t)
	c.jobLimit = 2

	running := c.startJob(ScopeAll, "admin")
	var finished []Job
	for i := 0; i < 3; i++ {
		job := c.startJob(ScopeKnown, "admin")
		c.finishJob(job.ID, reasoning.RecalcResult{Updated: i}, nil)
		finished = append(finished, job)
		time.Sleep(time.Millisecond)
	}

	c.jobsMu.Lock()
	defer c.jobsMu.Unlock()
	assert.Len(t, c.jobs, 3)
	assert.Contains(t, c.jobs, running.ID, "running jobs are kept")
	assert.NotContains(t, c.jobs, finished[0].ID)
	assert.Contains(t, c.jobs, finished[1].ID)
	assert.Contains(t, c.jobs, finished[2].ID)
}
