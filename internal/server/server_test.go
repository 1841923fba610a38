package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/engram/internal/engine"
	"github.com/rcliao/engram/internal/metrics"
	"github.com/rcliao/engram/internal/model"
	"github.com/rcliao/engram/internal/store"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type scripted struct {
	mu      sync.Mutex
	replies []string
}

func (s *scripted) Complete(context.Context, string, string, int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.replies) == 0 {
		return "", errors.New("unavailable")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

func (s *scripted) Name() string { return "scripted" }

func newTestServer(t *testing.T, replies ...string) (*httptest.Server, *store.MemoryStore) {
	t.Helper()
	st, err := store.Open(context.Background(), store.NewMemKV(), store.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	m := metrics.New()
	eng := engine.New(st, &scripted{replies: replies}, engine.WithMetrics(m))
	srv := httptest.NewServer(New(eng, nil, m).Handler())
	t.Cleanup(srv.Close)
	return srv, st
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func seedStore(t *testing.T, st *store.MemoryStore, ids ...string) {
	t.Helper()
	var ms []model.Memory
	for _, id := range ids {
		ms = append(ms, model.Memory{
			ID:        id,
			Content:   "memory " + id,
			Salience:  model.Salience{Novelty: 0.5, Relevance: 0.5, Emotional: 0.5, Predictive: 0.5},
			Tags:      []string{"context"},
			CreatedAt: now,
		})
	}
	require.NoError(t, st.ReplaceAll(context.Background(), ms))
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, body := do(t, "GET", srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestIngestAndList(t *testing.T) {
	srv, _ := newTestServer(t, `[{"content":"likes tea","tags":["preference"]},{"content":"owns a cat","tags":["personal"]}]`)

	resp, body := do(t, "POST", srv.URL+"/ingest", `{"text":"I like tea and I have a cat"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var res engine.IngestResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, 2, res.Created)

	resp, body = do(t, "GET", srv.URL+"/memories?q=tea", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []store.Scored
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "likes tea", list[0].Content)
	assert.Equal(t, "Stable", list[0].Tier)

	resp, _ = do(t, "GET", srv.URL+"/memories?sort=alphabetical", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = do(t, "GET", srv.URL+"/memories?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIngestErrors(t *testing.T) {
	srv, _ := newTestServer(t, "not json")

	resp, _ := do(t, "POST", srv.URL+"/ingest", `{"text":"  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, "POST", srv.URL+"/ingest", `{"text":"x","mode":"poem"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, "POST", srv.URL+"/ingest", `{bad`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, "POST", srv.URL+"/ingest", `{"text":"something"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp, _ = do(t, "POST", srv.URL+"/ingest", `{"text":"something"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestMemoryLifecycle(t *testing.T) {
	srv, st := newTestServer(t)
	seedStore(t, st, "a", "b")

	resp, body := do(t, "GET", srv.URL+"/memories/a", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var m model.Memory
	require.NoError(t, json.Unmarshal(body, &m))
	assert.Equal(t, "memory a", m.Content)

	resp, body = do(t, "POST", srv.URL+"/memories/a/reinforce", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &m))
	assert.Equal(t, 1, m.AccessCount)

	resp, _ = do(t, "DELETE", srv.URL+"/memories/a", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = do(t, "GET", srv.URL+"/memories/a", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, "POST", srv.URL+"/memories/a/reinforce", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, "DELETE", srv.URL+"/memories/a", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConsolidateEndpoint(t *testing.T) {
	srv, st := newTestServer(t, `{"merge":[{"ids":["a","b"],"merged":{"content":"ab"}}],"notes":"merged"}`, "garbage")
	seedStore(t, st, "a", "b", "c")

	resp, body := do(t, "POST", srv.URL+"/consolidate", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var res engine.ConsolidationResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, 1, res.Merged)
	assert.Equal(t, "merged", res.Notes)

	resp, body = do(t, "POST", srv.URL+"/consolidate", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	var failed struct {
		Error  string                     `json:"error"`
		Result engine.ConsolidationResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(body, &failed))
	assert.Equal(t, engine.PathAborted, failed.Result.Path)

	seedStore(t, st, "only")
	resp, _ = do(t, "POST", srv.URL+"/consolidate", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestBriefingEndpoints(t *testing.T) {
	srv, st := newTestServer(t, "## Active Context\n\n- likes *tea*")

	resp, _ := do(t, "POST", srv.URL+"/briefing", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	seedStore(t, st, "a")
	resp, body := do(t, "POST", srv.URL+"/briefing", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = do(t, "GET", srv.URL+"/briefing", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got map[string]string
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "## Active Context\n\n- likes *tea*", got["briefing"])

	resp, body = do(t, "GET", srv.URL+"/briefing?format=html", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), "<h2>Active Context</h2>")
	assert.Contains(t, string(body), "<em>tea</em>")
}

func TestExportImportReset(t *testing.T) {
	srv, st := newTestServer(t)
	seedStore(t, st, "a", "b")

	resp, exported := do(t, "GET", srv.URL+"/export", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, "POST", srv.URL+"/reset", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = do(t, "POST", srv.URL+"/reset?confirm=true", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, st.Len())

	resp, _ = do(t, "POST", srv.URL+"/import", string(exported))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, st.Len())

	resp, body := do(t, "POST", srv.URL+"/import?confirm=true", string(exported))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"imported":2}`, string(body))
	assert.Equal(t, 2, st.Len())

	resp, _ = do(t, "POST", srv.URL+"/import?confirm=true", `{"briefing":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatsAndMetrics(t *testing.T) {
	srv, st := newTestServer(t, `[{"content":"likes tea"}]`)
	seedStore(t, st, "a", "b", "c")

	resp, body := do(t, "GET", srv.URL+"/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats store.Stats
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, 3, stats.Total)

	resp, _ = do(t, "POST", srv.URL+"/ingest", `{"text":"tea"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = do(t, "GET", srv.URL+"/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `engram_pipeline_runs_total{outcome="ok",pipeline="ingest"} 1`)
	assert.Contains(t, string(body), "engram_memories 4")
}
