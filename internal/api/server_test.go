package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencaselaw/harvester/internal/pipeline"
	"github.com/opencaselaw/harvester/internal/store/memory"
)

type gatedFetcher struct {
	mu   sync.Mutex
	gate chan struct{}
}

func (f *gatedFetcher) FetchListing(_ context.Context, _ string, _ int, _ string) ([]pipeline.Record, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return []pipeline.Record{{URL: "https://cases.test/a", Title: "A v B"}}, nil
}

func (f *gatedFetcher) FetchDocument(_ context.Context, _ pipeline.Record) (string, error) {
	return "judgment text", nil
}

func (f *gatedFetcher) block() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	return f.gate
}

func newTestServer(t *testing.T) (*Server, *pipeline.Orchestrator, *gatedFetcher) {
	srv, orch, fetcher, _ := newTestServerWithStore(t)
	return srv, orch, fetcher
}

func newTestServerWithStore(t *testing.T) (*Server, *pipeline.Orchestrator, *gatedFetcher, *memory.RecordStore) {
	t.Helper()
	fetcher := &gatedFetcher{}
	records := memory.NewRecordStore()
	orch, err := pipeline.New(pipeline.Deps{
		Board:     pipeline.NewStatusBoard(),
		Events:    pipeline.NewEventLog(nil),
		Listings:  fetcher,
		Documents: fetcher,
		Records:   records,
		Bodies:    memory.NewBodyStore(),
	})
	require.NoError(t, err)

	defaults := pipeline.Config{
		Sources:      []string{"hca"},
		YearStart:    2024,
		YearEnd:      2024,
		RequestDelay: time.Millisecond,
		Strategies:   []string{"direct"},
		Download:     true,
	}
	return NewServer(orch, defaults, nil), orch, fetcher, records
}

func waitForRun(t *testing.T, orch *pipeline.Orchestrator) {
	t.Helper()
	select {
	case <-orch.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish in time")
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStartRunAndStatus(t *testing.T) {
	t.Parallel()

	srv, orch, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader("")))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var started map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.NotEmpty(t, started["run_id"])

	waitForRun(t, orch)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status pipeline.RunStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, started["run_id"], status.RunID)
	require.False(t, status.Running)
	require.Equal(t, pipeline.PhaseComplete, status.Phase)
	require.Equal(t, 1, status.Stats.Found)
}

func TestStartRunConflictWhileRunning(t *testing.T) {
	t.Parallel()

	srv, orch, fetcher := newTestServer(t)
	gate := fetcher.block()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", nil))
	require.Equal(t, http.StatusConflict, rec.Code)

	close(gate)
	waitForRun(t, orch)
}

func TestStartRunValidatesOverrides(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader("{not json")))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	body := strings.NewReader(`{"year_start": 2025, "year_end": 2020}`)
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", body))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartRunAppliesOverrides(t *testing.T) {
	t.Parallel()

	srv, orch, _, records := newTestServerWithStore(t)

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"download": false, "sources": ["fca"]}`)
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", body))
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitForRun(t, orch)

	status := orch.Status()
	require.Equal(t, pipeline.PhaseComplete, status.Phase)
	require.Zero(t, status.Stats.Downloaded)

	saved, err := records.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, saved, 1)
	require.Equal(t, "fca", saved[0].SourceCode)
}

func TestStopRun(t *testing.T) {
	t.Parallel()

	srv, orch, fetcher := newTestServer(t)
	gate := fetcher.block()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs/stop", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	close(gate)
	waitForRun(t, orch)
	require.Equal(t, pipeline.PhaseStopped, orch.Status().Phase)
}

func TestEventsEndpoint(t *testing.T) {
	t.Parallel()

	srv, orch, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitForRun(t, orch)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events?phase=crawling", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Events []pipeline.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.NotEmpty(t, payload.Events)
	for _, evt := range payload.Events {
		require.Equal(t, pipeline.PhaseCrawling, evt.Phase)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events?limit=bogus", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorsEndpoint(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/errors", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
