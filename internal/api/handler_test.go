package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clausecheck/clausecheck/internal/extract"
	"github.com/clausecheck/clausecheck/internal/history"
	"github.com/clausecheck/clausecheck/internal/metrics"
	"github.com/clausecheck/clausecheck/internal/models"
	"github.com/clausecheck/clausecheck/internal/orchestrator"
	"github.com/clausecheck/clausecheck/internal/rules"
	"github.com/clausecheck/clausecheck/internal/scanner"
)

type stubQueue struct {
	taskID  string
	err     error
	calls   int
	lastKey string
}

func (q *stubQueue) EnqueueRecheckDocument(ctx context.Context, documentKey, site string) (string, error) {
	q.calls++
	q.lastKey = documentKey
	if q.err != nil {
		return "", q.err
	}
	return q.taskID, nil
}

func testHandler(t *testing.T, queue QueueClient) (http.Handler, *history.Store) {
	t.Helper()

	dir := t.TempDir()
	files := map[string]string{
		"critical.json": `[{"id":"arbitration_clause","patterns":["arbitration"],"explanation_en":"Disputes must go through arbitration.","explanation_hi":"विवाद मध्यस्थता से सुलझाने होंगे।"}]`,
		"concern.json":  `[{"id":"data_collection","patterns":["collect.{0,20}personal data"],"explanation_en":"Personal data is collected."}]`,
		"safe.json":     `[{"id":"opt_out_available","patterns":["opt[- ]out"],"explanation_en":"You can opt out."}]`,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	ruleStore, err := rules.NewStore(dir, nil)
	require.NoError(t, err)

	db, err := history.New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	store := history.NewStore(db, 0)

	m := metrics.NewWith(nil)
	orch := orchestrator.New(nil, scanner.New(ruleStore), m, nil)

	opts := extract.Options{MinLength: 10, Debounce: 10 * time.Millisecond, HardTimeout: time.Second}
	snaps := extract.NewService(nil, opts, nil)

	return NewHandler(orch, store, snaps, queue, m, nil), store
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	handler, _ := testHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestAnalyzeLegalText(t *testing.T) {
	handler, _ := testHandler(t, nil)

	rec := postJSON(t, handler, "/api/analyze", map[string]string{
		"legal_text": "All disputes go to arbitration. We collect your personal data.",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Mode    string        `json:"mode"`
		Summary string        `json:"summary"`
		Counts  models.Counts `json:"counts"`
		Score   models.Score  `json:"score"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "fallback", resp.Mode)
	assert.NotEmpty(t, resp.Summary)
	assert.Equal(t, models.Counts{Critical: 1, Concern: 1}, resp.Counts)
	assert.Equal(t, 72, resp.Score.Value, "100 - 20 - 8")
	assert.Equal(t, models.RatingModerate, resp.Score.Rating)
}

func TestAnalyzeHindiSummary(t *testing.T) {
	handler, _ := testHandler(t, nil)

	rec := postJSON(t, handler, "/api/analyze", map[string]string{
		"legal_text": "All disputes go to arbitration.",
		"lang":       "hi",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Summary string `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Summary, "मध्यस्थता")
}

func TestAnalyzeURLRecordsHistory(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>All disputes arising under this agreement go to binding arbitration.</p></body></html>`))
	}))
	defer page.Close()

	handler, store := testHandler(t, nil)

	rec := postJSON(t, handler, "/api/analyze", map[string]string{"url": page.URL})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		History *models.HistoryEntry `json:"history"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.History, "URL analyses must be recorded")
	assert.Equal(t, page.URL, resp.History.DocumentKey)
	assert.False(t, resp.History.Changed)

	entry, err := store.Get(context.Background(), page.URL)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 1, entry.Counts.Critical)
}

func TestAnalyzeTextNotRecorded(t *testing.T) {
	handler, store := testHandler(t, nil)

	rec := postJSON(t, handler, "/api/analyze", map[string]string{
		"legal_text": "All disputes go to arbitration.",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	entries, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries, "direct-text analyses have no page identity to track")
}

func TestAnalyzeValidation(t *testing.T) {
	handler, _ := testHandler(t, nil)

	rec := postJSON(t, handler, "/api/analyze", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewReader([]byte("not json")))
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/analyze", nil)
	rec3 := httptest.NewRecorder()
	handler.ServeHTTP(rec3, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec3.Code)
}

func TestAsk(t *testing.T) {
	handler, _ := testHandler(t, nil)

	rec := postJSON(t, handler, "/api/ask", map[string]string{
		"legal_text": "All disputes go to arbitration.",
		"question":   "does this require arbitration",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Answer string `json:"answer"`
		Mode   string `json:"mode"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "fallback", resp.Mode)
	assert.Contains(t, resp.Answer, "arbitration")
}

func TestAskValidation(t *testing.T) {
	handler, _ := testHandler(t, nil)

	rec := postJSON(t, handler, "/api/ask", map[string]string{"question": "anything?"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecheck(t *testing.T) {
	queue := &stubQueue{taskID: "task-123"}
	handler, store := testHandler(t, queue)

	_, err := store.Record(context.Background(), "https://example.com/tos", "example.com",
		models.Score{Value: 80, Rating: models.RatingModerate}, models.Counts{Critical: 1}, "text v1")
	require.NoError(t, err)

	rec := postJSON(t, handler, "/api/recheck", map[string]string{"url": "https://example.com/tos"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "task-123", resp["task_id"])
	assert.Equal(t, "enqueued", resp["status"])
	assert.Equal(t, 1, queue.calls)
	assert.Equal(t, "https://example.com/tos", queue.lastKey)
}

func TestRecheckUnknownDocument(t *testing.T) {
	handler, _ := testHandler(t, &stubQueue{taskID: "task-123"})

	rec := postJSON(t, handler, "/api/recheck", map[string]string{"url": "https://never-seen.example/tos"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecheckQueueDisabled(t *testing.T) {
	handler, _ := testHandler(t, nil)

	rec := postJSON(t, handler, "/api/recheck", map[string]string{"url": "https://example.com/tos"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecheckEnqueueFailure(t *testing.T) {
	queue := &stubQueue{err: errors.New("redis down")}
	handler, store := testHandler(t, queue)

	_, err := store.Record(context.Background(), "https://example.com/tos", "example.com",
		models.Score{Value: 80, Rating: models.RatingModerate}, models.Counts{}, "text")
	require.NoError(t, err)

	rec := postJSON(t, handler, "/api/recheck", map[string]string{"url": "https://example.com/tos"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHistoryListAndClear(t *testing.T) {
	handler, store := testHandler(t, nil)
	ctx := context.Background()

	for _, key := range []string{"https://a.example/tos", "https://b.example/tos"} {
		_, err := store.Record(ctx, key, "site",
			models.Score{Value: 90, Rating: models.RatingSafe}, models.Counts{}, key)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var listResp struct {
		Entries []models.HistoryEntry `json:"entries"`
		Count   int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	assert.Equal(t, 2, listResp.Count)
	assert.Equal(t, "https://b.example/tos", listResp.Entries[0].DocumentKey)

	req = httptest.NewRequest(http.MethodDelete, "/api/history", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	entries, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHistoryStats(t *testing.T) {
	handler, store := testHandler(t, nil)

	_, err := store.Record(context.Background(), "https://a.example/tos", "a.example",
		models.Score{Value: 60, Rating: models.RatingModerate}, models.Counts{Critical: 2}, "text")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/history/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.HistoryStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 60, stats.AverageScore)
}

func TestDisplaySite(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://www.example.com/legal/tos", "example.com"},
		{"https://docs.example.org/privacy", "docs.example.org"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		if got := displaySite(tt.raw); got != tt.want {
			t.Errorf("displaySite(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
