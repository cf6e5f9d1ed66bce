package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func logRecord(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log output is not JSON: %v (%q)", err, buf.String())
	}
	return record
}

func TestHTTPLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := HTTPLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/health?verbose=1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	record := logRecord(t, &buf)
	if record["msg"] != "http_request" {
		t.Errorf("msg = %v, want http_request", record["msg"])
	}
	if record["method"] != "GET" {
		t.Errorf("method = %v, want GET", record["method"])
	}
	if record["path"] != "/health" {
		t.Errorf("path = %v, want /health", record["path"])
	}
	if record["query"] != "verbose=1" {
		t.Errorf("query = %v, want verbose=1", record["query"])
	}
	if record["status"] != float64(http.StatusTeapot) {
		t.Errorf("status = %v, want %d", record["status"], http.StatusTeapot)
	}
	if record["bytes"] != float64(5) {
		t.Errorf("bytes = %v, want 5", record["bytes"])
	}
}

func TestHTTPLoggingMiddlewareDefaultStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := HTTPLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("implicit 200"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	record := logRecord(t, &buf)
	if record["status"] != float64(http.StatusOK) {
		t.Errorf("status = %v, want 200 when WriteHeader is never called", record["status"])
	}
}

func TestHTTPErrorLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	req := httptest.NewRequest(http.MethodPost, "/api/recheck", nil)
	HTTPErrorLogger(logger, http.StatusInternalServerError, errors.New("redis down"), req)

	record := logRecord(t, &buf)
	if record["msg"] != "http_error" {
		t.Errorf("msg = %v, want http_error", record["msg"])
	}
	if record["status"] != float64(http.StatusInternalServerError) {
		t.Errorf("status = %v, want 500", record["status"])
	}
	if record["error"] != "redis down" {
		t.Errorf("error = %v, want the wrapped failure", record["error"])
	}
	if record["path"] != "/api/recheck" {
		t.Errorf("path = %v, want /api/recheck", record["path"])
	}
}
