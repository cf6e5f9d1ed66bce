// Package api exposes the analysis pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clausecheck/clausecheck/internal/extract"
	"github.com/clausecheck/clausecheck/internal/history"
	"github.com/clausecheck/clausecheck/internal/metrics"
	"github.com/clausecheck/clausecheck/internal/models"
	"github.com/clausecheck/clausecheck/internal/orchestrator"
	"github.com/clausecheck/clausecheck/internal/scoring"
	"github.com/clausecheck/clausecheck/pkg/logging"
	"github.com/clausecheck/clausecheck/pkg/tracing"
)

// QueueClient enqueues background re-checks. Satisfied by queue.Client;
// kept as an interface so tests can stub it.
type QueueClient interface {
	EnqueueRecheckDocument(ctx context.Context, documentKey, site string) (string, error)
}

// Handler handles HTTP requests
type Handler struct {
	orch    *orchestrator.Orchestrator
	store   *history.Store
	snaps   *extract.Service
	queue   QueueClient // nil when the queue is disabled
	metrics *metrics.Metrics
	logger  *slog.Logger
	mux     *http.ServeMux
}

// NewHandler creates a new API handler with CORS support and metrics
func NewHandler(
	orch *orchestrator.Orchestrator,
	store *history.Store,
	snaps *extract.Service,
	queue QueueClient,
	m *metrics.Metrics,
	logger *slog.Logger,
) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		orch:    orch,
		store:   store,
		snaps:   snaps,
		queue:   queue,
		metrics: m,
		logger:  logger,
		mux:     http.NewServeMux(),
	}

	h.setupRoutes()

	// Setup CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return c.Handler(h.mux)
}

// setupRoutes configures all API routes
func (h *Handler) setupRoutes() {
	h.mux.Handle("/metrics", promhttp.Handler()) // Prometheus metrics endpoint
	h.mux.HandleFunc("/api/analyze", h.handleAnalyze)
	h.mux.HandleFunc("/api/ask", h.handleAsk)
	h.mux.HandleFunc("/api/recheck", h.handleRecheck)
	h.mux.HandleFunc("/api/history", h.handleHistory)
	h.mux.HandleFunc("/api/history/stats", h.handleHistoryStats)
	h.mux.HandleFunc("/health", h.handleHealth)
}

// handleHealth handles health check requests
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

type analyzeRequest struct {
	URL       string `json:"url,omitempty"`
	LegalText string `json:"legal_text,omitempty"`
	Lang      string `json:"lang,omitempty"`
}

type analyzeResponse struct {
	Mode    models.AnalysisMode                     `json:"mode"`
	Summary string                                  `json:"summary"`
	Matches map[models.Category][]models.ClauseRule `json:"matches,omitempty"`
	Counts  models.Counts                           `json:"counts"`
	Score   models.Score                            `json:"score"`
	History *models.HistoryEntry                    `json:"history,omitempty"`
}

// handleAnalyze runs the full pipeline: snapshot, two-tier analysis,
// scoring, best-effort history recording.
func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.URL == "" && req.LegalText == "" {
		respondError(w, "Either url or legal_text is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	var snapshot models.ExtractedText
	if req.URL != "" {
		start := time.Now()
		snapshot = h.snaps.Fetch(ctx, req.URL)
		h.metrics.ObserveExtract(start)
	} else {
		snapshot = h.snaps.Wrap(req.LegalText)
	}

	tracing.SetSpanAttributes(ctx,
		attribute.Int("snapshot.length", len(snapshot.Content)),
		attribute.Bool("snapshot.truncated", snapshot.Truncated),
	)

	key := req.URL
	if key == "" {
		// Direct-text analyses have no page identity; key by content so
		// identical submissions still share one in-flight analysis.
		key = "text:" + history.HashContent(snapshot.Content)
	}

	result := h.orch.Analyze(ctx, key, snapshot)
	score := scoring.Compute(result.Counts)

	resp := analyzeResponse{
		Mode:    result.Mode,
		Summary: localizedSummary(result, req.Lang),
		Matches: result.Matches,
		Counts:  result.Counts,
		Score:   score,
	}

	// Persistence is best-effort: a storage failure is logged and the
	// analysis still renders.
	if req.URL != "" {
		entry, err := h.store.Record(ctx, req.URL, displaySite(req.URL), score, result.Counts, snapshot.Content)
		if err != nil {
			h.logger.Error("failed to persist analysis", "url", req.URL, "error", err)
		} else {
			resp.History = entry
			h.updateHistoryGauge(ctx)
		}
	}

	respondJSON(w, resp, http.StatusOK)
}

type askRequest struct {
	LegalText string `json:"legal_text"`
	Question  string `json:"question"`
	Lang      string `json:"lang,omitempty"`
}

// handleAsk answers a question about a document, AI-first with a
// rule-grounded fallback.
func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.LegalText == "" || req.Question == "" {
		respondError(w, "legal_text and question are required", http.StatusBadRequest)
		return
	}

	answer, mode := h.orch.Ask(r.Context(), req.LegalText, req.Question, req.Lang)
	respondJSON(w, map[string]interface{}{
		"answer": answer,
		"mode":   mode,
	}, http.StatusOK)
}

type recheckRequest struct {
	URL string `json:"url"`
}

// handleRecheck enqueues a background re-check for a previously
// analyzed document.
func (h *Handler) handleRecheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.queue == nil {
		respondError(w, "Background re-checks are not enabled", http.StatusServiceUnavailable)
		return
	}

	var req recheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		respondError(w, "url is required", http.StatusBadRequest)
		return
	}

	entry, err := h.store.Get(r.Context(), req.URL)
	if err != nil {
		h.serverError(w, r, "Failed to look up document", err)
		return
	}
	if entry == nil {
		respondError(w, "Document has not been analyzed yet", http.StatusNotFound)
		return
	}

	taskID, err := h.queue.EnqueueRecheckDocument(r.Context(), entry.DocumentKey, entry.Site)
	if err != nil {
		h.serverError(w, r, "Failed to enqueue re-check", err)
		return
	}

	respondJSON(w, map[string]string{
		"task_id": taskID,
		"status":  "enqueued",
	}, http.StatusAccepted)
}

// handleHistory serves and clears the analysis history.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entries, err := h.store.List(r.Context())
		if err != nil {
			h.serverError(w, r, "Failed to list history", err)
			return
		}
		respondJSON(w, map[string]interface{}{
			"entries": entries,
			"count":   len(entries),
		}, http.StatusOK)

	case http.MethodDelete:
		if err := h.store.Clear(r.Context()); err != nil {
			h.serverError(w, r, "Failed to clear history", err)
			return
		}
		h.metrics.SetHistorySize(0)
		respondJSON(w, map[string]string{"status": "cleared"}, http.StatusOK)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleHistoryStats serves the derived aggregate view.
func (h *Handler) handleHistoryStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.serverError(w, r, "Failed to compute stats", err)
		return
	}
	respondJSON(w, stats, http.StatusOK)
}

func (h *Handler) updateHistoryGauge(ctx context.Context) {
	stats, err := h.store.Stats(ctx)
	if err == nil {
		h.metrics.SetHistorySize(stats.Entries)
	}
}

// localizedSummary picks the requested language variant when available.
func localizedSummary(result *models.AnalysisResult, lang string) string {
	if lang == "hi" && result.SummaryHI != "" {
		return result.SummaryHI
	}
	return result.Summary
}

// displaySite normalizes a document URL to its display hostname.
func displaySite(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// serverError logs the failure with its request context and renders the
// generic error body.
func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, message string, err error) {
	logging.HTTPErrorLogger(h.logger, http.StatusInternalServerError, err, r)
	respondError(w, message, http.StatusInternalServerError)
}

func respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, map[string]string{"error": message}, statusCode)
}
