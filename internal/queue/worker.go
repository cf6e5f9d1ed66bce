package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/clausecheck/clausecheck/internal/history"
	"github.com/clausecheck/clausecheck/internal/metrics"
	"github.com/clausecheck/clausecheck/internal/models"
	"github.com/clausecheck/clausecheck/internal/scanner"
	"github.com/clausecheck/clausecheck/internal/scoring"
)

// Fetcher produces a stabilized snapshot for a document key. The server
// wires this to the content stabilizer.
type Fetcher func(ctx context.Context, documentKey string) models.ExtractedText

// Worker wraps the Asynq server for processing re-check tasks. Rechecks
// always use the deterministic rule scan: the point is detecting text
// change, not re-spending AI budget.
type Worker struct {
	server      *asynq.Server
	mux         *asynq.ServeMux
	store       *history.Store
	scanner     *scanner.Scanner
	queueClient *Client
	fetch       Fetcher
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// WorkerConfig contains configuration for the queue worker
type WorkerConfig struct {
	RedisAddr   string
	Concurrency int
}

// NewWorker creates a new queue worker
func NewWorker(
	cfg WorkerConfig,
	store *history.Store,
	sc *scanner.Scanner,
	queueClient *Client,
	fetch Fetcher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}

	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				"recheck": 5,
			},
		},
	)

	w := &Worker{
		server:      server,
		mux:         asynq.NewServeMux(),
		store:       store,
		scanner:     sc,
		queueClient: queueClient,
		fetch:       fetch,
		metrics:     m,
		logger:      logger,
	}

	w.mux.HandleFunc(TypeRecheckDocument, w.handleRecheckDocument)
	w.mux.HandleFunc(TypeRecheckAll, w.handleRecheckAll)

	return w
}

// Start begins processing tasks. Non-blocking.
func (w *Worker) Start() error {
	return w.server.Start(w.mux)
}

// Shutdown stops the worker gracefully.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

// handleRecheckDocument re-fetches one document, re-scans it, and
// records the result so the history entry's changed flag reflects any
// policy text movement.
func (w *Worker) handleRecheckDocument(ctx context.Context, t *asynq.Task) error {
	var payload RecheckDocumentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal recheck payload: %v: %w", err, asynq.SkipRetry)
	}

	w.logger.Info("re-checking document",
		"document_key", payload.DocumentKey,
		"queue_wait_ms", time.Since(time.Unix(0, payload.EnqueuedAt)).Milliseconds(),
	)

	snapshot := w.fetch(ctx, payload.DocumentKey)
	if snapshot.Content == "" {
		// Page yielded nothing; transient fetch problems deserve a retry.
		w.metrics.CountRecheck("no_content")
		return fmt.Errorf("no content extracted for %s", payload.DocumentKey)
	}

	matches := w.scanner.Scan(snapshot.Content)
	counts := scanner.CountMatches(matches)
	score := scoring.Compute(counts)

	entry, err := w.store.Record(ctx, payload.DocumentKey, payload.Site, score, counts, snapshot.Content)
	if err != nil {
		w.metrics.CountRecheck("store_error")
		return fmt.Errorf("record recheck result: %w", err)
	}

	outcome := "unchanged"
	if entry.Changed {
		outcome = "changed"
	}
	w.metrics.CountRecheck(outcome)

	w.logger.Info("re-check complete",
		"document_key", payload.DocumentKey,
		"score", score.Value,
		"changed", entry.Changed,
	)
	return nil
}

// handleRecheckAll fans a sweep out into one re-check task per history
// entry.
func (w *Worker) handleRecheckAll(ctx context.Context, t *asynq.Task) error {
	entries, err := w.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list history for sweep: %w", err)
	}

	enqueued := 0
	for _, entry := range entries {
		if _, err := w.queueClient.EnqueueRecheckDocument(ctx, entry.DocumentKey, entry.Site); err != nil {
			w.logger.Warn("failed to enqueue re-check",
				"document_key", entry.DocumentKey,
				"error", err,
			)
			continue
		}
		enqueued++
	}

	w.logger.Info("re-check sweep enqueued", "documents", enqueued)
	return nil
}

// NewScheduler returns an asynq scheduler that triggers a full sweep on
// the given cron-style interval (e.g. "@every 12h").
func NewScheduler(redisAddr, interval string, logger *slog.Logger) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(asynq.RedisClientOpt{Addr: redisAddr}, nil)

	payloadBytes, err := json.Marshal(RecheckAllPayload{EnqueuedAt: time.Now().UnixNano()})
	if err != nil {
		return nil, fmt.Errorf("marshal sweep payload: %w", err)
	}

	task := asynq.NewTask(TypeRecheckAll, payloadBytes, asynq.Queue("recheck"))
	if _, err := scheduler.Register(interval, task); err != nil {
		return nil, fmt.Errorf("register sweep schedule: %w", err)
	}

	if logger != nil {
		logger.Info("re-check scheduler configured", "interval", interval)
	}
	return scheduler, nil
}
