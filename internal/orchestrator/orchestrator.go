// Package orchestrator runs the two-tier analysis strategy: AI backend
// first, deterministic rule scan on any failure. It owns the AI/fallback
// mode decision and normalizes both paths into one result shape.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/clausecheck/clausecheck/internal/backend"
	"github.com/clausecheck/clausecheck/internal/metrics"
	"github.com/clausecheck/clausecheck/internal/models"
	"github.com/clausecheck/clausecheck/internal/scanner"
	"github.com/clausecheck/clausecheck/pkg/tracing"
)

// Orchestrator coordinates backend calls and the rule-scan fallback.
type Orchestrator struct {
	backend backend.Backend // nil when no AI backend is configured
	scanner *scanner.Scanner
	metrics *metrics.Metrics
	logger  *slog.Logger
	group   singleflight.Group
}

// New creates an orchestrator. ai may be nil, which forces fallback
// mode for every analysis.
func New(ai backend.Backend, sc *scanner.Scanner, m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		backend: ai,
		scanner: sc,
		metrics: m,
		logger:  logger,
	}
}

// session carries the state of one analysis lifecycle. It is created at
// request start and discarded when the result is produced; nothing
// about an in-flight analysis lives at package level.
type session struct {
	key      string
	snapshot models.ExtractedText
}

// Analyze obtains an AnalysisResult for the snapshot. Calls are
// single-flight per document key: concurrent callers for the same key
// share one in-flight analysis instead of duplicating backend traffic.
// Analyze never fails; every path terminates in a renderable result.
func (o *Orchestrator) Analyze(ctx context.Context, key string, snapshot models.ExtractedText) *models.AnalysisResult {
	v, _, _ := o.group.Do(key, func() (interface{}, error) {
		s := &session{key: key, snapshot: snapshot}
		return o.run(ctx, s), nil
	})
	return v.(*models.AnalysisResult)
}

func (o *Orchestrator) run(ctx context.Context, s *session) *models.AnalysisResult {
	ctx, span := tracing.StartSpan(ctx, "clausecheck/orchestrator", "analyze")
	defer span.End()

	if o.backend != nil {
		start := time.Now()
		report, err := o.backend.Analyze(ctx, s.snapshot.Content)
		o.metrics.ObserveBackend(start)

		if err == nil {
			o.metrics.CountAnalysis(string(models.ModeAI))
			o.logger.Info("analysis complete",
				"mode", string(models.ModeAI),
				"key", s.key,
				"critical", report.Critical,
				"concerns", report.Concerns,
				"safe", report.Safe,
			)
			return &models.AnalysisResult{
				Summary:   report.Summary,
				SummaryHI: report.SummaryHI,
				Mode:      models.ModeAI,
				Counts: models.Counts{
					Critical: report.Critical,
					Concern:  report.Concerns,
					Safe:     report.Safe,
				},
				CreatedAt: time.Now(),
			}
		}

		cause := fallbackCause(err)
		o.metrics.CountFallback(cause)
		o.logger.Warn("AI backend failed, switching to rule-based fallback",
			"key", s.key,
			"cause", cause,
			"error", err,
		)
	}

	return o.fallback(s)
}

// fallback runs the rule scan on the full (non-truncated-for-upstream)
// snapshot and derives the canned summary.
func (o *Orchestrator) fallback(s *session) *models.AnalysisResult {
	matches := o.scanner.Scan(s.snapshot.Content)
	summaryEN, summaryHI := scanner.BuildSummary(matches)

	o.metrics.CountAnalysis(string(models.ModeFallback))
	counts := scanner.CountMatches(matches)
	o.logger.Info("analysis complete",
		"mode", string(models.ModeFallback),
		"key", s.key,
		"critical", counts.Critical,
		"concerns", counts.Concern,
		"safe", counts.Safe,
	)

	return &models.AnalysisResult{
		Summary:   summaryEN,
		SummaryHI: summaryHI,
		Mode:      models.ModeFallback,
		Matches:   matches,
		Counts:    counts,
		CreatedAt: time.Now(),
	}
}

// Canned replies for questions the rule-based path cannot ground.
const (
	noAnswerEN = "No directly related clause was found. Deeper AI analysis would be required."
	noAnswerHI = "इस प्रश्न के लिए नियम-आधारित विश्लेषण में कुछ नहीं मिला।"
)

// Ask answers a question about the document: AI backend first, matched
// clause explanations otherwise. Like Analyze it always produces a
// usable reply.
func (o *Orchestrator) Ask(ctx context.Context, legalText, question, lang string) (answer string, mode models.AnalysisMode) {
	ctx, span := tracing.StartSpan(ctx, "clausecheck/orchestrator", "ask")
	defer span.End()

	if o.backend != nil {
		start := time.Now()
		reply, err := o.backend.Ask(ctx, legalText, question)
		o.metrics.ObserveBackend(start)
		if err == nil {
			return reply, models.ModeAI
		}
		o.logger.Warn("AI backend failed answering question",
			"cause", fallbackCause(err),
			"error", err,
		)
	}

	matches := o.scanner.Scan(legalText)
	if reply, ok := scanner.Answer(question, lang, matches); ok {
		return reply, models.ModeFallback
	}
	if lang == "hi" {
		return noAnswerHI, models.ModeFallback
	}
	return noAnswerEN, models.ModeFallback
}

func fallbackCause(err error) string {
	switch {
	case errors.Is(err, backend.ErrMalformed):
		return "malformed"
	case errors.Is(err, backend.ErrRejected):
		return "rejected"
	case errors.Is(err, backend.ErrUnreachable):
		return "unreachable"
	default:
		return "unknown"
	}
}
