package extract

import (
	"context"
	"log/slog"
	"time"

	"github.com/clausecheck/clausecheck/internal/models"
)

// Service fetches and stabilizes document snapshots, preferring the
// browser-rendered source when a browser is available.
type Service struct {
	browser *Browser // nil when headless rendering is disabled
	opts    Options
	logger  *slog.Logger
}

// NewService creates a snapshot service. browser may be nil.
func NewService(browser *Browser, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{browser: browser, opts: opts, logger: logger}
}

// Fetch produces a stabilized snapshot for a URL. It never fails: any
// breakdown degrades to an empty snapshot, which callers must treat as
// valid, low-quality input.
func (s *Service) Fetch(ctx context.Context, url string) models.ExtractedText {
	start := time.Now()
	defer func() {
		s.logger.Debug("snapshot fetched", "url", url, "duration_ms", time.Since(start).Milliseconds())
	}()

	if s.browser != nil {
		page, err := s.browser.Open(ctx, url)
		if err == nil {
			defer page.Close()
			return Stabilize(ctx, page, s.opts)
		}
		s.logger.Warn("browser source failed, falling back to static fetch",
			"url", url, "error", err)
	}

	return Stabilize(ctx, NewStaticSource(url), s.opts)
}

// Wrap applies snapshot semantics (cap, timestamp) to text the caller
// already has in hand.
func (s *Service) Wrap(text string) models.ExtractedText {
	content, truncated, _ := TextSource(text).Snapshot(context.Background())
	return models.ExtractedText{
		Content:    content,
		Truncated:  truncated,
		CapturedAt: time.Now(),
	}
}
