package models

import "time"

// Category classifies a clause rule by severity.
type Category string

const (
	CategoryCritical Category = "critical"
	CategoryConcern  Category = "concern"
	CategorySafe     Category = "safe"
)

// Categories lists all categories in severity order, highest first. Scan
// evaluation and cross-category dedup both follow this order.
var Categories = []Category{CategoryCritical, CategoryConcern, CategorySafe}

// ClauseRule is one pattern-to-category entry from the rule library.
type ClauseRule struct {
	ID            string   `json:"id"`
	Patterns      []string `json:"patterns"`
	ExplanationEN string   `json:"explanation_en"`
	ExplanationHI string   `json:"explanation_hi,omitempty"`
}

// Explanation returns the localized explanation for a language code,
// falling back to English when no variant exists.
func (r ClauseRule) Explanation(lang string) string {
	if lang == "hi" && r.ExplanationHI != "" {
		return r.ExplanationHI
	}
	return r.ExplanationEN
}

// ExtractedText is one stabilized snapshot of visible document text.
type ExtractedText struct {
	Content    string    `json:"content"`
	Truncated  bool      `json:"truncated"`
	CapturedAt time.Time `json:"captured_at"`
}

// AnalysisMode identifies which analysis path produced a result.
type AnalysisMode string

const (
	ModeAI       AnalysisMode = "ai"
	ModeFallback AnalysisMode = "fallback"
)

// Counts holds the per-category match totals of one analysis.
type Counts struct {
	Critical int `json:"critical"`
	Concern  int `json:"concern"`
	Safe     int `json:"safe"`
}

// Total returns the number of matched rules across all categories.
func (c Counts) Total() int {
	return c.Critical + c.Concern + c.Safe
}

// AnalysisResult is the normalized output of either analysis path.
// It is immutable once produced; re-analysis builds a fresh instance.
type AnalysisResult struct {
	Summary   string                    `json:"summary"`
	SummaryHI string                    `json:"summary_hi,omitempty"`
	Mode      AnalysisMode              `json:"mode"`
	Matches   map[Category][]ClauseRule `json:"matches,omitempty"`
	Counts    Counts                    `json:"counts"`
	CreatedAt time.Time                 `json:"created_at"`
}

// Rating is the qualitative band derived from a safety score.
type Rating string

const (
	RatingSafe     Rating = "Safe"
	RatingModerate Rating = "Moderate"
	RatingHighRisk Rating = "High Risk"
)

// Score is the numeric safety assessment derived from match counts.
type Score struct {
	Value  int    `json:"value"`
	Rating Rating `json:"rating"`
}

// HistoryEntry is one persisted record of an analyzed document. At most
// one entry exists per document key; re-analysis replaces it in place.
type HistoryEntry struct {
	DocumentKey string    `json:"url"`
	Site        string    `json:"site"`
	Score       Score     `json:"score"`
	Counts      Counts    `json:"counts"`
	ContentHash string    `json:"hash"`
	Timestamp   time.Time `json:"timestamp"`
	Changed     bool      `json:"changed"`
}

// HistoryStats are derived views over the current history list. They are
// computed on read and never persisted.
type HistoryStats struct {
	Entries      int `json:"entries"`
	AverageScore int `json:"average_score"`
	ChangedCount int `json:"changed_count"`
}
