// Package scanner implements the deterministic rule-matching fallback:
// offline classification of clause patterns in legal text, plus the
// canned-summary and rule-grounded Q&A built on top of the matches.
package scanner

import (
	"strings"

	"github.com/clausecheck/clausecheck/internal/models"
	"github.com/clausecheck/clausecheck/internal/rules"
)

// Scanner matches clause rules against document text. It is stateless;
// the library snapshot is taken per call from the rule store.
type Scanner struct {
	store *rules.Store
}

// New creates a Scanner over a rule store.
func New(store *rules.Store) *Scanner {
	return &Scanner{store: store}
}

// Scan classifies the text against the current rule library. Categories
// are evaluated in severity order and a rule id counts in at most one
// category, the highest-severity one it was declared under. Output is a
// pure function of (text, library): repeated calls yield identical
// results.
func (s *Scanner) Scan(text string) map[models.Category][]models.ClauseRule {
	return ScanLibrary(text, s.store.Current())
}

// ScanLibrary runs the scan against an explicit library snapshot.
func ScanLibrary(text string, lib *rules.Library) map[models.Category][]models.ClauseRule {
	normalized := strings.ToLower(text)

	matched := make(map[string]bool)
	result := make(map[models.Category][]models.ClauseRule, len(models.Categories))

	for _, cat := range models.Categories {
		found := []models.ClauseRule{}
		for _, rule := range lib.Rules(cat) {
			if matched[rule.ID] {
				continue
			}
			if rule.MatchesText(normalized) {
				matched[rule.ID] = true
				found = append(found, rule.ClauseRule)
			}
		}
		result[cat] = found
	}

	return result
}

// CountMatches derives per-category totals from a scan result.
func CountMatches(matches map[models.Category][]models.ClauseRule) models.Counts {
	return models.Counts{
		Critical: len(matches[models.CategoryCritical]),
		Concern:  len(matches[models.CategoryConcern]),
		Safe:     len(matches[models.CategorySafe]),
	}
}
