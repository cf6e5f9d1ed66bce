// Package scoring derives a numeric safety score and rating band from
// clause match counts. The score is a pure function of the counts: a
// penalty model starting at 100 with fixed per-match deductions.
package scoring

import "github.com/clausecheck/clausecheck/internal/models"

const (
	// CriticalPenalty is deducted per matched critical clause.
	CriticalPenalty = 20
	// ConcernPenalty is deducted per matched concern clause.
	ConcernPenalty = 8
)

// Rating band thresholds. Values above SafeThreshold rate Safe, values
// above ModerateThreshold rate Moderate, everything else High Risk.
const (
	SafeThreshold     = 80
	ModerateThreshold = 50
)

// Compute returns the safety score for the given match counts. Negative
// inputs are treated as zero and the value is clamped to [0, 100].
func Compute(counts models.Counts) models.Score {
	critical := max(counts.Critical, 0)
	concern := max(counts.Concern, 0)

	value := 100 - critical*CriticalPenalty - concern*ConcernPenalty
	if value < 0 {
		value = 0
	}
	if value > 100 {
		value = 100
	}

	return models.Score{Value: value, Rating: RatingFor(value)}
}

// RatingFor maps a score value to its rating band. The bands are
// monotonic and exhaustive over [0, 100].
func RatingFor(value int) models.Rating {
	switch {
	case value > SafeThreshold:
		return models.RatingSafe
	case value > ModerateThreshold:
		return models.RatingModerate
	default:
		return models.RatingHighRisk
	}
}
