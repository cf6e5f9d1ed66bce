// Package backend abstracts the AI analysis service the orchestrator
// prefers over the rule-based fallback: either a remote hosted endpoint
// or a locally-run LLM.
package backend

import (
	"context"
	"errors"
	"unicode/utf8"
)

// Report is the backend's verdict on a legal document.
type Report struct {
	Summary   string `json:"summary"`
	SummaryHI string `json:"summary_hi,omitempty"`
	Critical  int    `json:"critical"`
	Concerns  int    `json:"concerns"`
	Safe      int    `json:"safe"`
}

// Backend analyzes legal text and answers questions about it.
type Backend interface {
	// Analyze produces a risk report for the text. Implementations
	// bound their own latency; failures are classified by the error
	// kinds below.
	Analyze(ctx context.Context, legalText string) (*Report, error)

	// Ask answers a free-form question grounded in the text.
	Ask(ctx context.Context, legalText, question string) (string, error)
}

// Failure kinds. All of them converge on the same caller behavior
// (fall back to the rule scan) but are surfaced distinctly for logging
// and metrics.
var (
	// ErrUnreachable wraps network/connection failures and timeouts.
	ErrUnreachable = errors.New("analysis backend unreachable")
	// ErrRejected wraps non-2xx statuses that survived retrying.
	ErrRejected = errors.New("analysis backend rejected request")
	// ErrMalformed wraps 2xx responses whose body does not parse as the
	// expected schema, including explicit {error} envelopes. Never
	// retried: the same request would yield the same body.
	ErrMalformed = errors.New("analysis backend returned malformed response")
)

// MaxAnalyzeChars bounds the text prefix sent to a backend. The full
// snapshot stays available locally for the fallback scan.
const MaxAnalyzeChars = 10000

// MaxAskContextChars bounds the document context sent with a question.
const MaxAskContextChars = 6000

// clip cuts s to at most n bytes, backing off to a rune boundary so a
// multi-byte character is never split at the cap.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
