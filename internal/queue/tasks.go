// Package queue runs background policy re-checks over asynq: previously
// analyzed documents are re-fetched, re-scanned, and re-recorded so the
// history's changed flag tracks policy updates without user action.
package queue

// Task type constants
const (
	TypeRecheckDocument = "clausecheck:recheck_document"
	TypeRecheckAll      = "clausecheck:recheck_all"
)

// RecheckDocumentPayload identifies one document to re-analyze.
type RecheckDocumentPayload struct {
	DocumentKey string `json:"document_key"`
	Site        string `json:"site"`
	// Tracing and timing fields
	TraceID    string `json:"trace_id,omitempty"`
	SpanID     string `json:"span_id,omitempty"`
	EnqueuedAt int64  `json:"enqueued_at"` // Unix timestamp in nanoseconds
}

// RecheckAllPayload triggers a sweep over the whole history list.
type RecheckAllPayload struct {
	EnqueuedAt int64 `json:"enqueued_at"`
}
