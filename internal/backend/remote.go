package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultRequestTimeout bounds one full Analyze/Ask call including
	// retries.
	DefaultRequestTimeout = 12 * time.Second

	// defaultMaxAttempts is the total request budget per call: one
	// initial attempt plus two retries.
	defaultMaxAttempts = 3

	// defaultInitialBackoff is the delay before the first retry;
	// subsequent delays double.
	defaultInitialBackoff = 1 * time.Second
)

// Remote calls a hosted analysis service speaking the JSON protocol
// {legal_text[, question]} -> {summary, critical, concerns, safe,
// answer?} | {error}.
type Remote struct {
	url            string
	client         *http.Client
	timeout        time.Duration
	maxAttempts    uint64
	initialBackoff time.Duration
	logger         *slog.Logger
}

// RemoteOption customizes a Remote client.
type RemoteOption func(*Remote)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) RemoteOption {
	return func(r *Remote) { r.timeout = d }
}

// WithRetryPolicy overrides the attempt budget and initial backoff.
func WithRetryPolicy(maxAttempts int, initial time.Duration) RemoteOption {
	return func(r *Remote) {
		if maxAttempts > 0 {
			r.maxAttempts = uint64(maxAttempts)
		}
		if initial > 0 {
			r.initialBackoff = initial
		}
	}
}

// WithHTTPClient overrides the transport, mainly for tests.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) { r.client = c }
}

// NewRemote creates a client for the service at url.
func NewRemote(url string, logger *slog.Logger, opts ...RemoteOption) *Remote {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Remote{
		url:            url,
		client:         &http.Client{},
		timeout:        DefaultRequestTimeout,
		maxAttempts:    defaultMaxAttempts,
		initialBackoff: defaultInitialBackoff,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type analyzeRequest struct {
	LegalText string `json:"legal_text"`
	Question  string `json:"question,omitempty"`
}

type analyzeResponse struct {
	Summary   string `json:"summary"`
	SummaryHI string `json:"summary_hi,omitempty"`
	Critical  int    `json:"critical"`
	Concerns  int    `json:"concerns"`
	Safe      int    `json:"safe"`
	Answer    string `json:"answer,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Analyze requests a risk report for the text, sending a bounded prefix.
func (r *Remote) Analyze(ctx context.Context, legalText string) (*Report, error) {
	resp, err := r.roundTrip(ctx, analyzeRequest{LegalText: clip(legalText, MaxAnalyzeChars)})
	if err != nil {
		return nil, err
	}
	if resp.Summary == "" {
		return nil, fmt.Errorf("%w: empty summary", ErrMalformed)
	}
	return &Report{
		Summary:   resp.Summary,
		SummaryHI: resp.SummaryHI,
		Critical:  resp.Critical,
		Concerns:  resp.Concerns,
		Safe:      resp.Safe,
	}, nil
}

// Ask requests an answer to a question grounded in the document text.
func (r *Remote) Ask(ctx context.Context, legalText, question string) (string, error) {
	resp, err := r.roundTrip(ctx, analyzeRequest{
		LegalText: clip(legalText, MaxAskContextChars),
		Question:  question,
	})
	if err != nil {
		return "", err
	}
	if resp.Answer == "" {
		return "", fmt.Errorf("%w: empty answer", ErrMalformed)
	}
	return resp.Answer, nil
}

// roundTrip issues the request with bounded retries. Network errors and
// 5xx statuses (notably 503) back off exponentially; other failures are
// permanent. Malformed 2xx bodies are never retried.
func (r *Remote) roundTrip(ctx context.Context, reqBody analyzeRequest) (*analyzeResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(newExponential(r.initialBackoff), r.maxAttempts-1),
		ctx,
	)

	attempt := 0
	var result *analyzeResponse

	operation := func() error {
		attempt++
		resp, err := r.attempt(ctx, payload)
		if err != nil {
			r.logger.Warn("analysis backend attempt failed",
				"attempt", attempt,
				"error", err,
			)
			return err
		}
		result = resp
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		// Context expiry (overall timeout) carries no failure kind yet.
		if !errors.Is(err, ErrUnreachable) && !errors.Is(err, ErrRejected) && !errors.Is(err, ErrMalformed) {
			err = fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		return nil, err
	}
	return result, nil
}

func (r *Remote) attempt(ctx context.Context, payload []byte) (*analyzeResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		// Transport failure: retryable.
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnreachable, err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, backoff.Permanent(fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode))
	}

	var parsed analyzeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	if parsed.Error != "" {
		return nil, backoff.Permanent(fmt.Errorf("%w: %s", ErrMalformed, parsed.Error))
	}
	return &parsed, nil
}

func newExponential(initial time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 30 * time.Second
	return b
}
