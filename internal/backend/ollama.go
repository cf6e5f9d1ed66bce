package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const (
	// DefaultOllamaModel is used when no model is configured.
	DefaultOllamaModel = "gpt-oss:20b"

	// DefaultOllamaTimeout bounds one local generation. Local models are
	// slower than a hosted endpoint, so this is looser than the remote
	// request timeout.
	DefaultOllamaTimeout = 120 * time.Second
)

// Ollama analyzes legal text with a locally-run LLM, letting the service
// operate without a hosted analysis endpoint.
type Ollama struct {
	client  *api.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewOllama creates an Ollama-backed analyzer.
func NewOllama(ollamaURL, model string, logger *slog.Logger) (*Ollama, error) {
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	if logger == nil {
		logger = slog.Default()
	}

	baseURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}

	return &Ollama{
		client:  api.NewClient(baseURL, http.DefaultClient),
		model:   model,
		timeout: DefaultOllamaTimeout,
		logger:  logger,
	}, nil
}

const analyzePrompt = `Analyze the following terms-of-service or privacy policy text.

Return ONLY a valid JSON object, nothing else:
{
  "summary": "short human readable summary of the key risks",
  "critical": <number of critical clauses>,
  "concerns": <number of concerning clauses>,
  "safe": <number of user-friendly clauses>
}

Text:
%s`

// Analyze prompts the model for a strict-JSON risk report.
func (o *Ollama) Analyze(ctx context.Context, legalText string) (*Report, error) {
	response, err := o.generate(ctx, fmt.Sprintf(analyzePrompt, clip(legalText, MaxAnalyzeChars)))
	if err != nil {
		return nil, err
	}

	var report Report
	// Models wrap JSON in prose or code fences; take the outermost
	// object.
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in model output", ErrMalformed)
	}
	if err := json.Unmarshal([]byte(response[start:end+1]), &report); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if report.Summary == "" {
		return nil, fmt.Errorf("%w: empty summary", ErrMalformed)
	}
	return &report, nil
}

// Ask answers a question grounded in the document text.
func (o *Ollama) Ask(ctx context.Context, legalText, question string) (string, error) {
	prompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s\nAnswer clearly in two or three sentences.",
		clip(legalText, MaxAskContextChars), question)

	answer, err := o.generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return "", fmt.Errorf("%w: empty answer", ErrMalformed)
	}
	return answer, nil
}

func (o *Ollama) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	o.logger.Debug("sending prompt to local model", "model", o.model, "prompt_chars", len(prompt))

	req := &api.GenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: new(bool), // false
	}

	var response strings.Builder
	err := o.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		response.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return strings.TrimSpace(response.String()), nil
}
