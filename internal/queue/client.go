package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Client wraps the Asynq client for enqueueing re-check tasks.
type Client struct {
	client *asynq.Client
}

// ClientConfig contains configuration for the queue client
type ClientConfig struct {
	RedisAddr string
}

// NewClient creates a new queue client
func NewClient(cfg ClientConfig) *Client {
	redisOpt := asynq.RedisClientOpt{
		Addr: cfg.RedisAddr,
	}

	return &Client{
		client: asynq.NewClient(redisOpt),
	}
}

// EnqueueRecheckDocument enqueues a re-check for one document. The task
// id is the document key, so an already-pending re-check for the same
// document is not duplicated.
func (c *Client) EnqueueRecheckDocument(ctx context.Context, documentKey, site string) (string, error) {
	payload := RecheckDocumentPayload{
		DocumentKey: documentKey,
		Site:        site,
		EnqueuedAt:  time.Now().UnixNano(),
	}

	// Add tracing context if available
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		spanCtx := span.SpanContext()
		payload.TraceID = spanCtx.TraceID().String()
		payload.SpanID = spanCtx.SpanID().String()

		span.AddEvent("task_enqueued", trace.WithAttributes(
			attribute.String("task.type", TypeRecheckDocument),
			attribute.String("document_key", documentKey),
		))
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task payload: %w", err)
	}

	task := asynq.NewTask(TypeRecheckDocument, payloadBytes, asynq.TaskID(documentKey))

	opts := []asynq.Option{
		asynq.MaxRetry(3),
		asynq.Timeout(2 * time.Minute),
		asynq.Queue("recheck"),
		asynq.Retention(24 * time.Hour),
	}

	info, err := c.client.Enqueue(task, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue recheck task: %w", err)
	}

	return info.ID, nil
}

// EnqueueRecheckAll enqueues a sweep over every history entry.
func (c *Client) EnqueueRecheckAll(ctx context.Context) (string, error) {
	payloadBytes, err := json.Marshal(RecheckAllPayload{EnqueuedAt: time.Now().UnixNano()})
	if err != nil {
		return "", fmt.Errorf("failed to marshal task payload: %w", err)
	}

	task := asynq.NewTask(TypeRecheckAll, payloadBytes)

	opts := []asynq.Option{
		asynq.MaxRetry(1),
		asynq.Timeout(time.Minute),
		asynq.Queue("recheck"),
	}

	info, err := c.client.Enqueue(task, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue recheck sweep: %w", err)
	}

	return info.ID, nil
}

// Close closes the underlying asynq client.
func (c *Client) Close() error {
	return c.client.Close()
}
