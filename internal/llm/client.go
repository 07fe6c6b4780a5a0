// Package llm wraps the external inference gateway behind a typed
// request/response contract with per-call timeouts and bounded retries.
package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"autoapply/internal/utils"
)

const (
	defaultMaxAttempts = 3
	defaultTimeout     = 60 * time.Second
	defaultBackoff     = 2 * time.Second
)

// Request is the typed prompt sent to a backend.
type Request struct {
	// System sets the role/context instructions.
	System string
	// Prompt is the user-visible content.
	Prompt string
	// SchemaHint, when set, asks the backend for constrained JSON output
	// matching the described shape.
	SchemaHint string
}

// Backend is a single-shot content generator. Implementations classify
// their failures with the error types of this package.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
	Model() string
}

// Client retries a backend on transient failures with doubling backoff.
// Non-transient failures (auth, parse, validation) return immediately.
type Client struct {
	backend     Backend
	maxAttempts int
	timeout     time.Duration
	backoff     time.Duration
	logger      *zap.Logger
}

// wait is stubbed in tests to avoid real backoff sleeps.
var wait = utils.WaitFor

func NewClient(backend Backend, maxAttempts int, timeout time.Duration, logger *zap.Logger) *Client {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		backend:     backend,
		maxAttempts: maxAttempts,
		timeout:     timeout,
		backoff:     defaultBackoff,
		logger:      logger,
	}
}

// Generate performs one logical gateway call, retrying transient failures
// up to the attempt cap. Each attempt is bounded by the per-call timeout.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		output, err := c.backend.Generate(attemptCtx, req)
		cancel()

		if err == nil {
			return output, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return "", err
		}

		if attempt == c.maxAttempts {
			break
		}

		backoff := c.backoff << (attempt - 1)
		c.logger.Warn("llm call failed, retrying",
			zap.String("model", c.backend.Model()),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		if err := wait(ctx, backoff); err != nil {
			return "", fmt.Errorf("llm retry interrupted: %w", err)
		}
	}

	return "", fmt.Errorf("llm call failed after %d attempts: %w", c.maxAttempts, lastErr)
}

// Model returns the backend's model identifier.
func (c *Client) Model() string {
	return c.backend.Model()
}
