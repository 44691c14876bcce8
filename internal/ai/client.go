// Package ai talks to the text-completion service used for image analysis
// and the community chat assistant.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/nest/internal/observability"
)

// ErrDisabled is returned when no completion endpoint is configured.
var ErrDisabled = errors.New("ai endpoint not configured")

// Completer turns a prompt into free text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Client calls an Ollama-compatible /api/generate endpoint.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    observability.MetricsRegistry
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewClient creates a completion client. An empty baseURL yields a client
// whose calls fail with ErrDisabled.
func NewClient(baseURL, model string, timeout time.Duration, logger *zap.Logger, metrics observability.MetricsRegistry) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Client{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    metrics,
	}
}

// Complete sends prompt and returns the generated text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c.baseURL == "" {
		return "", ErrDisabled
	}
	start := time.Now()
	outcome := "success"
	defer func() {
		c.metrics.RecordAILatency(time.Since(start))
		c.metrics.IncrementAIRequests(outcome)
	}()

	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt, Stream: false})
	if err != nil {
		outcome = "failure"
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		outcome = "failure"
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		outcome = "failure"
		return "", fmt.Errorf("http request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		outcome = "failure"
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("http %d: %s", resp.StatusCode, string(msg))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		outcome = "failure"
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.Response, nil
}
