// Package llm provides a provider-agnostic chat completion client with retry
// and fallback. Endpoints are selected by capability through model.Registry.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/kbqa/model"
)

// maxResponseSize limits the LLM response body.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Completer is satisfied by Client and by test doubles.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Observer is notified after every completion, successful or not.
type Observer interface {
	ObserveCompletion(capability model.Capability, modelName string, elapsed time.Duration, err error)
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // Message content
}

// Request defines a completion request.
type Request struct {
	// Capability selects the endpoint chain.
	Capability model.Capability

	// Messages is the chat history to send.
	Messages []Message

	// Temperature controls randomness. nil uses the capability setting.
	Temperature *float64

	// MaxTokens limits response length. 0 uses the capability setting.
	MaxTokens int
}

// TokenUsage represents token consumption of one call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response contains the completion result.
type Response struct {
	// RequestID identifies this call in logs.
	RequestID string

	// Content is the generated text.
	Content string

	// Model is the model that answered.
	Model string

	// Usage contains token consumption.
	Usage TokenUsage

	// FinishReason indicates why generation stopped.
	FinishReason string
}

// Client is a provider-agnostic LLM client with retry and fallback support.
type Client struct {
	registry    *model.Registry
	httpClient  *http.Client
	retryConfig RetryConfig
	observer    Observer
	logger      *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) {
		client.retryConfig = cfg
	}
}

// WithObserver sets the completion observer.
func WithObserver(o Observer) ClientOption {
	return func(client *Client) {
		client.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient creates a new LLM client with the given model registry.
func NewClient(registry *model.Registry, opts ...ClientOption) *Client {
	c := &Client{
		registry:    registry,
		retryConfig: DefaultRetryConfig(),
		httpClient: &http.Client{
			Timeout: 180 * time.Second, // local CPU inference is slow
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Complete sends a completion request down the capability's fallback chain.
// Each endpoint is retried on transient errors; a fatal error stops the chain.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Capability == "" {
		return nil, NewFatalError(fmt.Errorf("capability is required"))
	}
	if len(req.Messages) == 0 {
		return nil, NewFatalError(fmt.Errorf("at least one message is required"))
	}

	if capCfg := c.registry.GetCapability(req.Capability); capCfg != nil {
		if req.Temperature == nil {
			req.Temperature = capCfg.Temperature
		}
		if req.MaxTokens == 0 {
			req.MaxTokens = capCfg.MaxTokens
		}
	}

	requestID := uuid.New().String()
	start := time.Now()

	var lastErr error
	tried := 0
	for _, modelName := range c.registry.GetAvailableFallbackChain(req.Capability) {
		endpoint := c.registry.GetEndpoint(modelName)
		if endpoint == nil {
			c.logger.Debug("No endpoint for model, skipping", "model", modelName)
			continue
		}
		tried++

		resp, err := c.tryEndpoint(ctx, endpoint, modelName, req)
		if err == nil {
			resp.RequestID = requestID
			c.observe(req.Capability, modelName, start, nil)
			c.logger.Debug("LLM call completed",
				"request_id", requestID,
				"capability", req.Capability,
				"model", resp.Model,
				"tokens", resp.Usage.TotalTokens,
				"duration", time.Since(start))
			return resp, nil
		}

		lastErr = err
		if IsFatal(err) || ctx.Err() != nil {
			c.observe(req.Capability, modelName, start, err)
			return nil, err
		}
		c.logger.Warn("Endpoint failed, trying fallback",
			"model", modelName,
			"provider", endpoint.Provider,
			"error", err)
	}

	if tried == 0 {
		err := fmt.Errorf("capability %s: %w", req.Capability, ErrNoEndpoint)
		c.observe(req.Capability, "", start, err)
		return nil, NewFatalError(err)
	}

	err := fmt.Errorf("all endpoints failed for capability %s: %w", req.Capability, lastErr)
	c.observe(req.Capability, "", start, err)
	return nil, err
}

func (c *Client) observe(cap model.Capability, modelName string, start time.Time, err error) {
	if c.observer != nil {
		c.observer.ObserveCompletion(cap, modelName, time.Since(start), err)
	}
}

// tryEndpoint attempts a request with retry and updates endpoint health.
func (c *Client) tryEndpoint(ctx context.Context, ep *model.EndpointConfig, modelName string, req Request) (*Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.retryConfig.MaxAttempts; attempt++ {
		resp, err := c.doRequest(ctx, ep, req)
		if err == nil {
			c.registry.MarkEndpointSuccess(modelName)
			return resp, nil
		}
		lastErr = err

		// Auth and request errors say nothing about endpoint health.
		if IsFatal(err) {
			return nil, err
		}

		if attempt < c.retryConfig.MaxAttempts {
			backoff := c.retryConfig.backoff(attempt)
			c.logger.Debug("Request failed, retrying",
				"attempt", attempt,
				"max_attempts", c.retryConfig.MaxAttempts,
				"backoff", backoff,
				"error", err)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	c.registry.MarkEndpointFailure(modelName)
	return nil, lastErr
}

// doRequest executes a single HTTP request to the endpoint.
func (c *Client) doRequest(ctx context.Context, ep *model.EndpointConfig, req Request) (*Response, error) {
	provider := GetProvider(ep.Provider)
	if provider == nil {
		return nil, NewFatalError(fmt.Errorf("unknown provider: %s", ep.Provider))
	}

	url := provider.BuildURL(ep.URL)
	body, err := provider.BuildRequestBody(ep.Model, req.Messages, req.Temperature, req.MaxTokens)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	c.logger.Debug("Sending LLM request",
		"provider", ep.Provider,
		"model", ep.Model,
		"url", url,
		"messages", len(req.Messages))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	return provider.ParseResponse(respBody, ep.Model)
}
