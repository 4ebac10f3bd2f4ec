package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Config contains settings for the HTTP model client.
type Config struct {
	// Endpoint is the API base URL.
	Endpoint string

	// APIKey for authentication.
	APIKey string

	// Timeout for API calls.
	Timeout time.Duration
}

// DefaultConfig returns sensible client defaults.
func DefaultConfig() *Config {
	return &Config{
		Endpoint: "https://api.anthropic.com",
		Timeout:  120 * time.Second,
	}
}

// AnthropicClient implements Client against the Anthropic messages API.
type AnthropicClient struct {
	config *Config
	client *http.Client
}

// NewAnthropicClient creates a new messages API client.
func NewAnthropicClient(cfg *Config) *AnthropicClient {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.anthropic.com"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &AnthropicClient{
		config: cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Complete sends one messages request and returns the parsed response.
func (c *AnthropicClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	if c.config.APIKey == "" {
		return nil, fmt.Errorf("model API key not configured")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.config.Endpoint+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.config.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := readLimitedBody(resp.Body, MaxErrorBodySize)
		return nil, fmt.Errorf("model error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var parsed Response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &parsed, nil
}
