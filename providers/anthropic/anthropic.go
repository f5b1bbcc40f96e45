// Package anthropic implements the decomposer Provider interface for the
// Anthropic messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zoobzio/capitan"

	decomposer "github.com/VVISHUS/AI-Decomposer-DND-TODO-App"
)

const (
	apiVersion       = "2023-06-01"
	maxResponseBytes = 10 * 1024 * 1024
)

// Provider implements decomposer.Provider for the Anthropic API.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
	name       string
}

// Config holds configuration for the Anthropic provider.
type Config struct {
	APIKey    string
	Model     string        // e.g. "claude-3-opus-20240229", "claude-sonnet-4-20250514"
	BaseURL   string        // Optional, defaults to "https://api.anthropic.com"
	MaxTokens int           // Optional, defaults to 4096
	Timeout   time.Duration // Optional, defaults to 60s
}

// New creates a new Anthropic provider.
func New(config Config) *Provider {
	if config.Model == "" {
		config.Model = "claude-3-opus-20240229"
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.anthropic.com"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 4096
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &Provider{
		apiKey:    config.APIKey,
		model:     config.Model,
		baseURL:   config.BaseURL,
		maxTokens: config.MaxTokens,
		name:      "anthropic",
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Call sends the system instruction and query to Anthropic and returns the
// first text block of the reply.
func (p *Provider) Call(ctx context.Context, system, query string, temperature float32) (string, error) {
	if p.apiKey == "" {
		err := decomposer.NewProviderError(p.name, decomposer.MissingCredential, "ANTHROPIC_API_KEY environment variable not set")
		p.failed(ctx, err, 0)
		return "", err
	}

	startTime := time.Now()

	capitan.Info(ctx, decomposer.ProviderCallStarted,
		decomposer.ProviderKey.Field(p.name),
		decomposer.ModelKey.Field(p.model),
	)

	// Anthropic caps temperature at 1.
	if temperature > 1 {
		temperature = 1
	}

	requestBody := messagesRequest{
		Model:       p.model,
		Messages:    []message{{Role: "user", Content: query}},
		MaxTokens:   p.maxTokens,
		Temperature: temperature,
		System:      system,
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		perr := decomposer.TransportError(ctx, p.name, err)
		p.failed(ctx, perr, time.Since(startTime))
		return "", perr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		perr := decomposer.TransportError(ctx, p.name, err)
		p.failed(ctx, perr, time.Since(startTime))
		return "", perr
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		perr := decomposer.NewProviderError(p.name, decomposer.UpstreamRejected, "status %d", resp.StatusCode)
		var errorResp errorResponse
		if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
			perr.Detail = fmt.Sprintf("status %d: %s: %s", resp.StatusCode, errorResp.Error.Type, errorResp.Error.Message)
		}
		perr.StatusCode = resp.StatusCode
		p.failed(ctx, perr, time.Since(startTime))
		return "", perr
	}

	var messagesResp messagesResponse
	if err := json.Unmarshal(body, &messagesResp); err != nil {
		perr := decomposer.NewProviderError(p.name, decomposer.UpstreamMalformedEnvelope, "failed to parse response: %v", err)
		p.failed(ctx, perr, time.Since(startTime))
		return "", perr
	}

	var content *string
	for _, block := range messagesResp.Content {
		if block.Type == "text" {
			text := block.Text
			content = &text
			break
		}
	}
	if content == nil {
		perr := decomposer.NewProviderError(p.name, decomposer.UpstreamMalformedEnvelope, "no text content in response")
		p.failed(ctx, perr, time.Since(startTime))
		return "", perr
	}

	fields := []capitan.Field{
		decomposer.ProviderKey.Field(p.name),
		decomposer.ModelKey.Field(messagesResp.Model),
		decomposer.PromptTokensKey.Field(messagesResp.Usage.InputTokens),
		decomposer.CompletionTokensKey.Field(messagesResp.Usage.OutputTokens),
		decomposer.DurationMsKey.Field(int(time.Since(startTime).Milliseconds())),
		decomposer.HTTPStatusCodeKey.Field(resp.StatusCode),
	}
	if messagesResp.StopReason != "" {
		fields = append(fields, decomposer.FinishReasonKey.Field(messagesResp.StopReason))
	}
	capitan.Info(ctx, decomposer.ProviderCallCompleted, fields...)

	return *content, nil
}

// failed emits the provider.call.failed hook.
func (p *Provider) failed(ctx context.Context, err *decomposer.ProviderError, duration time.Duration) {
	capitan.Error(ctx, decomposer.ProviderCallFailed,
		decomposer.ProviderKey.Field(p.name),
		decomposer.ModelKey.Field(p.model),
		decomposer.HTTPStatusCodeKey.Field(err.StatusCode),
		decomposer.DurationMsKey.Field(int(duration.Milliseconds())),
		decomposer.ErrorKindKey.Field(string(err.Kind)),
		decomposer.ErrorKey.Field(err.Detail),
	)
}

// Request/Response types for Anthropic API

type messagesRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float32   `json:"temperature"`
	System      string    `json:"system,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      usage          `json:"usage"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type errorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
