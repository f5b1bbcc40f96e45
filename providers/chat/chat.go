// Package chat implements the decomposer Provider interface for any hosted
// OpenAI-compatible chat-completion endpoint serving open-weight models.
package chat

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

// DefaultEndpoint is the chat-completion URL used when none is configured.
const DefaultEndpoint = "https://api.together.xyz/v1/chat/completions"

const maxResponseBytes = 10 * 1024 * 1024

// Provider posts {model, messages, temperature} to a chat-completion endpoint.
// The upstream model id comes from the registry entry, not from the provider.
type Provider struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
	name       string
}

// Config holds configuration for the chat provider.
type Config struct {
	APIKey   string        // Optional; sent as a bearer token when set
	Model    string        // Upstream model id, e.g. "deepseek-ai/DeepSeek-V3"
	Endpoint string        // Full chat-completion URL
	Timeout  time.Duration // Optional, defaults to 120s
}

// New creates a new chat provider.
func New(config Config) *Provider {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}

	return &Provider{
		apiKey:   config.APIKey,
		model:    config.Model,
		endpoint: config.Endpoint,
		name:     "chat",
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Call posts the system instruction and query and returns
// choices[0].message.content.
func (p *Provider) Call(ctx context.Context, system, query string, temperature float32) (string, error) {
	startTime := time.Now()

	capitan.Info(ctx, decomposer.ProviderCallStarted,
		decomposer.ProviderKey.Field(p.name),
		decomposer.ModelKey.Field(p.model),
	)

	jsonBody, err := json.Marshal(request{
		Model: p.model,
		Messages: []message{
			{Role: "system", Content: system},
			{Role: "user", Content: query},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

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
		perr := decomposer.NewProviderError(p.name, decomposer.UpstreamRejected, "status %d: %s", resp.StatusCode, truncate(string(body), 512))
		perr.StatusCode = resp.StatusCode
		p.failed(ctx, perr, time.Since(startTime))
		return "", perr
	}

	var completion response
	if err := json.Unmarshal(body, &completion); err != nil {
		perr := decomposer.NewProviderError(p.name, decomposer.UpstreamMalformedEnvelope, "failed to parse response: %v", err)
		p.failed(ctx, perr, time.Since(startTime))
		return "", perr
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message == nil || completion.Choices[0].Message.Content == nil {
		perr := decomposer.NewProviderError(p.name, decomposer.UpstreamMalformedEnvelope, "missing choices[0].message.content")
		p.failed(ctx, perr, time.Since(startTime))
		return "", perr
	}

	capitan.Info(ctx, decomposer.ProviderCallCompleted,
		decomposer.ProviderKey.Field(p.name),
		decomposer.ModelKey.Field(p.model),
		decomposer.PromptTokensKey.Field(completion.Usage.PromptTokens),
		decomposer.CompletionTokensKey.Field(completion.Usage.CompletionTokens),
		decomposer.DurationMsKey.Field(int(time.Since(startTime).Milliseconds())),
		decomposer.HTTPStatusCodeKey.Field(resp.StatusCode),
	)

	return *completion.Choices[0].Message.Content, nil
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

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type request struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float32   `json:"temperature"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type response struct {
	Choices []struct {
		Message *struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}
