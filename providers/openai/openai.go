// Package openai implements the decomposer Provider interface for the OpenAI
// chat completions API.
package openai

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

const maxResponseBytes = 10 * 1024 * 1024

// Provider implements decomposer.Provider for the OpenAI API.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	name       string
}

// Config holds configuration for the OpenAI provider.
type Config struct {
	APIKey  string
	Model   string        // e.g. "gpt-4-turbo-preview", "gpt-4o"
	BaseURL string        // Optional, defaults to "https://api.openai.com/v1"
	Timeout time.Duration // Optional, defaults to 60s
}

// New creates a new OpenAI provider.
func New(config Config) *Provider {
	if config.Model == "" {
		config.Model = "gpt-4-turbo-preview"
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &Provider{
		apiKey:  config.APIKey,
		model:   config.Model,
		baseURL: config.BaseURL,
		name:    "openai",
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Call sends the system instruction and query to OpenAI in JSON mode and
// returns the content of the first choice.
func (p *Provider) Call(ctx context.Context, system, query string, temperature float32) (string, error) {
	if p.apiKey == "" {
		err := decomposer.NewProviderError(p.name, decomposer.MissingCredential, "OPENAI_API_KEY environment variable not set")
		p.failed(ctx, err, 0)
		return "", err
	}

	startTime := time.Now()

	capitan.Info(ctx, decomposer.ProviderCallStarted,
		decomposer.ProviderKey.Field(p.name),
		decomposer.ModelKey.Field(p.model),
	)

	requestBody := chatCompletionRequest{
		Model: p.model,
		Messages: []message{
			{Role: "system", Content: system},
			{Role: "user", Content: query},
		},
		Temperature: temperature,
		ResponseFormat: &responseFormat{
			Type: "json_object",
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

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
			perr.Detail = fmt.Sprintf("status %d: %s", resp.StatusCode, errorResp.Error.Message)
		}
		perr.StatusCode = resp.StatusCode
		p.failed(ctx, perr, time.Since(startTime))
		return "", perr
	}

	var completionResp chatCompletionResponse
	if err := json.Unmarshal(body, &completionResp); err != nil {
		perr := decomposer.NewProviderError(p.name, decomposer.UpstreamMalformedEnvelope, "failed to parse response: %v", err)
		p.failed(ctx, perr, time.Since(startTime))
		return "", perr
	}

	if len(completionResp.Choices) == 0 || completionResp.Choices[0].Message.Content == nil {
		perr := decomposer.NewProviderError(p.name, decomposer.UpstreamMalformedEnvelope, "no response choices returned")
		p.failed(ctx, perr, time.Since(startTime))
		return "", perr
	}

	fields := []capitan.Field{
		decomposer.ProviderKey.Field(p.name),
		decomposer.ModelKey.Field(completionResp.Model),
		decomposer.PromptTokensKey.Field(completionResp.Usage.PromptTokens),
		decomposer.CompletionTokensKey.Field(completionResp.Usage.CompletionTokens),
		decomposer.DurationMsKey.Field(int(time.Since(startTime).Milliseconds())),
		decomposer.HTTPStatusCodeKey.Field(resp.StatusCode),
	}
	if completionResp.Choices[0].FinishReason != "" {
		fields = append(fields, decomposer.FinishReasonKey.Field(completionResp.Choices[0].FinishReason))
	}
	capitan.Info(ctx, decomposer.ProviderCallCompleted, fields...)

	return *completionResp.Choices[0].Message.Content, nil
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

// Request/Response types for OpenAI API

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	Temperature    float32         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   usage    `json:"usage"`
}

type choice struct {
	Index        int             `json:"index"`
	Message      responseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type responseMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}
