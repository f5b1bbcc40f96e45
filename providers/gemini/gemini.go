// Package gemini implements the decomposer Provider interface for Google
// Gemini through the genai SDK.
package gemini

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"google.golang.org/genai"

	decomposer "github.com/VVISHUS/AI-Decomposer-DND-TODO-App"
)

// Provider implements decomposer.Provider for the Gemini API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	timeout time.Duration
	name    string

	mu        sync.Mutex
	client    *genai.Client
	newClient func(context.Context, *genai.ClientConfig) (*genai.Client, error)
}

// Config holds configuration for the Gemini provider.
type Config struct {
	APIKey  string
	Model   string        // e.g. "gemini-1.5-flash", "gemini-1.5-pro"
	BaseURL string        // Optional, defaults to the SDK endpoint
	Timeout time.Duration // Optional, defaults to 60s
}

// New creates a new Gemini provider. The SDK client is built on first use so
// that a missing key never reaches the network or the SDK's own env lookup.
func New(config Config) *Provider {
	if config.Model == "" {
		config.Model = "gemini-1.5-flash"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &Provider{
		apiKey:    config.APIKey,
		model:     config.Model,
		baseURL:   config.BaseURL,
		timeout:   config.Timeout,
		name:      "gemini",
		newClient: genai.NewClient,
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// genaiClient returns the SDK client, building it on first success. A failed
// construction is not kept, so the next call tries again.
func (p *Provider) genaiClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	cfg := &genai.ClientConfig{
		APIKey:     p.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: p.timeout},
	}
	if p.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}
	client, err := p.newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	p.client = client
	return client, nil
}

// Call sends the system instruction and query to Gemini and returns the first
// text part of the first candidate.
func (p *Provider) Call(ctx context.Context, system, query string, temperature float32) (string, error) {
	if p.apiKey == "" {
		err := decomposer.NewProviderError(p.name, decomposer.MissingCredential, "GEMINI_API_KEY environment variable not set")
		p.failed(ctx, err, 0)
		return "", err
	}

	client, err := p.genaiClient(ctx)
	if err != nil {
		perr := decomposer.NewProviderError(p.name, decomposer.UpstreamRejected, "failed to create client: %v", err)
		p.failed(ctx, perr, 0)
		return "", perr
	}

	startTime := time.Now()

	capitan.Info(ctx, decomposer.ProviderCallStarted,
		decomposer.ProviderKey.Field(p.name),
		decomposer.ModelKey.Field(p.model),
	)

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(temperature),
		ResponseMIMEType:  "application/json",
	}

	resp, err := client.Models.GenerateContent(ctx, p.model, genai.Text(query), config)
	if err != nil {
		// The SDK folds transport failures and non-2xx statuses into one error.
		perr := decomposer.TransportError(ctx, p.name, err)
		p.failed(ctx, perr, time.Since(startTime))
		return "", perr
	}

	text, finishReason, ok := firstText(resp)
	if !ok {
		perr := decomposer.NewProviderError(p.name, decomposer.UpstreamMalformedEnvelope, "no text content in response")
		p.failed(ctx, perr, time.Since(startTime))
		return "", perr
	}

	fields := []capitan.Field{
		decomposer.ProviderKey.Field(p.name),
		decomposer.ModelKey.Field(p.model),
		decomposer.DurationMsKey.Field(int(time.Since(startTime).Milliseconds())),
	}
	if usage := resp.UsageMetadata; usage != nil {
		fields = append(fields,
			decomposer.PromptTokensKey.Field(int(usage.PromptTokenCount)),
			decomposer.CompletionTokensKey.Field(int(usage.CandidatesTokenCount)),
		)
	}
	if finishReason != "" {
		fields = append(fields, decomposer.FinishReasonKey.Field(finishReason))
	}
	capitan.Info(ctx, decomposer.ProviderCallCompleted, fields...)

	return text, nil
}

// firstText extracts the first non-empty text part of the first candidate.
func firstText(resp *genai.GenerateContentResponse) (string, string, bool) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", "", false
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return "", "", false
	}
	for _, part := range candidate.Content.Parts {
		if part != nil && part.Text != "" {
			return part.Text, string(candidate.FinishReason), true
		}
	}
	return "", "", false
}

// failed emits the provider.call.failed hook.
func (p *Provider) failed(ctx context.Context, err *decomposer.ProviderError, duration time.Duration) {
	capitan.Error(ctx, decomposer.ProviderCallFailed,
		decomposer.ProviderKey.Field(p.name),
		decomposer.ModelKey.Field(p.model),
		decomposer.DurationMsKey.Field(int(duration.Milliseconds())),
		decomposer.ErrorKindKey.Field(string(err.Kind)),
		decomposer.ErrorKey.Field(err.Detail),
	)
}
