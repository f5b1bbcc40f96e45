// Package providers builds the adapter that serves a registry entry.
package providers

import (
	"fmt"
	"sync"
	"time"

	decomposer "github.com/VVISHUS/AI-Decomposer-DND-TODO-App"
	"github.com/VVISHUS/AI-Decomposer-DND-TODO-App/providers/anthropic"
	"github.com/VVISHUS/AI-Decomposer-DND-TODO-App/providers/chat"
	"github.com/VVISHUS/AI-Decomposer-DND-TODO-App/providers/gemini"
	"github.com/VVISHUS/AI-Decomposer-DND-TODO-App/providers/openai"
)

// Credentials carries one API key per provider. Keys are read once at
// startup and handed to adapters explicitly.
type Credentials struct {
	OpenAI    string
	Gemini    string
	Anthropic string
	Chat      string
}

// Config configures every adapter the factory can build.
type Config struct {
	Credentials      Credentials
	OpenAIBaseURL    string
	GeminiBaseURL    string
	AnthropicBaseURL string
	ChatEndpoint     string
	Timeout          time.Duration // HTTP client timeout per adapter
}

// Factory builds and caches one adapter per (kind, upstream model).
// It is safe for concurrent use.
type Factory struct {
	cfg   Config
	mu    sync.Mutex
	cache map[string]decomposer.Provider
}

// NewFactory creates a Factory.
func NewFactory(cfg Config) *Factory {
	return &Factory{
		cfg:   cfg,
		cache: make(map[string]decomposer.Provider),
	}
}

// Provider returns the adapter for entry.
func (f *Factory) Provider(entry decomposer.Entry) (decomposer.Provider, error) {
	key := entry.Kind.String() + "/" + entry.ModelID

	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.cache[key]; ok {
		return p, nil
	}
	p, err := f.build(entry)
	if err != nil {
		return nil, err
	}
	f.cache[key] = p
	return p, nil
}

func (f *Factory) build(entry decomposer.Entry) (decomposer.Provider, error) {
	switch entry.Kind {
	case decomposer.KindOpenAI:
		return openai.New(openai.Config{
			APIKey:  f.cfg.Credentials.OpenAI,
			Model:   entry.ModelID,
			BaseURL: f.cfg.OpenAIBaseURL,
			Timeout: f.cfg.Timeout,
		}), nil
	case decomposer.KindGemini:
		return gemini.New(gemini.Config{
			APIKey:  f.cfg.Credentials.Gemini,
			Model:   entry.ModelID,
			BaseURL: f.cfg.GeminiBaseURL,
			Timeout: f.cfg.Timeout,
		}), nil
	case decomposer.KindAnthropic:
		return anthropic.New(anthropic.Config{
			APIKey:  f.cfg.Credentials.Anthropic,
			Model:   entry.ModelID,
			BaseURL: f.cfg.AnthropicBaseURL,
			Timeout: f.cfg.Timeout,
		}), nil
	case decomposer.KindChat:
		return chat.New(chat.Config{
			APIKey:   f.cfg.Credentials.Chat,
			Model:    entry.ModelID,
			Endpoint: f.cfg.ChatEndpoint,
			Timeout:  f.cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported provider kind %s", entry.Kind)
	}
}
