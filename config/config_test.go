package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	decomposer "github.com/VVISHUS/AI-Decomposer-DND-TODO-App"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "decomposer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.Server.Addr)
	assert.Equal(t, []string{"http://localhost:8000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, decomposer.DefaultTemperature, cfg.Dispatch.Temperature)
	assert.Equal(t, 90*time.Second, cfg.DispatchTimeout())
	assert.Equal(t, DriverCSV, cfg.Audit.Driver)
	assert.Equal(t, 120*time.Second, cfg.ProviderConfig().Timeout)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, ":5000", cfg.Server.Addr)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
  allowed_origins: ["https://todo.example.com"]
dispatch:
  temperature: 0.3
  timeout: 15s
  rate_limit:
    rps: 5
    burst: 2
audit:
  driver: sqlite
  dsn: /tmp/audit.db
providers:
  timeout: 30s
  openai:
    base_url: http://localhost:1234/v1
  chat:
    base_url: http://localhost:4321/v1/chat/completions
models:
  - name: local-llama
    provider: chat
    model_id: llama3
  - name: openai
    provider: openai
    model_id: gpt-4o
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"https://todo.example.com"}, cfg.Server.AllowedOrigins)
	assert.InDelta(t, 0.3, cfg.Dispatch.Temperature, 1e-6)
	assert.Equal(t, 15*time.Second, cfg.DispatchTimeout())
	assert.Equal(t, 5.0, cfg.Dispatch.RateLimit.RPS)
	assert.Equal(t, 2, cfg.Dispatch.RateLimit.Burst)
	assert.Equal(t, DriverSQLite, cfg.Audit.Driver)
	assert.Equal(t, "/tmp/audit.db", cfg.Audit.DSN)
	assert.Equal(t, "debug", cfg.Logging.Level)

	pc := cfg.ProviderConfig()
	assert.Equal(t, "http://localhost:1234/v1", pc.OpenAIBaseURL)
	assert.Equal(t, "http://localhost:4321/v1/chat/completions", pc.ChatEndpoint)
	assert.Equal(t, 30*time.Second, pc.Timeout)

	reg, err := cfg.Registry()
	require.NoError(t, err)
	local, err := reg.Resolve("local-llama")
	require.NoError(t, err)
	assert.Equal(t, decomposer.KindChat, local.Kind)
	assert.Equal(t, "llama3", local.ModelID)

	openai, err := reg.Resolve("openai")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", openai.ModelID, "configured model overrides the default entry")

	_, err = reg.Resolve(decomposer.DefaultModel)
	assert.NoError(t, err, "defaults remain available")
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "server: [unclosed"},
		{"temperature out of range", "dispatch:\n  temperature: 3"},
		{"bad timeout", "dispatch:\n  timeout: soon"},
		{"negative timeout", "dispatch:\n  timeout: -1s"},
		{"unknown driver", "audit:\n  driver: postgres"},
		{"sqlite without dsn", "audit:\n  driver: sqlite\n  dsn: \"\""},
		{"unknown provider kind", "models:\n  - name: x\n    provider: azure\n    model_id: m"},
		{"model without id", "models:\n  - name: x\n    provider: chat"},
		{"rate limit without burst", "dispatch:\n  rate_limit:\n    rps: 3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "oa-key")
	t.Setenv("GEMINI_API_KEY", "gm-key")
	t.Setenv("ANTHROPIC_API_KEY", "an-key")
	t.Setenv("CHAT_API_KEY", "")
	t.Setenv("DECOMPOSER_ADDR", "127.0.0.1:7000")
	t.Setenv("DECOMPOSER_AUDIT_DIR", "/var/log/decomposer")
	t.Setenv("CHAT_ENDPOINT", "http://chat.internal/v1/chat/completions")

	cfg, err := Load(writeConfig(t, "server:\n  addr: \":9090\"\n"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Addr, "environment wins over the file")
	assert.Equal(t, "/var/log/decomposer", cfg.Audit.Dir)
	assert.Equal(t, "http://chat.internal/v1/chat/completions", cfg.ProviderConfig().ChatEndpoint)

	creds := cfg.ProviderConfig().Credentials
	assert.Equal(t, "oa-key", creds.OpenAI)
	assert.Equal(t, "gm-key", creds.Gemini)
	assert.Equal(t, "an-key", creds.Anthropic)
	assert.Empty(t, creds.Chat)
}

func TestCredentialsNotReadFromFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := Load(writeConfig(t, "credentials:\n  openai: leaked\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Credentials.OpenAI)
}
