package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	decomposer "github.com/VVISHUS/AI-Decomposer-DND-TODO-App"
	"github.com/VVISHUS/AI-Decomposer-DND-TODO-App/audit"
	"github.com/VVISHUS/AI-Decomposer-DND-TODO-App/config"
)

func TestFanOutKeepsModelOrder(t *testing.T) {
	reg, err := decomposer.NewRegistry(decomposer.DefaultEntries()...)
	require.NoError(t, err)
	d := decomposer.NewDispatcher(reg, decomposer.StaticFactory(decomposer.NewMockProvider()))

	models := []string{"openai", "nope", "deepseek-v3", "anthropic"}
	results := fanOut(context.Background(), d, models, "Renovate the kitchen", nil)

	require.Len(t, results, len(models))
	for i, r := range results {
		assert.Equal(t, models[i], r.Model)
	}
	assert.True(t, results[0].Envelope.Succeeded())
	assert.Equal(t, decomposer.ErrorKindUnknownModel, results[1].Envelope.Kind)
	assert.True(t, results[3].Envelope.Succeeded())
}

func TestPrintResults(t *testing.T) {
	var buf bytes.Buffer
	results := []modelResult{
		{Model: "openai", Envelope: decomposer.Envelope{Status: decomposer.StatusError, Message: "boom", Kind: decomposer.ErrorKindProvider}},
	}
	require.NoError(t, printResults(&buf, results))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "openai", decoded["model"])
	env := decoded["envelope"].(map[string]any)
	assert.Equal(t, "provider_error", env["error_kind"])
}

func TestPrintModels(t *testing.T) {
	reg, err := decomposer.NewRegistry(decomposer.DefaultEntries()...)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printModels(&buf, reg))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "NAME"))
	assert.Contains(t, out, "gemini-default (default)")
	assert.Contains(t, out, "Qwen/QwQ-32B")
	assert.Equal(t, len(decomposer.DefaultEntries())+1, strings.Count(out, "\n"))
}

func TestNewAppWiresAudit(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Audit.Dir = t.TempDir()

	a, err := newApp(cfg, zap.NewNop())
	require.NoError(t, err)

	// No credential: the request fails fast and is still audited.
	env := a.dispatcher.Decompose(context.Background(), decomposer.Request{Model: "openai", Query: "Plan a garden"})
	require.NoError(t, a.Close())

	assert.Equal(t, decomposer.ErrorKindProvider, env.Kind)
	assert.Contains(t, env.Message, string(decomposer.MissingCredential))
	assert.FileExists(t, filepath.Join(cfg.Audit.Dir, audit.ErrorLogFile))
}

func TestOpenSink(t *testing.T) {
	sink, err := openSink(config.AuditConfig{Driver: config.DriverSQLite, DSN: filepath.Join(t.TempDir(), "a.db")})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", sink.Name())
	require.NoError(t, sink.Close())

	sink, err = openSink(config.AuditConfig{Driver: config.DriverCSV, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "csv", sink.Name())

	_, err = openSink(config.AuditConfig{Driver: "kafka"})
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	log, err := newLogger(config.LoggingConfig{Level: "warn"}, false)
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zap.InfoLevel))

	log, err = newLogger(config.LoggingConfig{Level: "warn"}, true)
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zap.DebugLevel))

	_, err = newLogger(config.LoggingConfig{Level: "loud"}, false)
	assert.Error(t, err)
}
