package main

import (
	"context"
	"strings"

	"github.com/zoobzio/capitan"
	"go.uber.org/zap"

	decomposer "github.com/VVISHUS/AI-Decomposer-DND-TODO-App"
)

type stringKey interface {
	From(e *capitan.Event) (string, bool)
}

type intKey interface {
	From(e *capitan.Event) (int, bool)
}

var (
	stringFields = map[string]stringKey{
		"request_id":    decomposer.RequestIDKey,
		"model":         decomposer.ModelNameKey,
		"provider":      decomposer.ProviderKey,
		"upstream":      decomposer.ModelKey,
		"error":         decomposer.ErrorKey,
		"error_kind":    decomposer.ErrorKindKey,
		"finish_reason": decomposer.FinishReasonKey,
		"sink":          decomposer.SinkKey,
	}
	intFields = map[string]intKey{
		"subtasks":          decomposer.SubtaskCountKey,
		"prompt_tokens":     decomposer.PromptTokensKey,
		"completion_tokens": decomposer.CompletionTokensKey,
		"duration_ms":       decomposer.DurationMsKey,
		"http_status":       decomposer.HTTPStatusCodeKey,
	}
)

// observe forwards every decompose.* event to log. Failures log at warn,
// everything else at debug. The returned func detaches the observer.
func observe(log *zap.Logger) func() {
	observer := capitan.Observe(func(_ context.Context, e *capitan.Event) {
		signal := string(e.Signal())
		if !strings.HasPrefix(signal, "decompose.") {
			return
		}

		fields := eventFields(e)
		if strings.HasSuffix(signal, ".failed") {
			log.Warn(signal, fields...)
			return
		}
		log.Debug(signal, fields...)
	})
	return func() { observer.Close() }
}

func eventFields(e *capitan.Event) []zap.Field {
	var fields []zap.Field
	for name, key := range stringFields {
		if v, ok := key.From(e); ok && v != "" {
			fields = append(fields, zap.String(name, v))
		}
	}
	for name, key := range intFields {
		if v, ok := key.From(e); ok {
			fields = append(fields, zap.Int(name, v))
		}
	}
	return fields
}
