package decomposer

import "github.com/zoobzio/capitan"

// Signals for hook events.
const (
	RequestStarted        = capitan.Signal("decompose.request.started")
	RequestCompleted      = capitan.Signal("decompose.request.completed")
	RequestFailed         = capitan.Signal("decompose.request.failed")
	ProviderCallStarted   = capitan.Signal("decompose.provider.call.started")
	ProviderCallCompleted = capitan.Signal("decompose.provider.call.completed")
	ProviderCallFailed    = capitan.Signal("decompose.provider.call.failed")
	AuditAppendFailed     = capitan.Signal("decompose.audit.append.failed")
)

// Keys for hook event fields.
var (
	// Request identification.
	RequestIDKey   = capitan.NewStringKey("decompose.request.id")
	ModelNameKey   = capitan.NewStringKey("decompose.model.name")
	QueryKey       = capitan.NewStringKey("decompose.query")
	TemperatureKey = capitan.NewFloat64Key("decompose.temperature")

	// Outcome.
	OutputKey       = capitan.NewStringKey("decompose.output")
	ResponseKey     = capitan.NewStringKey("decompose.response")
	SubtaskCountKey = capitan.NewIntKey("decompose.subtasks")
	StateKey        = capitan.NewStringKey("decompose.state")

	// Error information.
	ErrorKey     = capitan.NewStringKey("decompose.error")
	ErrorKindKey = capitan.NewStringKey("decompose.error.kind")

	// Provider information.
	ProviderKey = capitan.NewStringKey("decompose.provider")
	ModelKey    = capitan.NewStringKey("decompose.provider.model")

	// Provider metrics.
	PromptTokensKey     = capitan.NewIntKey("decompose.tokens.prompt")
	CompletionTokensKey = capitan.NewIntKey("decompose.tokens.completion")
	DurationMsKey       = capitan.NewIntKey("decompose.duration.ms")
	HTTPStatusCodeKey   = capitan.NewIntKey("decompose.http.status.code")
	FinishReasonKey     = capitan.NewStringKey("decompose.response.finish.reason")

	// Audit sink.
	SinkKey = capitan.NewStringKey("decompose.audit.sink")
)
