package decomposer

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Provider defines the interface for LLM provider adapters.
// An adapter turns a system instruction, a user query and a temperature into
// exactly one upstream call and returns the raw text of the first completion.
type Provider interface {
	// Call sends the instruction and query to the LLM and returns the raw reply.
	// Failures are reported as *ProviderError.
	Call(ctx context.Context, system, query string, temperature float32) (string, error)

	// Name returns the provider identifier (e.g., "openai", "anthropic")
	Name() string
}

// ProviderKind is the closed set of backends a logical model can route to.
type ProviderKind int

// Provider kinds.
const (
	KindOpenAI ProviderKind = iota + 1
	KindGemini
	KindAnthropic
	KindChat
)

var kindNames = map[ProviderKind]string{
	KindOpenAI:    "openai",
	KindGemini:    "gemini",
	KindAnthropic: "anthropic",
	KindChat:      "chat",
}

// String returns the lower-case provider name.
func (k ProviderKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseProviderKind maps a provider name back to its kind.
func ParseProviderKind(s string) (ProviderKind, error) {
	for kind, name := range kindNames {
		if name == s {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown provider kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k ProviderKind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("unknown provider kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ProviderKind) UnmarshalText(text []byte) error {
	kind, err := ParseProviderKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// ProviderErrorKind classifies adapter failures.
type ProviderErrorKind string

// Provider error kinds.
const (
	MissingCredential         ProviderErrorKind = "missing_credential"
	UpstreamTimeout           ProviderErrorKind = "upstream_timeout"
	UpstreamRejected          ProviderErrorKind = "upstream_rejected"
	UpstreamMalformedEnvelope ProviderErrorKind = "upstream_malformed_envelope"
)

// ProviderError is returned by adapters for every failed call.
type ProviderError struct {
	Provider   string
	Kind       ProviderErrorKind
	Detail     string
	StatusCode int // upstream HTTP status, 0 when no response was received
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Detail)
}

// NewProviderError builds a ProviderError with a formatted detail.
func NewProviderError(provider string, kind ProviderErrorKind, format string, args ...any) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Kind:     kind,
		Detail:   fmt.Sprintf(format, args...),
	}
}

// TransportError classifies a failed HTTP round trip. An expired deadline or a
// client timeout is UpstreamTimeout; anything else is UpstreamRejected.
func TransportError(ctx context.Context, provider string, err error) *ProviderError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return NewProviderError(provider, UpstreamTimeout, "request timed out: %v", err)
	}
	return NewProviderError(provider, UpstreamRejected, "request failed: %v", err)
}
