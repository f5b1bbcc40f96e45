package decomposer

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
)

// MockProvider simulates LLM behavior for testing.
// It returns a deterministic decomposition derived from the query.
type MockProvider struct {
	name      string
	available atomic.Bool
	calls     atomic.Int64
}

// NewMockProvider creates a new mock provider for testing.
func NewMockProvider() *MockProvider {
	return NewMockProviderWithName("mock")
}

// NewMockProviderWithName creates a new mock provider with a specific name.
func NewMockProviderWithName(name string) *MockProvider {
	m := &MockProvider{name: name}
	m.available.Store(true)
	return m
}

// Name returns the provider identifier.
func (m *MockProvider) Name() string {
	return m.name
}

// Calls returns how many times Call was invoked.
func (m *MockProvider) Calls() int {
	return int(m.calls.Load())
}

// Call returns a two-subtask decomposition of query.
func (m *MockProvider) Call(_ context.Context, _ string, query string, _ float32) (string, error) {
	m.calls.Add(1)
	if !m.available.Load() {
		return "", NewProviderError(m.name, UpstreamRejected, "provider %s is unavailable", m.name)
	}
	return m.generateResponse(query), nil
}

// SetAvailable sets the availability status (for testing failures).
func (m *MockProvider) SetAvailable(available bool) {
	m.available.Store(available)
}

func (*MockProvider) generateResponse(query string) string {
	goal := strings.TrimSpace(query)
	d := Decomposition{Subtasks: []Subtask{
		{Key: "Subtask1", Title: "1. Plan", Steps: []string{"Clarify the goal: " + goal, "List what is needed"}},
		{Key: "Subtask2", Title: "2. Execute", Steps: []string{"Work through the list", "Review the result"}},
	}}
	body, err := d.MarshalJSON()
	if err != nil {
		return "{}"
	}
	return string(body)
}

// NewMockProviderWithResponse creates a mock that always returns a specific response.
func NewMockProviderWithResponse(response string) Provider {
	return &mockProviderFixed{response: response}
}

// NewMockProviderWithCallback creates a mock that calls a function to generate responses.
func NewMockProviderWithCallback(callback func(ctx context.Context, system, query string, temperature float32) (string, error)) Provider {
	return &mockProviderCallback{callback: callback}
}

// mockProviderFixed always returns a fixed response.
type mockProviderFixed struct {
	response string
}

func (*mockProviderFixed) Name() string {
	return "mock-fixed"
}

func (m *mockProviderFixed) Call(_ context.Context, _, _ string, _ float32) (string, error) {
	return m.response, nil
}

// mockProviderCallback uses a callback to generate responses.
type mockProviderCallback struct {
	callback func(context.Context, string, string, float32) (string, error)
}

func (*mockProviderCallback) Name() string {
	return "mock-callback"
}

func (m *mockProviderCallback) Call(ctx context.Context, system, query string, temperature float32) (string, error) {
	return m.callback(ctx, system, query, temperature)
}

// StaticFactory routes every entry to the same provider.
func StaticFactory(provider Provider) Factory {
	return FactoryFunc(func(Entry) (Provider, error) {
		return provider, nil
	})
}

// KindFactory routes entries by provider kind.
func KindFactory(providers map[ProviderKind]Provider) Factory {
	return FactoryFunc(func(e Entry) (Provider, error) {
		p, ok := providers[e.Kind]
		if !ok {
			return nil, fmt.Errorf("no provider for kind %s", e.Kind)
		}
		return p, nil
	})
}
