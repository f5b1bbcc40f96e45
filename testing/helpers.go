// Package testing provides utilities for testing code built on the decomposer.
package testing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	decomposer "github.com/VVISHUS/AI-Decomposer-DND-TODO-App"
)

// Provider name constants for test helpers.
const (
	SequencedProviderName = "sequenced-mock"
	FailingProviderName   = "failing-mock"
)

// DecompositionBuilder provides a fluent interface for constructing mock LLM replies.
type DecompositionBuilder struct {
	subtasks []decomposer.Subtask
}

// NewDecompositionBuilder creates a new DecompositionBuilder.
func NewDecompositionBuilder() *DecompositionBuilder {
	return &DecompositionBuilder{}
}

// WithSubtask appends a subtask under key.
func (b *DecompositionBuilder) WithSubtask(key, title string, steps ...string) *DecompositionBuilder {
	if steps == nil {
		steps = []string{}
	}
	b.subtasks = append(b.subtasks, decomposer.Subtask{Key: key, Title: title, Steps: steps})
	return b
}

// WithNumbered appends a subtask keyed SubtaskN, with N one past the current count.
func (b *DecompositionBuilder) WithNumbered(title string, steps ...string) *DecompositionBuilder {
	n := len(b.subtasks) + 1
	return b.WithSubtask(fmt.Sprintf("Subtask%d", n), fmt.Sprintf("%d. %s", n, title), steps...)
}

// Decomposition returns the built value.
func (b *DecompositionBuilder) Decomposition() decomposer.Decomposition {
	out := make([]decomposer.Subtask, len(b.subtasks))
	copy(out, b.subtasks)
	return decomposer.Decomposition{Subtasks: out}
}

// Build returns the JSON string representation of the reply.
func (b *DecompositionBuilder) Build() string {
	jsonBytes, err := b.Decomposition().MarshalJSON()
	if err != nil {
		return "{}"
	}
	return string(jsonBytes)
}

// BuildFenced returns the reply wrapped in a ```json fence with surrounding
// prose, the way chat models often answer.
func (b *DecompositionBuilder) BuildFenced() string {
	return "Here is your plan:\n```json\n" + b.Build() + "\n```\nLet me know if you need more detail."
}

// SequencedProvider returns responses in sequence.
// After all responses are exhausted, it returns the last response repeatedly.
type SequencedProvider struct {
	responses []string
	index     atomic.Int64
}

// NewSequencedProvider creates a provider that returns responses in order.
func NewSequencedProvider(responses ...string) *SequencedProvider {
	if len(responses) == 0 {
		responses = []string{`{"error": "no responses configured"}`}
	}
	return &SequencedProvider{
		responses: responses,
	}
}

// Call returns the next response in sequence.
func (p *SequencedProvider) Call(_ context.Context, _, _ string, _ float32) (string, error) {
	idx := int(p.index.Add(1) - 1)

	// Clamp to last response if exhausted
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	return p.responses[idx], nil
}

// Name returns the provider identifier.
func (*SequencedProvider) Name() string {
	return SequencedProviderName
}

// CallCount returns the number of calls made.
func (p *SequencedProvider) CallCount() int {
	return int(p.index.Load())
}

// Reset resets the call counter.
func (p *SequencedProvider) Reset() {
	p.index.Store(0)
}

// FailingProvider fails a specified number of times before succeeding.
type FailingProvider struct {
	failCount    int
	currentCount atomic.Int64
	successResp  string
	failKind     decomposer.ProviderErrorKind
}

// NewFailingProvider creates a provider that fails failCount times then succeeds.
func NewFailingProvider(failCount int) *FailingProvider {
	return &FailingProvider{
		failCount:   failCount,
		successResp: NewDecompositionBuilder().WithNumbered("Recover", "try again").Build(),
		failKind:    decomposer.UpstreamRejected,
	}
}

// WithSuccessResponse sets the response returned after failures are exhausted.
func (p *FailingProvider) WithSuccessResponse(response string) *FailingProvider {
	p.successResp = response
	return p
}

// WithFailKind sets the provider error kind of failures.
func (p *FailingProvider) WithFailKind(kind decomposer.ProviderErrorKind) *FailingProvider {
	p.failKind = kind
	return p
}

// Call fails until failCount is reached, then succeeds.
func (p *FailingProvider) Call(_ context.Context, _, _ string, _ float32) (string, error) {
	count := p.currentCount.Add(1)
	if int(count) <= p.failCount {
		return "", decomposer.NewProviderError(FailingProviderName, p.failKind, "simulated provider failure (attempt %d/%d)", count, p.failCount)
	}
	return p.successResp, nil
}

// Name returns the provider identifier.
func (*FailingProvider) Name() string {
	return FailingProviderName
}

// CallCount returns the number of calls made.
func (p *FailingProvider) CallCount() int {
	return int(p.currentCount.Load())
}

// RecordedCall represents a single call to a provider.
type RecordedCall struct {
	System      string
	Query       string
	Temperature float32
}

// CallRecorder wraps a provider and records all calls made to it.
type CallRecorder struct {
	provider decomposer.Provider
	calls    []RecordedCall
	mu       sync.Mutex
}

// NewCallRecorder wraps a provider with call recording.
func NewCallRecorder(provider decomposer.Provider) *CallRecorder {
	return &CallRecorder{
		provider: provider,
		calls:    make([]RecordedCall, 0),
	}
}

// Call delegates to the wrapped provider and records the call.
func (r *CallRecorder) Call(ctx context.Context, system, query string, temperature float32) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, RecordedCall{
		System:      system,
		Query:       query,
		Temperature: temperature,
	})
	r.mu.Unlock()

	return r.provider.Call(ctx, system, query, temperature)
}

// Name returns the wrapped provider's name.
func (r *CallRecorder) Name() string {
	return r.provider.Name()
}

// Calls returns a copy of all recorded calls.
func (r *CallRecorder) Calls() []RecordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	calls := make([]RecordedCall, len(r.calls))
	copy(calls, r.calls)
	return calls
}

// CallCount returns the number of calls recorded.
func (r *CallRecorder) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// LastCall returns the most recent call, or nil if no calls made.
func (r *CallRecorder) LastCall() *RecordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.calls) == 0 {
		return nil
	}
	call := r.calls[len(r.calls)-1]
	return &call
}

// LatencyProvider wraps a provider and adds artificial latency.
type LatencyProvider struct {
	provider decomposer.Provider
	delay    time.Duration
}

// NewLatencyProvider wraps a provider with artificial delay.
// The delay is applied before each provider call and respects context cancellation.
func NewLatencyProvider(provider decomposer.Provider, delay time.Duration) *LatencyProvider {
	return &LatencyProvider{
		provider: provider,
		delay:    delay,
	}
}

// Call adds latency then delegates to the wrapped provider.
func (p *LatencyProvider) Call(ctx context.Context, system, query string, temperature float32) (string, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return p.provider.Call(ctx, system, query, temperature)
}

// Name returns the wrapped provider's name.
func (p *LatencyProvider) Name() string {
	return p.provider.Name()
}

// MemoryRecorder is a decomposer.Recorder that keeps records in memory.
type MemoryRecorder struct {
	mu      sync.Mutex
	records []decomposer.AuditRecord
}

// NewMemoryRecorder creates an empty MemoryRecorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Record appends rec.
func (r *MemoryRecorder) Record(_ context.Context, rec decomposer.AuditRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

// Records returns a copy of every record.
func (r *MemoryRecorder) Records() []decomposer.AuditRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]decomposer.AuditRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Successes returns the number of success records.
func (r *MemoryRecorder) Successes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.successesLocked()
}

// Failures returns the number of error records.
func (r *MemoryRecorder) Failures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records) - r.successesLocked()
}

func (r *MemoryRecorder) successesLocked() int {
	n := 0
	for _, rec := range r.records {
		if rec.Success {
			n++
		}
	}
	return n
}
