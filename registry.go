package decomposer

import (
	"fmt"
	"sort"
)

// DefaultModel is the logical model used when a request names none.
const DefaultModel = "gemini-default"

// Entry routes a logical model name to a provider and its upstream model id.
type Entry struct {
	Name    string       `yaml:"name" json:"name"`
	Kind    ProviderKind `yaml:"provider" json:"provider"`
	ModelID string       `yaml:"model_id" json:"model_id"`
}

// Registry is an immutable lookup table of logical model names.
// It is built once at startup and is safe for concurrent reads.
type Registry struct {
	entries map[string]Entry
}

// NewRegistry builds a registry from entries. Names are matched exactly and
// case-sensitively; a duplicate name or an entry without a kind or model id
// is rejected.
func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("registry entry missing name")
		}
		if _, ok := kindNames[e.Kind]; !ok {
			return nil, fmt.Errorf("registry entry %q: unknown provider kind %d", e.Name, int(e.Kind))
		}
		if e.ModelID == "" {
			return nil, fmt.Errorf("registry entry %q missing model id", e.Name)
		}
		if _, dup := r.entries[e.Name]; dup {
			return nil, fmt.Errorf("duplicate registry entry %q", e.Name)
		}
		r.entries[e.Name] = e
	}
	return r, nil
}

// Resolve looks up a logical model name.
func (r *Registry) Resolve(name string) (Entry, error) {
	e, ok := r.entries[name]
	if !ok {
		return Entry{}, &UnknownModelError{Model: name}
	}
	return e, nil
}

// Names returns the registered logical names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries returns all entries sorted by name.
func (r *Registry) Entries() []Entry {
	names := r.Names()
	out := make([]Entry, len(names))
	for i, name := range names {
		out[i] = r.entries[name]
	}
	return out
}

// Merge returns the default entries with overrides applied. An override with
// an existing name replaces that entry; new names are appended.
func Merge(base []Entry, overrides []Entry) []Entry {
	index := make(map[string]int, len(base))
	out := make([]Entry, len(base))
	copy(out, base)
	for i, e := range out {
		index[e.Name] = i
	}
	for _, e := range overrides {
		if i, ok := index[e.Name]; ok {
			out[i] = e
			continue
		}
		index[e.Name] = len(out)
		out = append(out, e)
	}
	return out
}

// DefaultEntries returns the built-in routing table: the three commercial
// providers plus the open-weight family served by the generic chat endpoint.
func DefaultEntries() []Entry {
	return []Entry{
		{Name: DefaultModel, Kind: KindGemini, ModelID: "gemini-1.5-flash"},
		{Name: "gemini", Kind: KindGemini, ModelID: "gemini-1.5-flash"},
		{Name: "gemini-1.5-flash", Kind: KindGemini, ModelID: "gemini-1.5-flash"},
		{Name: "openai", Kind: KindOpenAI, ModelID: "gpt-4-turbo-preview"},
		{Name: "anthropic", Kind: KindAnthropic, ModelID: "claude-3-opus-20240229"},

		{Name: "llama-3.3_70B", Kind: KindChat, ModelID: "meta-llama/Llama-3.3-70B-Instruct"},
		{Name: "llama-3.1_8B", Kind: KindChat, ModelID: "meta-llama/Meta-Llama-3.1-8B-Instruct"},
		{Name: "llama-3.2_3B", Kind: KindChat, ModelID: "meta-llama/Llama-3.2-3B-Instruct"},
		{Name: "llama-3_70B", Kind: KindChat, ModelID: "meta-llama/Meta-Llama-3-70B-Instruct"},
		{Name: "llama-3.1_70B", Kind: KindChat, ModelID: "meta-llama/Meta-Llama-3.1-70B-Instruct"},
		{Name: "llama-3.1_405B", Kind: KindChat, ModelID: "meta-llama/Meta-Llama-3.1-405B-Instruct"},
		{Name: "hermes-3_70B", Kind: KindChat, ModelID: "NousResearch/Hermes-3-Llama-3.1-70B"},
		{Name: "deepseek-v3", Kind: KindChat, ModelID: "deepseek-ai/DeepSeek-V3"},
		{Name: "deepseek-v3_0324", Kind: KindChat, ModelID: "deepseek-ai/DeepSeek-V3-0324"},
		{Name: "deepseek-r1", Kind: KindChat, ModelID: "deepseek-ai/DeepSeek-R1"},
		{Name: "qwen2.5-coder_32B", Kind: KindChat, ModelID: "Qwen/Qwen2.5-Coder-32B-Instruct"},
		{Name: "qwen2.5_72B", Kind: KindChat, ModelID: "Qwen/Qwen2.5-72B-Instruct"},
		{Name: "qwq_32B", Kind: KindChat, ModelID: "Qwen/QwQ-32B"},
	}
}
