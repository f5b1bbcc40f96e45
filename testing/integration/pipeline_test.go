package integration

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	decomposer "github.com/VVISHUS/AI-Decomposer-DND-TODO-App"
	"github.com/VVISHUS/AI-Decomposer-DND-TODO-App/audit"
	"github.com/VVISHUS/AI-Decomposer-DND-TODO-App/providers"
	dt "github.com/VVISHUS/AI-Decomposer-DND-TODO-App/testing"
)

// chatUpstream serves an OpenAI-compatible chat endpoint that always answers
// with content, and counts the requests it sees.
func chatUpstream(t *testing.T, content string, status int) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":"upstream says no"}`))
			return
		}
		var req struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model": req.Model,
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"},
			},
			"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 34},
		})
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

// newPipeline wires the default registry, the provider factory pointed at
// endpoint, and a CSV audit logger writing under dir.
func newPipeline(t *testing.T, endpoint, dir string) (*decomposer.Dispatcher, *audit.Logger) {
	t.Helper()
	registry, err := decomposer.NewRegistry(decomposer.DefaultEntries()...)
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	logger := audit.New(audit.NewCSVSink(dir))
	t.Cleanup(func() { logger.Close() })

	factory := providers.NewFactory(providers.Config{ChatEndpoint: endpoint})
	return decomposer.NewDispatcher(registry, factory, decomposer.WithRecorder(logger)), logger
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return rows
}

func TestPipeline_ChatModelEndToEnd(t *testing.T) {
	reply := dt.NewDecompositionBuilder().
		WithNumbered("Book venue", "Call three venues", "Compare prices").
		WithNumbered("Send invites", "Draft guest list").
		Build()
	upstream, hits := chatUpstream(t, reply, http.StatusOK)
	dir := t.TempDir()
	d, logger := newPipeline(t, upstream.URL, dir)

	env := d.Decompose(context.Background(), decomposer.Request{Model: "deepseek-v3", Query: "Plan a birthday party"})
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if !env.Succeeded() {
		t.Fatalf("expected success, got %s: %s", env.Kind, env.Message)
	}
	if env.Data.Len() != 2 {
		t.Errorf("expected 2 subtasks, got %d", env.Data.Len())
	}
	if hits.Load() != 1 {
		t.Errorf("expected 1 upstream request, got %d", hits.Load())
	}

	rows := readCSV(t, filepath.Join(dir, audit.SuccessLogFile))
	if len(rows) != 2 {
		t.Fatalf("expected header and one row, got %d rows", len(rows))
	}
	if rows[1][1] != "deepseek-v3" || rows[1][2] != "Plan a birthday party" {
		t.Errorf("unexpected audit row %v", rows[1])
	}
	if _, err := os.Stat(filepath.Join(dir, audit.ErrorLogFile)); !os.IsNotExist(err) {
		t.Error("expected no error log for a successful request")
	}
}

func TestPipeline_FencedReplyNormalizes(t *testing.T) {
	reply := dt.NewDecompositionBuilder().WithNumbered("Clear the bed", "Pull weeds").BuildFenced()
	upstream, _ := chatUpstream(t, reply, http.StatusOK)
	d, _ := newPipeline(t, upstream.URL, t.TempDir())

	env := d.Decompose(context.Background(), decomposer.Request{Model: "qwq_32B", Query: "Plant a vegetable garden"})
	if !env.Succeeded() {
		t.Fatalf("expected success, got %s: %s", env.Kind, env.Message)
	}
	s, ok := env.Data.Get("Subtask1")
	if !ok || s.Title != "1. Clear the bed" {
		t.Errorf("unexpected subtask %+v", s)
	}
}

func TestPipeline_ProseReplyKeepsRawOutput(t *testing.T) {
	upstream, _ := chatUpstream(t, "I would rather not answer in JSON today.", http.StatusOK)
	dir := t.TempDir()
	d, logger := newPipeline(t, upstream.URL, dir)

	env := d.Decompose(context.Background(), decomposer.Request{Model: "deepseek-r1", Query: "Write a novel"})
	logger.Close()

	if env.Kind != decomposer.ErrorKindMalformedDecomposition {
		t.Fatalf("expected malformed_decomposition, got %s", env.Kind)
	}
	if env.RawOutput == nil || *env.RawOutput != "I would rather not answer in JSON today." {
		t.Errorf("expected raw output to be kept, got %v", env.RawOutput)
	}
	rows := readCSV(t, filepath.Join(dir, audit.ErrorLogFile))
	if len(rows) != 2 {
		t.Fatalf("expected header and one error row, got %d rows", len(rows))
	}
}

func TestPipeline_UpstreamRejection(t *testing.T) {
	upstream, _ := chatUpstream(t, "", http.StatusTooManyRequests)
	d, _ := newPipeline(t, upstream.URL, t.TempDir())

	env := d.Decompose(context.Background(), decomposer.Request{Model: "hermes-3_70B", Query: "Learn Spanish"})
	if env.Kind != decomposer.ErrorKindProvider {
		t.Fatalf("expected provider_error, got %s: %s", env.Kind, env.Message)
	}
	if env.RawOutput != nil {
		t.Error("provider errors carry no raw output")
	}
}

func TestPipeline_UnknownModelNeverReachesUpstream(t *testing.T) {
	upstream, hits := chatUpstream(t, "{}", http.StatusOK)
	dir := t.TempDir()
	d, logger := newPipeline(t, upstream.URL, dir)

	env := d.Decompose(context.Background(), decomposer.Request{Model: "gpt-17", Query: "Anything"})
	logger.Close()

	if env.Kind != decomposer.ErrorKindUnknownModel || env.Message != "Unsupported model: gpt-17" {
		t.Errorf("unexpected envelope %+v", env)
	}
	if hits.Load() != 0 {
		t.Errorf("expected no upstream requests, got %d", hits.Load())
	}
	rows := readCSV(t, filepath.Join(dir, audit.ErrorLogFile))
	if len(rows) != 2 || rows[1][3] != "Unsupported model: gpt-17" {
		t.Errorf("unexpected error rows %v", rows)
	}
}

func TestPipeline_SQLiteAudit(t *testing.T) {
	reply := dt.NewDecompositionBuilder().WithNumbered("Stretch").Build()
	upstream, _ := chatUpstream(t, reply, http.StatusOK)

	sink, err := audit.OpenSQLiteSink(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	logger := audit.New(sink)
	defer logger.Close()

	registry, _ := decomposer.NewRegistry(decomposer.DefaultEntries()...)
	d := decomposer.NewDispatcher(registry,
		providers.NewFactory(providers.Config{ChatEndpoint: upstream.URL}),
		decomposer.WithRecorder(logger),
	)

	d.Decompose(context.Background(), decomposer.Request{Model: "llama-3.1_8B", Query: "Run a 5k"})
	d.Decompose(context.Background(), decomposer.Request{Model: "missing", Query: "Run a 5k"})

	var successes, failures int
	if err := sink.DB().QueryRow(`SELECT COUNT(*) FROM query_success_log`).Scan(&successes); err != nil {
		t.Fatalf("count successes: %v", err)
	}
	if err := sink.DB().QueryRow(`SELECT COUNT(*) FROM query_error_log`).Scan(&failures); err != nil {
		t.Fatalf("count failures: %v", err)
	}
	if successes != 1 || failures != 1 {
		t.Errorf("expected 1 success and 1 failure, got %d and %d", successes, failures)
	}
}
