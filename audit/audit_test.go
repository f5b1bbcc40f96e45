package audit

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	decomposer "github.com/VVISHUS/AI-Decomposer-DND-TODO-App"
)

var fixedTime = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

func successRecord(id string) decomposer.AuditRecord {
	return decomposer.AuditRecord{
		RequestID: id,
		Model:     "openai",
		Query:     "Plan a party, with cake",
		Success:   true,
		Response:  `{"Subtask1":{"title":"1. Plan","steps":["a"]}}`,
	}
}

func errorRecord(id string) decomposer.AuditRecord {
	return decomposer.AuditRecord{
		RequestID: id,
		Model:     "gpt-x",
		Query:     "Write \"quoted\" text\non two lines",
		Error:     "Unsupported model: gpt-x",
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVSinkWritesHeadersAndRows(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := filepath.Join(t.TempDir(), "logs")
	logger := New(NewCSVSink(dir), WithClock(clockz.NewFakeClockAt(fixedTime)))

	logger.Record(context.Background(), successRecord("r1"))
	logger.Record(context.Background(), errorRecord("r2"))
	require.NoError(t, logger.Close())

	success := readCSV(t, filepath.Join(dir, SuccessLogFile))
	require.Len(t, success, 2)
	assert.Equal(t, []string{"timestamp", "model", "query", "response"}, success[0])
	assert.Equal(t, []string{fixedTime.Format(time.RFC3339Nano), "openai", "Plan a party, with cake", `{"Subtask1":{"title":"1. Plan","steps":["a"]}}`}, success[1])

	failure := readCSV(t, filepath.Join(dir, ErrorLogFile))
	require.Len(t, failure, 2)
	assert.Equal(t, []string{"timestamp", "model", "query", "error"}, failure[0])
	assert.Equal(t, "Write \"quoted\" text\non two lines", failure[1][2])
	assert.Equal(t, "Unsupported model: gpt-x", failure[1][3])
}

func TestCSVSinkAppendsToExistingFile(t *testing.T) {
	dir := t.TempDir()

	first := NewCSVSink(dir)
	require.NoError(t, first.Append(context.Background(), successRecord("a")))
	require.NoError(t, first.Close())

	second := NewCSVSink(dir)
	require.NoError(t, second.Append(context.Background(), successRecord("b")))
	require.NoError(t, second.Close())

	rows := readCSV(t, filepath.Join(dir, SuccessLogFile))
	assert.Len(t, rows, 3, "header must be written once")

	_, err := os.Stat(filepath.Join(dir, ErrorLogFile))
	assert.True(t, os.IsNotExist(err), "error log must not exist before its first record")
}

func TestCSVSinkConcurrentAppends(t *testing.T) {
	const n = 100
	dir := t.TempDir()
	logger := New(NewCSVSink(dir))

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				logger.Record(context.Background(), successRecord("s"))
			} else {
				logger.Record(context.Background(), errorRecord("e"))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, logger.Close())

	success := readCSV(t, filepath.Join(dir, SuccessLogFile))
	failure := readCSV(t, filepath.Join(dir, ErrorLogFile))
	assert.Len(t, success, n/2+1)
	assert.Len(t, failure, n/2+1)
	for _, row := range success[1:] {
		assert.Len(t, row, 4)
		assert.Equal(t, "openai", row[1])
	}
}

func TestCSVSinkRecoversAfterUnavailableDir(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "logs")
	require.NoError(t, os.WriteFile(blocker, []byte("not a dir"), 0o644))

	sink := NewCSVSink(blocker)
	err := sink.Append(context.Background(), successRecord("a"))
	require.Error(t, err)

	require.NoError(t, os.Remove(blocker))
	require.NoError(t, sink.Append(context.Background(), successRecord("b")))
	require.NoError(t, sink.Close())

	rows := readCSV(t, filepath.Join(blocker, SuccessLogFile))
	assert.Len(t, rows, 2)
}

func TestSQLiteSink(t *testing.T) {
	sink, err := OpenSQLiteSink(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	logger := New(sink, WithClock(clockz.NewFakeClockAt(fixedTime)))

	logger.Record(context.Background(), successRecord("r1"))
	logger.Record(context.Background(), errorRecord("r2"))
	logger.Record(context.Background(), successRecord("r3"))

	var count int
	require.NoError(t, sink.DB().QueryRow(`SELECT COUNT(*) FROM query_success_log`).Scan(&count))
	assert.Equal(t, 2, count)

	var ts, model, query, msg string
	require.NoError(t, sink.DB().QueryRow(
		`SELECT timestamp, model, query, error FROM query_error_log WHERE request_id = ?`, "r2",
	).Scan(&ts, &model, &query, &msg))
	assert.Equal(t, fixedTime.Format(time.RFC3339Nano), ts)
	assert.Equal(t, "gpt-x", model)
	assert.Equal(t, "Unsupported model: gpt-x", msg)

	require.NoError(t, logger.Close())
}

func TestSQLiteSinkConcurrentAppends(t *testing.T) {
	const n = 40
	sink, err := OpenSQLiteSink(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer sink.Close()
	logger := New(sink)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Record(context.Background(), successRecord("s"))
		}()
	}
	wg.Wait()

	var count int
	require.NoError(t, sink.DB().QueryRow(`SELECT COUNT(*) FROM query_success_log`).Scan(&count))
	assert.Equal(t, n, count)
}

type failingSink struct {
	err   error
	panic bool
}

func (s *failingSink) Append(context.Context, decomposer.AuditRecord) error {
	if s.panic {
		panic("disk on fire")
	}
	return s.err
}
func (*failingSink) Close() error { return nil }
func (*failingSink) Name() string { return "failing" }

func TestLoggerSwallowsSinkFailures(t *testing.T) {
	tests := []struct {
		name string
		sink *failingSink
	}{
		{"error", &failingSink{err: errors.New("disk full")}},
		{"panic", &failingSink{panic: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.WarnLevel)
			logger := New(tt.sink, WithLogger(zap.New(core)))

			assert.NotPanics(t, func() {
				logger.Record(context.Background(), successRecord("r1"))
			})

			entries := logs.FilterMessage("audit append failed").All()
			require.Len(t, entries, 1)
			fields := entries[0].ContextMap()
			assert.Equal(t, "failing", fields["sink"])
			assert.Equal(t, "r1", fields["request_id"])
		})
	}
}

type captureSink struct {
	mu      sync.Mutex
	records []decomposer.AuditRecord
}

func (s *captureSink) Append(_ context.Context, rec decomposer.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}
func (*captureSink) Close() error { return nil }
func (*captureSink) Name() string { return "capture" }

func TestLoggerStampsTimestamps(t *testing.T) {
	clock := clockz.NewFakeClockAt(fixedTime)
	sink := &captureSink{}
	logger := New(sink, WithClock(clock))

	logger.Record(context.Background(), successRecord("a"))
	clock.Advance(time.Minute)
	logger.Record(context.Background(), successRecord("b"))

	preset := successRecord("c")
	preset.Timestamp = fixedTime.Add(-time.Hour)
	logger.Record(context.Background(), preset)

	require.Len(t, sink.records, 3)
	assert.Equal(t, fixedTime, sink.records[0].Timestamp)
	assert.Equal(t, fixedTime.Add(time.Minute), sink.records[1].Timestamp)
	assert.Equal(t, fixedTime.Add(-time.Hour), sink.records[2].Timestamp)
}

func TestLoggerImplementsRecorder(t *testing.T) {
	var _ decomposer.Recorder = New(&captureSink{})
}
