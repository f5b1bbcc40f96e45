package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	decomposer "github.com/VVISHUS/AI-Decomposer-DND-TODO-App"
)

// CSV file names and headers.
const (
	SuccessLogFile = "query_success_log.csv"
	ErrorLogFile   = "query_error_log.csv"
)

var (
	successHeader = []string{"timestamp", "model", "query", "response"}
	errorHeader   = []string{"timestamp", "model", "query", "error"}
)

// CSVSink appends records to two CSV files in dir. Each file is created with
// its header on first use.
type CSVSink struct {
	mu      sync.Mutex
	success *csvStream
	failure *csvStream
}

// NewCSVSink creates a CSVSink rooted at dir. No file is touched until the
// first append.
func NewCSVSink(dir string) *CSVSink {
	return &CSVSink{
		success: &csvStream{path: filepath.Join(dir, SuccessLogFile), header: successHeader},
		failure: &csvStream{path: filepath.Join(dir, ErrorLogFile), header: errorHeader},
	}
}

// Name returns the sink identifier.
func (*CSVSink) Name() string {
	return "csv"
}

// Append writes rec as one row of the matching stream.
func (s *CSVSink) Append(_ context.Context, rec decomposer.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := rec.Timestamp.Format(time.RFC3339Nano)
	if rec.Success {
		return s.success.write([]string{ts, rec.Model, rec.Query, rec.Response})
	}
	return s.failure.write([]string{ts, rec.Model, rec.Query, rec.Error})
}

// Close closes both files.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err1 := s.success.close()
	err2 := s.failure.close()
	if err1 != nil {
		return err1
	}
	return err2
}

// csvStream is one lazily opened CSV file.
type csvStream struct {
	path   string
	header []string
	file   *os.File
	w      *csv.Writer
}

func (c *csvStream) open() error {
	if c.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat %s: %w", c.path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(c.header); err != nil {
			f.Close()
			return fmt.Errorf("write header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return fmt.Errorf("write header: %w", err)
		}
	}
	c.file, c.w = f, w
	return nil
}

func (c *csvStream) write(row []string) error {
	if err := c.open(); err != nil {
		return err
	}
	if err := c.w.Write(row); err != nil {
		return c.reset(fmt.Errorf("write %s: %w", c.path, err))
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return c.reset(fmt.Errorf("flush %s: %w", c.path, err))
	}
	return nil
}

// reset drops the handle so the next write reopens the file.
func (c *csvStream) reset(err error) error {
	c.close()
	return err
}

func (c *csvStream) close() error {
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file, c.w = nil, nil
	return err
}
