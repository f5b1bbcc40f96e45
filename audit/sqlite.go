package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	decomposer "github.com/VVISHUS/AI-Decomposer-DND-TODO-App"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS query_success_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp  TEXT NOT NULL,
	request_id TEXT NOT NULL,
	model      TEXT NOT NULL,
	query      TEXT NOT NULL,
	response   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS query_error_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp  TEXT NOT NULL,
	request_id TEXT NOT NULL,
	model      TEXT NOT NULL,
	query      TEXT NOT NULL,
	error      TEXT NOT NULL
);`

// SQLiteSink appends records to the query_success_log and query_error_log
// tables. The schema is created on first use.
type SQLiteSink struct {
	db     *sql.DB
	mu     sync.Mutex
	inited bool
}

// OpenSQLiteSink opens the database at dsn (a file path or ":memory:").
func OpenSQLiteSink(dsn string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	// One connection keeps writes ordered and makes ":memory:" a single database.
	db.SetMaxOpenConns(1)
	return &SQLiteSink{db: db}, nil
}

// Name returns the sink identifier.
func (*SQLiteSink) Name() string {
	return "sqlite"
}

// DB exposes the underlying handle for inspection.
func (s *SQLiteSink) DB() *sql.DB {
	return s.db
}

func (s *SQLiteSink) ensureSchema(ctx context.Context) error {
	if s.inited {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	s.inited = true
	return nil
}

// Append inserts rec into the matching table.
func (s *SQLiteSink) Append(ctx context.Context, rec decomposer.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	ts := rec.Timestamp.Format(time.RFC3339Nano)
	var err error
	if rec.Success {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO query_success_log (timestamp, request_id, model, query, response) VALUES (?, ?, ?, ?, ?)`,
			ts, rec.RequestID, rec.Model, rec.Query, rec.Response)
	} else {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO query_error_log (timestamp, request_id, model, query, error) VALUES (?, ?, ?, ?, ?)`,
			ts, rec.RequestID, rec.Model, rec.Query, rec.Error)
	}
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
