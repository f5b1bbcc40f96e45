// Package audit persists one record per decomposition attempt.
//
// A Logger serializes appends to a Sink and never reports sink failures to
// its caller; they are logged through zap and emitted as the
// decompose.audit.append.failed hook instead.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"

	decomposer "github.com/VVISHUS/AI-Decomposer-DND-TODO-App"
)

// Sink is an append-only destination with separate success and error streams.
type Sink interface {
	Append(ctx context.Context, rec decomposer.AuditRecord) error
	Close() error
	Name() string
}

// Clock supplies record timestamps.
type Clock interface {
	Now() time.Time
}

// Logger implements decomposer.Recorder on top of a Sink.
type Logger struct {
	sink  Sink
	clock Clock
	log   *zap.Logger
	mu    sync.Mutex
}

// Option configures a Logger.
type Option func(*Logger)

// WithClock overrides the timestamp source.
func WithClock(clock Clock) Option {
	return func(l *Logger) {
		l.clock = clock
	}
}

// WithLogger sets the zap logger used for out-of-band failure reports.
func WithLogger(log *zap.Logger) Option {
	return func(l *Logger) {
		l.log = log
	}
}

// New creates a Logger writing to sink.
func New(sink Sink, opts ...Option) *Logger {
	l := &Logger{
		sink:  sink,
		clock: clockz.RealClock,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends rec. A zero timestamp is stamped with the logger's clock.
// Failures, including panics in the sink, are swallowed and reported.
func (l *Logger) Record(ctx context.Context, rec decomposer.AuditRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.clock.Now()
	}

	if err := l.append(ctx, rec); err != nil {
		l.log.Warn("audit append failed",
			zap.String("sink", l.sink.Name()),
			zap.String("request_id", rec.RequestID),
			zap.String("model", rec.Model),
			zap.Error(err),
		)
		capitan.Error(ctx, decomposer.AuditAppendFailed,
			decomposer.SinkKey.Field(l.sink.Name()),
			decomposer.RequestIDKey.Field(rec.RequestID),
			decomposer.ErrorKey.Field(err.Error()),
		)
	}
}

func (l *Logger) append(ctx context.Context, rec decomposer.AuditRecord) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return l.sink.Append(ctx, rec)
}

// Close closes the underlying sink.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sink.Close()
}
