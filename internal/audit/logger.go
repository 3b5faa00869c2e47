// Package audit records one entry per gateway request.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nikhilbhutani/crmgateway/internal/models"
)

// Sink persists audit entries.
type Sink interface {
	Record(ctx context.Context, entry *models.AuditLogEntry) error
}

// Logger writes entries to a Sink off the request path. A failed write is
// reported through slog and never reaches the caller.
type Logger struct {
	sink    Sink
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewLogger(sink Sink, timeout time.Duration) *Logger {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Logger{sink: sink, timeout: timeout}
}

// Log schedules entry for writing and returns immediately.
func (l *Logger) Log(entry models.AuditLogEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.DurationMs < 0 {
		entry.DurationMs = 0
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("audit log write panicked", "panic", r, "method", entry.Method, "path", entry.Path)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()

		if err := l.sink.Record(ctx, &entry); err != nil {
			slog.Error("audit log write failed",
				"error", err,
				"method", entry.Method,
				"path", entry.Path,
				"status", entry.StatusCode,
			)
		}
	}()
}

// Close blocks until every scheduled entry has been written or given up on.
func (l *Logger) Close() {
	l.wg.Wait()
}
