// Package audit records staged-change and review events as JSON lines for
// compliance and forensics.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wardenhq/warden/pkg/observability"
)

// Logger is the audit sink interface
type Logger interface {
	LogEvent(ctx context.Context, event *Event) error
	Close() error
}

// FileLogger implements audit logging to an append-only JSON-lines file
type FileLogger struct {
	basePath string
	mu       sync.Mutex
	file     *os.File
	encoder  *json.Encoder
	maxSize  int64
	maxFiles int
}

// FileLoggerConfig configures the file logger
type FileLoggerConfig struct {
	BasePath string // Base directory for audit logs
	MaxSize  int64  // Max file size in bytes before rotation (default: 100MB)
	MaxFiles int    // Max number of rotated files to keep (default: 10)
}

// NewFileLogger creates a new file-based audit logger
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	logger := &FileLogger{
		basePath: config.BasePath,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
	}
	if logger.maxSize == 0 {
		logger.maxSize = 100 * 1024 * 1024
	}
	if logger.maxFiles == 0 {
		logger.maxFiles = 10
	}

	if err := logger.openLogFile(); err != nil {
		return nil, err
	}
	return logger, nil
}

// LogEvent writes one audit event. The timestamp and request context are
// filled in when absent.
func (l *FileLogger) LogEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.SessionID == "" {
		event.SessionID = observability.GetSessionID(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = observability.GetRequestID(ctx)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotateIfNeeded(); err != nil {
		return err
	}
	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// Close closes the underlying log file
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// openLogFile opens or creates the current log file
func (l *FileLogger) openLogFile() error {
	filename := filepath.Join(l.basePath, "audit.log")
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}
	l.file = file
	l.encoder = json.NewEncoder(file)
	return nil
}

// rotateIfNeeded rotates the current file once it exceeds the size limit
func (l *FileLogger) rotateIfNeeded() error {
	info, err := l.file.Stat()
	if err != nil || info.Size() < l.maxSize {
		return nil
	}

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close audit log file: %w", err)
	}

	current := filepath.Join(l.basePath, "audit.log")
	rotated := filepath.Join(l.basePath, fmt.Sprintf("audit-%s.log", time.Now().UTC().Format("20060102-150405")))
	if err := os.Rename(current, rotated); err != nil {
		return fmt.Errorf("failed to rotate audit log file: %w", err)
	}

	l.pruneRotated()
	return l.openLogFile()
}

// pruneRotated keeps only the newest maxFiles rotated logs
func (l *FileLogger) pruneRotated() {
	matches, err := filepath.Glob(filepath.Join(l.basePath, "audit-*.log"))
	if err != nil || len(matches) <= l.maxFiles {
		return
	}
	// Glob output is sorted; the timestamped names sort oldest first.
	for _, stale := range matches[:len(matches)-l.maxFiles] {
		os.Remove(stale)
	}
}

// NopLogger discards all audit events
type NopLogger struct{}

// LogEvent implements Logger
func (NopLogger) LogEvent(ctx context.Context, event *Event) error { return nil }

// Close implements Logger
func (NopLogger) Close() error { return nil }
