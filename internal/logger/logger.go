// Package logger builds the process-wide zerolog logger: console and/or
// file output, with credential redaction on every sink.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration.
type Config struct {
	Level   string // debug, info, warn, error
	File    string // log file path, empty for console only
	Console bool
	Pretty  bool // human-readable console format
}

// Logger wraps the configured zerolog.Logger and its file handle.
type Logger struct {
	zerolog.Logger
	file *os.File
}

// New creates a logger from config. Every sink is wrapped in the
// credential redactor.
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer

	if cfg.Console {
		var console io.Writer = os.Stdout
		if cfg.Pretty {
			console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		}
		writers = append(writers, console)
	}

	var file *os.File
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, file)
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stdout
	case 1:
		writer = writers[0]
	default:
		writer = io.MultiWriter(writers...)
	}

	l := zerolog.New(&redactingWriter{writer: writer}).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &Logger{Logger: l, file: file}, nil
}

// Close closes the log file if one is open.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// credentialPatterns match API keys and tokens that must never reach logs.
var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`sk-or-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),
	regexp.MustCompile(`(?i)api[_-]?key["\s:=]+[a-zA-Z0-9._-]{16,}`),
	regexp.MustCompile(`(?i)secret["\s:=]+[^\s"]+`),
}

// Redact replaces credential material in s.
func Redact(s string) string {
	for _, pattern := range credentialPatterns {
		s = pattern.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

type redactingWriter struct {
	writer io.Writer
}

func (w *redactingWriter) Write(p []byte) (int, error) {
	redacted := Redact(string(p))
	if _, err := w.writer.Write([]byte(redacted)); err != nil {
		return 0, err
	}
	// Report the original length so zerolog does not see a short write.
	return len(p), nil
}
