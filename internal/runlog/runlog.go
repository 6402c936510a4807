// Package runlog keeps the transient log of one worker run.
//
// Everything the worker logs, and everything its external action modules
// print, is appended to one file under <log_dir>/runs. The log counts error
// markers (ERROR-level records and output lines starting with "ERROR") so
// the executor can tell whether a generic action failed silently. The file
// is removed when the run ends.
package runlog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sitemigrate/internal/logging"
)

// ErrorPrefix marks an error line in action output.
const ErrorPrefix = "ERROR"

// Mark is a position in the log.
type Mark struct {
	lines  int
	errors int
}

// Log is the per-run log file.
type Log struct {
	path  string
	runID string

	mu     sync.Mutex
	file   *os.File
	lines  []string
	errors int
	closed bool
}

// Open creates a new run log for (linkID, siteID) in dir.
func Open(dir, linkID, siteID string) (*Log, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("run log directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure run log directory: %w", err)
	}
	runID := uuid.NewString()
	name := fmt.Sprintf("%s-%s-%s.log", sanitize(linkID), sanitize(siteID), runID[:8])
	path := filepath.Join(dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	return &Log{path: path, runID: runID, file: file}, nil
}

// Path returns the file location.
func (l *Log) Path() string { return l.path }

// RunID returns the unique identifier of this run.
func (l *Log) RunID() string { return l.runID }

// Mark returns the current position.
func (l *Log) Mark() Mark {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Mark{lines: len(l.lines), errors: l.errors}
}

// ErrorsSince returns how many error markers were written after m.
func (l *Log) ErrorsSince(m Mark) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errors - m.errors
}

// Since returns the lines written after m.
func (l *Log) Since(m Mark) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if m.lines >= len(l.lines) {
		return nil
	}
	return append([]string(nil), l.lines[m.lines:]...)
}

// Lines returns every line written so far.
func (l *Log) Lines() []string {
	return l.Since(Mark{})
}

// Text returns the whole log as one string.
func (l *Log) Text() string {
	lines := l.Lines()
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// Handler returns a slog.Handler that writes records into the run log.
func (l *Log) Handler(level slog.Leveler) slog.Handler {
	return &countingHandler{
		log:   l,
		inner: logging.NewConsoleHandler(lineSink{log: l}, level),
	}
}

// Writer returns an io.Writer for external command output. Lines beginning
// with ErrorPrefix count as error markers.
func (l *Log) Writer(prefix string) io.Writer {
	return &outputWriter{log: l, prefix: prefix}
}

// Close flushes and closes the file; the recorded lines stay readable.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

// Remove closes the log and deletes the file.
func (l *Log) Remove() error {
	_ = l.Close()
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove run log: %w", err)
	}
	return nil
}

func (l *Log) appendLine(line string, isError bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, line)
	if isError {
		l.errors++
	}
	if !l.closed {
		_, _ = l.file.WriteString(line + "\n")
	}
}

func (l *Log) countError() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors++
}

// lineSink receives complete formatted records from the console handler.
type lineSink struct {
	log *Log
}

func (s lineSink) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		s.log.appendLine(line, false)
	}
	return len(p), nil
}

type countingHandler struct {
	log   *Log
	inner slog.Handler
}

func (h *countingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelError || h.inner.Enabled(ctx, level)
}

func (h *countingHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level >= slog.LevelError {
		h.log.countError()
	}
	if !h.inner.Enabled(ctx, record.Level) {
		return nil
	}
	return h.inner.Handle(ctx, record)
}

func (h *countingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &countingHandler{log: h.log, inner: h.inner.WithAttrs(attrs)}
}

func (h *countingHandler) WithGroup(name string) slog.Handler {
	return &countingHandler{log: h.log, inner: h.inner.WithGroup(name)}
}

type outputWriter struct {
	log     *Log
	prefix  string
	mu      sync.Mutex
	pending bytes.Buffer
}

func (w *outputWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending.Write(p)
	for {
		data := w.pending.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		w.emit(string(data[:idx]))
		w.pending.Next(idx + 1)
	}
	return len(p), nil
}

// Flush writes any trailing partial line.
func (w *outputWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending.Len() > 0 {
		w.emit(w.pending.String())
		w.pending.Reset()
	}
}

func (w *outputWriter) emit(line string) {
	line = strings.TrimRight(line, "\r")
	isError := strings.HasPrefix(strings.TrimSpace(line), ErrorPrefix)
	stamped := time.Now().UTC().Format(time.RFC3339)
	if w.prefix != "" {
		stamped += " " + w.prefix + ":"
	}
	w.log.appendLine(stamped+" "+line, isError)
}

// Flusher is implemented by writers returned from Writer.
type Flusher interface {
	Flush()
}

func sanitize(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, value)
}
