// Package txlog appends one JSON object per tool call to a transaction log.
// The file is opened in append mode for every record and closed again, so
// external rotation or truncation is picked up without restarting the server.
package txlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const fileMode = 0o644

// Entry is a single transaction record.
type Entry struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Tool      string          `json:"tool"`
	Package   string          `json:"package,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Command   string          `json:"command,omitempty"`
	Success   bool            `json:"success"`
	Output    string          `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	// DurationMS is the wall time of the call in milliseconds.
	DurationMS int64 `json:"duration_ms"`
}

// Log writes entries to an append-only JSON-lines file.
type Log struct {
	mu     sync.Mutex
	out    *appendWriter
	logger zerolog.Logger
}

// Open prepares a Log writing to path, creating parent directories and the
// file itself if needed.
func Open(path string) (*Log, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("txlog: resolve path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return nil, fmt.Errorf("txlog: create dir: %w", err)
	}

	f, err := os.OpenFile(abs, os.O_APPEND|os.O_CREATE|os.O_WRONLY, fileMode) //nolint:gosec // path is operator configuration
	if err != nil {
		return nil, fmt.Errorf("txlog: open: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("txlog: open: %w", err)
	}

	out := &appendWriter{path: abs}

	return &Log{out: out, logger: zerolog.New(out)}, nil
}

// Path returns the absolute path of the log file.
func (l *Log) Path() string { return l.out.path }

// Record appends e as one line.
func (l *Log) Record(_ context.Context, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	ev := l.logger.Log().
		Str("id", e.ID).
		Str("timestamp", ts.UTC().Format(time.RFC3339Nano)).
		Str("tool", e.Tool)

	if e.Package != "" {
		ev = ev.Str("package", e.Package)
	}

	switch {
	case len(e.Arguments) == 0:
	case json.Valid(e.Arguments):
		ev = ev.RawJSON("arguments", e.Arguments)
	default:
		ev = ev.Str("arguments", string(e.Arguments))
	}

	if e.Command != "" {
		ev = ev.Str("command", e.Command)
	}

	ev = ev.Bool("success", e.Success)

	if e.Success || e.Output != "" {
		ev = ev.Str("output", e.Output)
	}
	if e.Error != "" {
		ev = ev.Str("error", e.Error)
	}

	l.out.err = nil
	ev.Int64("duration_ms", e.DurationMS).Send()

	if l.out.err != nil {
		return fmt.Errorf("txlog: write: %w", l.out.err)
	}

	return nil
}

// Read parses every entry in the log at path. Lines whose arguments were not
// valid JSON are returned with Arguments holding the JSON-encoded string.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path) //nolint:gosec // path is caller-provided
	if err != nil {
		return nil, fmt.Errorf("txlog: read: %w", err)
	}
	defer func() { _ = f.Close() }()

	var entries []Entry

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}

		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("txlog: read: line %d: %w", line, err)
		}
		entries = append(entries, e)
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("txlog: read: %w", err)
	}

	return entries, nil
}

// appendWriter opens the file for each Write. zerolog emits a whole event in
// a single Write, so each record costs one open/append/close.
type appendWriter struct {
	path string
	err  error
}

func (w *appendWriter) Write(p []byte) (int, error) {
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, fileMode) //nolint:gosec // path is operator configuration
	if err != nil {
		w.err = err
		return 0, err
	}

	n, werr := f.Write(p)
	cerr := f.Close()

	if werr == nil {
		werr = cerr
	}
	w.err = werr

	return n, werr
}
