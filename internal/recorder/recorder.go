// Package recorder is the server's append-only status log: every line
// goes to the console, and best-effort to a persistent log file.
package recorder

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Recorder double-writes human-readable status lines to a console
// writer and, when available, a persistent log file. Recording never
// fails from the caller's point of view; it must not interrupt
// request processing.
type Recorder struct {
	mu      sync.Mutex
	console *log.Logger
	file    *os.File
	flog    *log.Logger
}

// New builds a Recorder writing to console and appending to the log
// file at path. If the file cannot be opened, that failure is logged
// once and the Recorder degrades to console-only for the rest of the
// process lifetime; it is never retried. An empty path skips the file
// half entirely.
func New(console io.Writer, path string) *Recorder {
	r := &Recorder{console: log.New(console, "", log.LstdFlags)}
	if path == "" {
		return r
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			r.console.Printf("error creating log directory: %v", err)
			return r
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		r.console.Printf("error creating log file: %v", err)
		return r
	}
	r.file = f
	r.flog = log.New(f, "", log.LstdFlags)
	return r
}

// Record writes message (plus a line terminator) to the console, and
// to the log file if one was opened.
func (r *Recorder) Record(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.console.Print(message)
	if r.flog != nil {
		r.flog.Print(message)
	}
}

// Recordf is Record with fmt formatting.
func (r *Recorder) Recordf(format string, args ...any) {
	r.Record(fmt.Sprintf(format, args...))
}

// RecordError records err with an "ERROR:" prefix.
func (r *Recorder) RecordError(err error) {
	r.Recordf("ERROR: %v", err)
}

// Close releases the log file, if any. Further Record calls degrade
// to console-only.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.flog = nil
	return err
}
