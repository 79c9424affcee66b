// Package debug owns deck's logging switches: the slog logger handed to every
// component, verbose/quiet output helpers and the mutation event log.
package debug

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var (
	enabled     = os.Getenv("DECK_DEBUG") != ""
	verboseMode = false
	quietMode   = false

	logMutex     sync.Mutex
	eventLogPath string
	now          = time.Now
)

// Enabled reports whether debug output is on (DECK_DEBUG or --verbose).
func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose enables verbose/debug output
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// SetQuiet enables quiet mode (suppress non-essential output)
func SetQuiet(quiet bool) {
	quietMode = quiet
}

// IsQuiet returns true if quiet mode is enabled
func IsQuiet() bool {
	return quietMode
}

// Level returns the slog level matching the current switches.
func Level() slog.Level {
	switch {
	case Enabled():
		return slog.LevelDebug
	case quietMode:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// NewLogger returns a text logger writing to w at Level().
func NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: Level()}))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OpenLogFile opens path for appending and returns a logger on it. The TUI
// owns the terminal, so it logs here instead of stderr.
func OpenLogFile(path string) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, nil, fmt.Errorf("creating log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 - path from config
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return NewLogger(f), f, nil
}

// Logf writes to stderr when debug output is on.
func Logf(format string, args ...interface{}) {
	if Enabled() {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// PrintNormal prints output unless quiet mode is enabled
func PrintNormal(w io.Writer, format string, args ...interface{}) {
	if !quietMode {
		fmt.Fprintf(w, format, args...)
	}
}

// SetEventLog sets the events.log file LogEvent appends to. Empty disables it.
func SetEventLog(path string) {
	logMutex.Lock()
	defer logMutex.Unlock()
	eventLogPath = path
}

// LogEvent appends a mutation to the event log.
// Format: TIMESTAMP|EVENT|ISSUE_ID|DETAILS
func LogEvent(event string, issueID int64, details string) {
	logMutex.Lock()
	defer logMutex.Unlock()

	if eventLogPath == "" {
		return
	}

	id := "none"
	if issueID != 0 {
		id = fmt.Sprintf("%d", issueID)
	}
	details = strings.ReplaceAll(details, "\n", " ")
	entry := fmt.Sprintf("%s|%s|%s|%s\n", now().UTC().Format(time.RFC3339), event, id, details)

	_ = os.MkdirAll(filepath.Dir(eventLogPath), 0o750)
	f, err := os.OpenFile(eventLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 - path from config
	if err != nil {
		// Silent fail - logging must not interrupt a mutation
		return
	}
	defer f.Close()
	_, _ = f.WriteString(entry)
}
