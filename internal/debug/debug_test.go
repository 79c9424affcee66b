package debug

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEnabled(t *testing.T) {
	tests := []struct {
		name    string
		env     bool
		verbose bool
		want    bool
	}{
		{"env set", true, false, true},
		{"verbose flag", false, true, true},
		{"neither", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldEnabled, oldVerbose := enabled, verboseMode
			defer func() { enabled, verboseMode = oldEnabled, oldVerbose }()

			enabled = tt.env
			verboseMode = tt.verbose

			if got := Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel(t *testing.T) {
	oldEnabled, oldVerbose, oldQuiet := enabled, verboseMode, quietMode
	defer func() { enabled, verboseMode, quietMode = oldEnabled, oldVerbose, oldQuiet }()

	enabled, verboseMode, quietMode = false, false, false
	if got := Level(); got != slog.LevelInfo {
		t.Errorf("Level() = %v, want info", got)
	}
	quietMode = true
	if got := Level(); got != slog.LevelWarn {
		t.Errorf("Level() quiet = %v, want warn", got)
	}
	verboseMode = true
	if got := Level(); got != slog.LevelDebug {
		t.Errorf("Level() verbose = %v, want debug (verbose wins over quiet)", got)
	}
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	oldEnabled, oldVerbose, oldQuiet := enabled, verboseMode, quietMode
	defer func() { enabled, verboseMode, quietMode = oldEnabled, oldVerbose, oldQuiet }()
	enabled, verboseMode, quietMode = false, false, false

	var buf bytes.Buffer
	log := NewLogger(&buf)
	log.Debug("hidden")
	log.Info("shown", "key", "value")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record leaked at info level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "key=value") {
		t.Errorf("info record missing: %q", out)
	}
}

func TestPrintNormal(t *testing.T) {
	oldQuiet := quietMode
	defer func() { quietMode = oldQuiet }()

	var buf bytes.Buffer
	quietMode = false
	PrintNormal(&buf, "hello %s\n", "world")
	if buf.String() != "hello world\n" {
		t.Errorf("PrintNormal() wrote %q", buf.String())
	}

	buf.Reset()
	quietMode = true
	PrintNormal(&buf, "hello\n")
	if buf.Len() != 0 {
		t.Errorf("PrintNormal() in quiet mode wrote %q", buf.String())
	}
}

func TestLogEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "events.log")
	SetEventLog(path)
	defer SetEventLog("")

	oldNow := now
	now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	defer func() { now = oldNow }()

	LogEvent("status_changed", 42, "todo -> done")
	LogEvent("created", 0, "multi\nline")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading events.log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), data)
	}
	if want := "2025-03-01T12:00:00Z|status_changed|42|todo -> done"; lines[0] != want {
		t.Errorf("line 0 = %q, want %q", lines[0], want)
	}
	if want := "2025-03-01T12:00:00Z|created|none|multi line"; lines[1] != want {
		t.Errorf("line 1 = %q, want %q", lines[1], want)
	}
}

func TestLogEventDisabled(t *testing.T) {
	SetEventLog("")
	// Must not panic or create anything.
	LogEvent("created", 1, "x")
}

func TestOpenLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "deck.log")
	log, closer, err := OpenLogFile(path)
	if err != nil {
		t.Fatalf("OpenLogFile() error = %v", err)
	}
	log.Warn("written")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(data), "written") {
		t.Errorf("log file = %q, want record", data)
	}
}
