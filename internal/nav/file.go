package nav

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/natefinch/atomic"
)

// FileLocation is a Location persisted to a one-line state file. Edits to
// the file by another process (or by hand) arrive as Navigate; the
// location's own writes are recognized and ignored.
type FileLocation struct {
	*Memory

	path   string
	logger *slog.Logger

	mu          sync.Mutex
	lastWritten string
	watcher     *fsnotify.Watcher
	done        chan struct{}
}

// OpenFile loads the location stored at path. A missing file is an empty
// location.
func OpenFile(path string, logger *slog.Logger) (*FileLocation, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	raw, err := readState(path)
	if err != nil {
		return nil, err
	}
	values, err := ParseQuery(raw)
	if err != nil {
		logger.Warn("ignoring unreadable location file", "path", path, "error", err)
		values = url.Values{}
	}
	return &FileLocation{
		Memory:      NewMemory(values),
		path:        path,
		logger:      logger,
		lastWritten: raw,
	}, nil
}

func readState(path string) (string, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path from config
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading location %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Path returns the state file.
func (f *FileLocation) Path() string { return f.path }

// Replace updates the state and writes it to the file.
func (f *FileLocation) Replace(values url.Values) {
	f.Memory.Replace(values)
	if err := f.write(values.Encode()); err != nil {
		f.logger.Warn("failed to persist location", "path", f.path, "error", err)
	}
}

func (f *FileLocation) write(encoded string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(f.path), 0o750); err != nil {
		return err
	}
	f.lastWritten = encoded
	return atomic.WriteFile(f.path, strings.NewReader(encoded+"\n"))
}

// Watch starts following external edits of the state file until Close.
func (f *FileLocation) Watch() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watcher != nil {
		return nil
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating location dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	// Watch the directory: atomic writes replace the file by rename.
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	f.watcher = w
	f.done = make(chan struct{})
	go f.loop(w, f.done)
	return nil
}

func (f *FileLocation) loop(w *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	name := filepath.Clean(f.path)
	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				f.reload()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			f.logger.Warn("location watcher error", "error", err)
		}
	}
}

// reload applies the file content as an external navigation unless it is
// what this location wrote last.
func (f *FileLocation) reload() {
	raw, err := readState(f.path)
	if err != nil {
		f.logger.Warn("failed to read location", "path", f.path, "error", err)
		return
	}
	f.mu.Lock()
	own := raw == f.lastWritten
	f.mu.Unlock()
	if own {
		return
	}
	values, err := ParseQuery(raw)
	if err != nil {
		f.logger.Warn("ignoring unreadable location", "path", f.path, "error", err)
		return
	}
	f.logger.Debug("external navigation", "query", raw)
	f.Memory.Navigate(values)
}

// Navigate applies an external change and persists it.
func (f *FileLocation) Navigate(values url.Values) {
	if err := f.write(values.Encode()); err != nil {
		f.logger.Warn("failed to persist location", "path", f.path, "error", err)
	}
	f.Memory.Navigate(values)
}

// Close stops watching.
func (f *FileLocation) Close() error {
	f.mu.Lock()
	w, done := f.watcher, f.done
	f.watcher = nil
	f.mu.Unlock()
	if w == nil {
		return nil
	}
	err := w.Close()
	<-done
	return err
}
