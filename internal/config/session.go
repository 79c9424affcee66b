package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// Session is the persisted login state: the backend's auth cookies. It is
// read directly from its file rather than through the viper singleton since
// it is written back by the client after every token refresh.
type Session struct {
	// APIURL is the backend the cookies were issued for.
	APIURL       string    `yaml:"api-url,omitempty"`
	AccessToken  string    `yaml:"access-token,omitempty"`
	RefreshToken string    `yaml:"refresh-token,omitempty"`
	UpdatedAt    time.Time `yaml:"updated-at,omitempty"`
}

// Empty reports whether the session carries no credentials.
func (s *Session) Empty() bool {
	return s.AccessToken == "" && s.RefreshToken == ""
}

// LoadSession reads the session file. A missing file yields an empty session.
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path from config
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Session{}, nil
		}
		return nil, fmt.Errorf("reading session %s: %w", path, err)
	}

	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing session %s: %w", path, err)
	}
	return &s, nil
}

// SaveSession writes the session file atomically with owner-only permissions.
func SaveSession(path string, s *Session) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing session %s: %w", path, err)
	}
	// atomic.WriteFile doesn't set permissions for new files
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("chmod session %s: %w", path, err)
	}
	return nil
}

// ClearSession removes the session file. Removing a missing file is not an error.
func ClearSession(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing session %s: %w", path, err)
	}
	return nil
}
