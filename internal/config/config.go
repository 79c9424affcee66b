// Package config holds deck's layered configuration: defaults, config.yaml,
// DECK_* environment variables and command-line flags bound by cmd/deck.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Config keys
const (
	KeyAPIURL     = "api.url"
	KeyAPITimeout = "api.timeout"

	KeyPollActiveInterval = "poll.active-interval"
	KeyFilterDebounce     = "filter.debounce"
	KeyBoardPageSize      = "board.page-size"

	KeyDragDistance       = "drag.distance"
	KeyDragTouchDelay     = "drag.touch-delay"
	KeyDragTouchTolerance = "drag.touch-tolerance"
	KeyDragCellWidth      = "drag.cell-width"
	KeyDragCellHeight     = "drag.cell-height"

	KeyStateDir     = "state-dir"
	KeySessionFile  = "session-file"
	KeyLocationFile = "location-file"
	KeyLogFile      = "log-file"

	KeyJSON    = "json"
	KeyVerbose = "verbose"
	KeyQuiet   = "quiet"

	KeyDemoAddr = "demo.addr"
)

// EnvPrefix is prepended to every environment override (DECK_API_URL, ...).
const EnvPrefix = "DECK"

// Initialize builds a fresh viper instance, discovering config.yaml in
// ./.deck/ and then in the user config directory.
func Initialize() error {
	return InitializeWithFile("")
}

// InitializeWithFile is Initialize with an explicit config file. An empty
// path falls back to discovery. A missing discovered file is not an error;
// a missing explicit file is.
func InitializeWithFile(path string) error {
	v = viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	registerDefaults()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName("config")
	if cwd, err := os.Getwd(); err == nil {
		v.AddConfigPath(filepath.Join(cwd, ".deck"))
	}
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "deck"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}
	return nil
}

func registerDefaults() {
	v.SetDefault(KeyAPIURL, "http://localhost:8000/api")
	// 0 leaves timeouts to the transport.
	v.SetDefault(KeyAPITimeout, "0s")

	v.SetDefault(KeyPollActiveInterval, "3s")
	v.SetDefault(KeyFilterDebounce, "300ms")
	v.SetDefault(KeyBoardPageSize, 50)

	v.SetDefault(KeyDragDistance, 8.0)
	v.SetDefault(KeyDragTouchDelay, "200ms")
	v.SetDefault(KeyDragTouchTolerance, 5.0)
	v.SetDefault(KeyDragCellWidth, 8.0)
	v.SetDefault(KeyDragCellHeight, 16.0)

	v.SetDefault(KeyStateDir, defaultStateDir())
	v.SetDefault(KeySessionFile, "")
	v.SetDefault(KeyLocationFile, "")
	v.SetDefault(KeyLogFile, "")

	v.SetDefault(KeyJSON, false)
	v.SetDefault(KeyVerbose, false)
	v.SetDefault(KeyQuiet, false)

	v.SetDefault(KeyDemoAddr, "127.0.0.1:8000")
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "deck")
	}
	return ".deck"
}

// Viper exposes the underlying instance so cmd/deck can bind flags.
func Viper() *viper.Viper {
	if v == nil {
		_ = Initialize()
	}
	return v
}

// Set overrides a value (highest precedence).
func Set(key string, value interface{}) {
	if v == nil {
		return
	}
	v.Set(key, value)
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetFloat64 retrieves a float configuration value
func GetFloat64(key string) float64 {
	if v == nil {
		return 0
	}
	return v.GetFloat64(key)
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// ConfigFileUsed returns the path of the loaded config file, if any.
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// AllSettings returns all settings as a map
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}

// StatePath resolves a file in the state directory unless override is set.
func StatePath(override, name string) string {
	if override != "" {
		return override
	}
	return filepath.Join(GetString(KeyStateDir), name)
}

// SessionPath returns the session cookie file location.
func SessionPath() string {
	return StatePath(GetString(KeySessionFile), "session.yaml")
}

// LocationPath returns the persisted navigation state file location.
func LocationPath() string {
	return StatePath(GetString(KeyLocationFile), "location")
}

// LogPath returns the file the TUI logs to.
func LogPath() string {
	return StatePath(GetString(KeyLogFile), "deck.log")
}

// DragSettings groups the drag activation thresholds.
type DragSettings struct {
	Distance       float64
	TouchDelay     time.Duration
	TouchTolerance float64
	CellWidth      float64
	CellHeight     float64
}

// GetDragSettings returns the configured drag thresholds.
func GetDragSettings() DragSettings {
	return DragSettings{
		Distance:       GetFloat64(KeyDragDistance),
		TouchDelay:     GetDuration(KeyDragTouchDelay),
		TouchTolerance: GetFloat64(KeyDragTouchTolerance),
		CellWidth:      GetFloat64(KeyDragCellWidth),
		CellHeight:     GetFloat64(KeyDragCellHeight),
	}
}
