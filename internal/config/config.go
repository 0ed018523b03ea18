// Package config loads, validates and persists waveline's configuration,
// following XDG Base Directory conventions for file discovery.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// FileLoggingConfig controls rotating log files.
type FileLoggingConfig struct {
	Enabled    bool   `json:"enabled"`
	Filename   string `json:"filename"` // empty = XDG cache path
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// TrackingConfig controls the playback event journal.
type TrackingConfig struct {
	Enabled      bool   `json:"enabled"`
	DatabasePath string `json:"database_path"` // empty = XDG data path
}

// Config is the waveline player configuration.
type Config struct {
	Volume          float64            `json:"volume"`            // playback gain, 0.0 to 1.0
	Device          string             `json:"device"`            // preferred output device ID, empty = default
	Driver          string             `json:"driver"`            // output driver (auto, malgo, oto, null)
	BufferMs        int                `json:"buffer_ms"`         // ring buffer window
	EventIntervalMs int                `json:"event_interval_ms"` // position update cadence
	LogLevel        string             `json:"log_level"`         // debug, info, warn, error
	FileLogging     *FileLoggingConfig `json:"file_logging,omitempty"`
	Tracking        *TrackingConfig    `json:"tracking,omitempty"`
}

// Manager handles loading, saving and validating configuration.
type Manager struct {
	fs  afero.Fs
	xdg *XDGDirs
}

// NewManager creates a configuration manager on the OS filesystem.
func NewManager() *Manager {
	return NewManagerWithFs(afero.NewOsFs())
}

// NewManagerWithFs creates a configuration manager on the given filesystem.
func NewManagerWithFs(fs afero.Fs) *Manager {
	slog.Debug("creating config manager")
	return &Manager{fs: fs, xdg: NewXDGDirs()}
}

// Default returns the default configuration.
func (m *Manager) Default() *Config {
	cfg := &Config{
		Volume:          0.8,
		Device:          "",
		Driver:          "auto",
		BufferMs:        300,
		EventIntervalMs: 150,
		LogLevel:        "warn",
		FileLogging: &FileLoggingConfig{
			Enabled:    false,
			Filename:   "",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Tracking: &TrackingConfig{
			Enabled:      false,
			DatabasePath: "",
		},
	}

	slog.Debug("generated default config",
		"volume", cfg.Volume,
		"driver", cfg.Driver,
		"buffer_ms", cfg.BufferMs,
		"log_level", cfg.LogLevel)
	return cfg
}

// LoadFromFile loads configuration from a specific file.
func (m *Manager) LoadFromFile(filePath string) (*Config, error) {
	slog.Debug("loading config from file", "file_path", filePath)

	data, err := afero.ReadFile(m.fs, filePath)
	if err != nil {
		slog.Error("failed to read config file", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Missing fields fall back to defaults rather than zero values.
	cfg := m.Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		slog.Error("failed to parse config JSON", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := m.Validate(cfg); err != nil {
		slog.Error("config validation failed", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	slog.Debug("config loaded",
		"file_path", filePath,
		"volume", cfg.Volume,
		"driver", cfg.Driver,
		"device", cfg.Device)
	return cfg, nil
}

// SaveToFile saves configuration to a specific file.
func (m *Manager) SaveToFile(cfg *Config, filePath string) error {
	slog.Debug("saving config to file", "file_path", filePath)

	if err := m.Validate(cfg); err != nil {
		return fmt.Errorf("cannot save invalid config: %w", err)
	}

	if err := m.fs.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		slog.Error("failed to create config directory", "error", err)
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := afero.WriteFile(m.fs, filePath, data, 0644); err != nil {
		slog.Error("failed to write config file", "file_path", filePath, "error", err)
		return fmt.Errorf("failed to write config file: %w", err)
	}

	slog.Info("config saved", "file_path", filePath)
	return nil
}

// Load discovers and loads configuration via XDG paths, falling back to the
// defaults when no file exists.
func (m *Manager) Load() (*Config, error) {
	paths := m.xdg.ConfigPaths("config.json")
	slog.Debug("searching for config file", "paths", paths)

	for _, p := range paths {
		if ok, _ := afero.Exists(m.fs, p); ok {
			slog.Debug("found config file", "path", p)
			return m.LoadFromFile(p)
		}
	}

	slog.Debug("no config file found, using defaults")
	return m.Default(), nil
}

var validLogLevels = []string{"debug", "info", "warn", "error"}
var validDrivers = []string{"", "auto", "malgo", "oto", "null"}

// Validate checks configuration values.
func (m *Manager) Validate(cfg *Config) error {
	var errs []string

	if cfg.Volume < 0.0 || cfg.Volume > 1.0 {
		errs = append(errs, fmt.Sprintf("volume must be between 0.0 and 1.0, got %f", cfg.Volume))
	}

	if cfg.BufferMs < 0 {
		errs = append(errs, fmt.Sprintf("buffer_ms must be >= 0, got %d", cfg.BufferMs))
	}
	if cfg.EventIntervalMs < 0 {
		errs = append(errs, fmt.Sprintf("event_interval_ms must be >= 0, got %d", cfg.EventIntervalMs))
	}

	if cfg.LogLevel != "" && !contains(validLogLevels, cfg.LogLevel) {
		errs = append(errs, fmt.Sprintf("invalid log level '%s', must be one of: %s",
			cfg.LogLevel, strings.Join(validLogLevels, ", ")))
	}

	if !contains(validDrivers, cfg.Driver) {
		errs = append(errs, fmt.Sprintf("invalid driver '%s', must be one of: auto, malgo, oto, null", cfg.Driver))
	}

	if fl := cfg.FileLogging; fl != nil {
		if fl.MaxSizeMB < 0 {
			errs = append(errs, fmt.Sprintf("file logging max_size_mb must be >= 0, got %d", fl.MaxSizeMB))
		}
		if fl.MaxBackups < 0 {
			errs = append(errs, fmt.Sprintf("file logging max_backups must be >= 0, got %d", fl.MaxBackups))
		}
		if fl.MaxAgeDays < 0 {
			errs = append(errs, fmt.Sprintf("file logging max_age_days must be >= 0, got %d", fl.MaxAgeDays))
		}
	}

	if len(errs) > 0 {
		msg := strings.Join(errs, "; ")
		slog.Error("config validation failed", "errors", msg)
		return fmt.Errorf("config validation failed: %s", msg)
	}
	return nil
}

// ApplyEnvironmentOverrides applies WAVELINE_* environment variables on top
// of cfg and returns the result.
func (m *Manager) ApplyEnvironmentOverrides(cfg *Config) *Config {
	result := *cfg

	if volStr := os.Getenv("WAVELINE_VOLUME"); volStr != "" {
		if vol, err := strconv.ParseFloat(volStr, 64); err == nil {
			result.Volume = vol
			slog.Debug("applied volume override from environment", "value", vol)
		} else {
			slog.Warn("invalid WAVELINE_VOLUME environment variable", "value", volStr, "error", err)
		}
	}

	if dev := os.Getenv("WAVELINE_DEVICE"); dev != "" {
		result.Device = dev
		slog.Debug("applied device override from environment", "value", dev)
	}

	if driver := os.Getenv("WAVELINE_DRIVER"); driver != "" {
		if contains(validDrivers, driver) {
			result.Driver = driver
			slog.Debug("applied driver override from environment", "value", driver)
		} else {
			slog.Warn("invalid WAVELINE_DRIVER environment variable", "value", driver)
		}
	}

	if logLevel := os.Getenv("WAVELINE_LOG_LEVEL"); logLevel != "" {
		result.LogLevel = logLevel
		slog.Debug("applied log level override from environment", "value", logLevel)
	}

	if bufStr := os.Getenv("WAVELINE_BUFFER_MS"); bufStr != "" {
		if buf, err := strconv.Atoi(bufStr); err == nil && buf > 0 {
			result.BufferMs = buf
			slog.Debug("applied buffer override from environment", "value", buf)
		} else {
			slog.Warn("invalid WAVELINE_BUFFER_MS environment variable", "value", bufStr)
		}
	}

	return &result
}

// ParseLogLevel converts a log level name to a slog.Level.
func ParseLogLevel(logLevel string) (slog.Level, error) {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level '%s', must be one of: %s",
			logLevel, strings.Join(validLogLevels, ", "))
	}
}

// ResolveLogFilePath resolves the log file path, using the XDG cache
// directory when filename is empty.
func (m *Manager) ResolveLogFilePath(filename string) string {
	if filename != "" {
		return filename
	}
	return filepath.Join(m.xdg.CachePath("logs"), "waveline.log")
}

// ResolveTrackingPath resolves the journal database path, using the XDG
// data directory when dbPath is empty.
func (m *Manager) ResolveTrackingPath(dbPath string) string {
	if dbPath != "" {
		return dbPath
	}
	return filepath.Join(m.xdg.DataPath(""), "playback.db")
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if v == candidate {
			return true
		}
	}
	return false
}
