package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const appDir = "waveline"

// XDGDirs provides XDG Base Directory compliant paths for waveline.
type XDGDirs struct{}

// NewXDGDirs creates a new XDG directory manager.
func NewXDGDirs() *XDGDirs {
	return &XDGDirs{}
}

// ConfigPaths returns prioritized paths where config files can be found:
// user config dir first, then system config dirs.
func (x *XDGDirs) ConfigPaths(filename string) []string {
	var paths []string

	userPath := filepath.Join(xdg.ConfigHome, appDir)
	if filename != "" {
		userPath = filepath.Join(userPath, filename)
	}
	paths = append(paths, userPath)

	for _, configDir := range xdg.ConfigDirs {
		systemPath := filepath.Join(configDir, appDir)
		if filename != "" {
			systemPath = filepath.Join(systemPath, filename)
		}
		paths = append(paths, systemPath)
	}

	slog.Debug("generated config paths",
		"filename", filename,
		"total_paths", len(paths),
		"user_path", userPath)
	return paths
}

// CachePath returns the cache directory path for a specific purpose.
func (x *XDGDirs) CachePath(purpose string) string {
	baseDir := appDir
	if purpose != "" {
		baseDir = filepath.Join(baseDir, purpose)
	}
	return filepath.Join(xdg.CacheHome, baseDir)
}

// DataPath returns the data directory path for a specific purpose.
func (x *XDGDirs) DataPath(purpose string) string {
	baseDir := appDir
	if purpose != "" {
		baseDir = filepath.Join(baseDir, purpose)
	}
	return filepath.Join(xdg.DataHome, baseDir)
}

// CreateCacheDir creates the cache directory for a specific purpose.
func (x *XDGDirs) CreateCacheDir(purpose string) error {
	path := x.CachePath(purpose)
	if err := os.MkdirAll(path, 0755); err != nil {
		slog.Error("failed to create cache directory", "path", path, "error", err)
		return err
	}
	return nil
}

// CreateDataDir creates the data directory for a specific purpose.
func (x *XDGDirs) CreateDataDir(purpose string) error {
	path := x.DataPath(purpose)
	if err := os.MkdirAll(path, 0755); err != nil {
		slog.Error("failed to create data directory", "path", path, "error", err)
		return err
	}
	return nil
}
