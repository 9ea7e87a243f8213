package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// ProjectConfigFile is the name of the project-level config file.
	ProjectConfigFile = "kbqa.yaml"
	// UserConfigDir is the directory for user-level config.
	UserConfigDir = ".config/kbqa"
	// UserConfigFile is the name of the user-level config file.
	UserConfigFile = "config.yaml"
)

// Loader handles configuration loading with layered precedence.
type Loader struct {
	logger *slog.Logger

	// home and cwd are looked up from the OS when empty.
	home string
	cwd  string
}

// NewLoader creates a new configuration loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/kbqa/config.yaml)
// 3. Project config (kbqa.yaml in current or parent directories)
// 4. The explicit file, when path is not empty
//
// Each layer only overrides the keys it sets. A missing or broken user or
// project file is skipped with a warning; a missing or broken explicit file
// is an error.
func (l *Loader) Load(path string) (*Config, error) {
	config := DefaultConfig()

	if userConfigPath := l.userConfigPath(); userConfigPath != "" {
		if err := config.mergeFile(userConfigPath); err == nil {
			l.logger.Debug("Loaded user config", "path", userConfigPath)
		} else if !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn("Failed to load user config", "path", userConfigPath, "error", err)
		}
	}

	if projectConfigPath := l.findProjectConfig(); projectConfigPath != "" {
		if err := config.mergeFile(projectConfigPath); err == nil {
			l.logger.Debug("Loaded project config", "path", projectConfigPath)
		} else {
			l.logger.Warn("Failed to load project config", "path", projectConfigPath, "error", err)
		}
	} else {
		l.logger.Debug("No project config found")
	}

	if path != "" {
		if err := config.mergeFile(path); err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded config", "path", path)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// EnsureUserConfig creates the user config file with defaults if it doesn't
// exist, and returns its path.
func (l *Loader) EnsureUserConfig() (string, error) {
	userConfigPath := l.userConfigPath()
	if userConfigPath == "" {
		return "", fmt.Errorf("cannot determine home directory")
	}

	if _, err := os.Stat(userConfigPath); err == nil {
		return userConfigPath, nil
	}

	if err := DefaultConfig().SaveToFile(userConfigPath); err != nil {
		return "", err
	}

	l.logger.Info("Created default user config", "path", userConfigPath)
	return userConfigPath, nil
}

// userConfigPath returns the path to the user config file.
func (l *Loader) userConfigPath() string {
	home := l.home
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return ""
		}
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for kbqa.yaml in current and parent directories.
func (l *Loader) findProjectConfig() string {
	dir := l.cwd
	if dir == "" {
		var err error
		if dir, err = os.Getwd(); err != nil {
			return ""
		}
	}

	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}
