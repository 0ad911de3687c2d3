package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/lordievader/matrix-zabbix-bot/internal/logger"
	"github.com/sirupsen/logrus"
)

// Loader parses one config file format
type Loader interface {
	Load(path string) (*Config, error)
}

// NewLoader picks the loader matching the file extension. Classic INI style
// files (.conf, .ini, .cfg) use the INI loader, everything else is YAML.
func NewLoader(path string) Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".conf", ".ini", ".cfg":
		return INILoader{}
	default:
		return YAMLLoader{}
	}
}

// LoadConfig loads and validates the config file at path
func LoadConfig(path string) (*Config, error) {
	return Resolve(path, Overrides{}, true)
}

// Read loads path with the matching loader without validating it. A missing
// file is reported as ErrConfigMissing.
func Read(path string) (*Config, error) {
	expanded, err := expandHome(path)
	if err != nil {
		return nil, err
	}
	cfg, err := NewLoader(expanded).Load(expanded)
	if err != nil {
		return nil, err
	}
	cfg.Path = expanded
	return cfg, nil
}

// Resolve builds the effective configuration from the file at path and the
// command line overrides. When the file does not exist and requireFile is
// false, a config built from overrides alone is accepted as long as they
// name a room and credentials.
func Resolve(path string, overrides Overrides, requireFile bool) (*Config, error) {
	cfg, err := Read(path)
	switch {
	case errors.Is(err, ErrConfigMissing):
		if requireFile || !overrides.complete() {
			return nil, err
		}
		logger.WithFields(logrus.Fields{
			"path": path,
		}).Warn("config-file-missing-using-flags")
		cfg = &Config{}
	case err != nil:
		return nil, err
	}

	Merge(cfg, overrides)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// readFile reads a config file, mapping absence to ErrConfigMissing
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrConfigMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return data, nil
}

// expandEnv replaces ${VAR_NAME} patterns with environment variable values
func expandEnv(input string) (string, error) {
	var missingVars []string

	result := os.Expand(input, func(key string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		missingVars = append(missingVars, key)
		return ""
	})

	if len(missingVars) > 0 {
		return "", fmt.Errorf("missing required environment variables: %s",
			strings.Join(missingVars, ", "))
	}

	return result, nil
}

// expandHome expands ~ to user's home directory
func expandHome(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return home + path[1:], nil
	}
	return path, nil
}
