package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fpt/llmbench/pkg/logger"
)

const (
	DefaultAddr              = ":3000"
	DefaultReadHeaderTimeout = "10s"
	settingsDir              = ".llmbench"
	settingsFile             = "settings.json"
)

// Settings represents the main application settings
type Settings struct {
	Server   ServerSettings `json:"server"`
	Models   ModelSettings  `json:"models"`
	LogLevel string         `json:"log_level"`
}

// ServerSettings contains HTTP server configuration
type ServerSettings struct {
	Addr              string `json:"addr"`
	ReadHeaderTimeout string `json:"read_header_timeout"` // Go duration, e.g. "10s"
}

// ModelSettings points at an optional registry override file
type ModelSettings struct {
	Path string `json:"path,omitempty"` // YAML file replacing or extending built-in models
}

// ReadHeaderTimeoutDuration parses ReadHeaderTimeout. Call after ValidateSettings.
func (s ServerSettings) ReadHeaderTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(s.ReadHeaderTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// LoadSettings loads application settings from a JSON file. An empty path
// searches the default locations; when nothing is found the defaults are
// returned.
func LoadSettings(configPath string) (*Settings, error) {
	if configPath == "" {
		configPath = findSettingsFile()
		if configPath == "" {
			return GetDefaultSettings(), nil
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	// Apply defaults for missing fields
	applyDefaults(&settings)

	return &settings, nil
}

// SaveSettings saves application settings to a JSON file
func SaveSettings(configPath string, settings *Settings) error {
	if configPath == "" {
		configPath = findSettingsFile()
		if configPath == "" {
			configPath = filepath.Join(settingsDir, settingsFile)
		}
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	logger.NewComponentLogger("settings").InfoWithIcon("📝", "Wrote settings file", "path", configPath)
	return nil
}

// GetDefaultSettings returns default application settings
func GetDefaultSettings() *Settings {
	return &Settings{
		Server: ServerSettings{
			Addr:              DefaultAddr,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
		},
		LogLevel: string(logger.LogLevelInfo),
	}
}

// applyDefaults fills in missing fields with default values
func applyDefaults(settings *Settings) {
	defaults := GetDefaultSettings()

	if settings.Server.Addr == "" {
		settings.Server.Addr = defaults.Server.Addr
	}
	if settings.Server.ReadHeaderTimeout == "" {
		settings.Server.ReadHeaderTimeout = defaults.Server.ReadHeaderTimeout
	}
	if settings.LogLevel == "" {
		settings.LogLevel = defaults.LogLevel
	}
}

// ValidateSettings validates the settings configuration
func ValidateSettings(settings *Settings) error {
	if settings.Server.Addr == "" {
		return fmt.Errorf("server address is required")
	}

	d, err := time.ParseDuration(settings.Server.ReadHeaderTimeout)
	if err != nil {
		return fmt.Errorf("invalid read_header_timeout %q: %w", settings.Server.ReadHeaderTimeout, err)
	}
	if d <= 0 {
		return fmt.Errorf("read_header_timeout must be positive")
	}

	if _, err := logger.ParseLevel(settings.LogLevel); err != nil {
		return err
	}

	if settings.Models.Path != "" {
		if _, err := os.Stat(settings.Models.Path); err != nil {
			return fmt.Errorf("models file %s: %w", settings.Models.Path, err)
		}
	}

	return nil
}

// findSettingsFile searches for settings.json in order of preference:
// 1. .llmbench/settings.json in current directory
// 2. $HOME/.llmbench/settings.json
// Returns empty string if none found
func findSettingsFile() string {
	currentDirPath := filepath.Join(settingsDir, settingsFile)
	if _, err := os.Stat(currentDirPath); err == nil {
		return currentDirPath
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		homeDirPath := filepath.Join(homeDir, settingsDir, settingsFile)
		if _, err := os.Stat(homeDirPath); err == nil {
			return homeDirPath
		}
	}

	return ""
}
