package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/fpt/llmbench/pkg/client"
	"github.com/fpt/llmbench/pkg/logger"
)

// Environment variables read by Load
const (
	EnvOpenAIAPIKey     = "OPENAI_API_KEY"
	EnvAnthropicAPIKey  = "ANTHROPIC_API_KEY"
	EnvOpenAIBaseURL    = "OPENAI_BASE_URL"
	EnvAnthropicBaseURL = "ANTHROPIC_BASE_URL"
	EnvAddr             = "LLMBENCH_ADDR"
	EnvLogLevel         = "LLMBENCH_LOG_LEVEL"
)

// dotenv files, earlier files win
var envFiles = []string{".env.local", ".env"}

// Config is the resolved runtime configuration: settings file values with
// environment overrides applied, plus vendor credentials.
type Config struct {
	Settings  *Settings
	Providers client.Config
}

// LogLevel returns the configured log level
func (c *Config) LogLevel() logger.LogLevel {
	level, err := logger.ParseLevel(c.Settings.LogLevel)
	if err != nil {
		return logger.LogLevelInfo
	}
	return level
}

// LoadDotEnv loads .env.local and .env from the working directory. Variables
// already present in the environment are never overridden.
func LoadDotEnv() error {
	for _, name := range envFiles {
		if err := godotenv.Load(name); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
	}
	return nil
}

// Load resolves the configuration. settingsPath may be empty to search the
// default locations.
func Load(settingsPath string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	settings, err := LoadSettings(settingsPath)
	if err != nil {
		return nil, err
	}

	if addr := os.Getenv(EnvAddr); addr != "" {
		settings.Server.Addr = addr
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		settings.LogLevel = level
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	return &Config{
		Settings: settings,
		Providers: client.Config{
			OpenAIAPIKey:     os.Getenv(EnvOpenAIAPIKey),
			OpenAIBaseURL:    os.Getenv(EnvOpenAIBaseURL),
			AnthropicAPIKey:  os.Getenv(EnvAnthropicAPIKey),
			AnthropicBaseURL: os.Getenv(EnvAnthropicBaseURL),
		},
	}, nil
}
