package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpt/llmbench/pkg/logger"
)

// unsetEnv removes key for the duration of the test. godotenv treats a set
// but empty variable as present, so t.Setenv(key, "") is not enough.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	require.NoError(t, os.Unsetenv(key))
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	for _, key := range []string{EnvOpenAIAPIKey, EnvAnthropicAPIKey, EnvOpenAIBaseURL, EnvAnthropicBaseURL, EnvAddr, EnvLogLevel} {
		unsetEnv(t, key)
	}
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultAddr, cfg.Settings.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Settings.Server.ReadHeaderTimeoutDuration())
	assert.Equal(t, logger.LogLevelInfo, cfg.LogLevel())
	assert.Empty(t, cfg.Providers.OpenAIAPIKey)
	assert.Empty(t, cfg.Providers.AnthropicAPIKey)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"), []byte("OPENAI_API_KEY=sk-local\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("OPENAI_API_KEY=sk-shared\nANTHROPIC_API_KEY=sk-ant\nLLMBENCH_ADDR=127.0.0.1:9999\n"), 0644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sk-local", cfg.Providers.OpenAIAPIKey, ".env.local wins over .env")
	assert.Equal(t, "sk-ant", cfg.Providers.AnthropicAPIKey)
	assert.Equal(t, "127.0.0.1:9999", cfg.Settings.Server.Addr)
}

func TestLoad_EnvironmentWinsOverDotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ANTHROPIC_API_KEY=from-file\n"), 0644))
	t.Setenv(EnvAnthropicAPIKey, "from-env")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Providers.AnthropicAPIKey)
}

func TestLoad_SettingsFile(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".llmbench"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".llmbench", "settings.json"),
		[]byte(`{"server":{"addr":":8080","read_header_timeout":"2s"},"log_level":"debug"}`), 0644))
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Settings.Server.Addr)
	assert.Equal(t, 2*time.Second, cfg.Settings.Server.ReadHeaderTimeoutDuration())
	assert.Equal(t, logger.LogLevelWarn, cfg.LogLevel(), "env overrides the settings file")
}

func TestLoad_InvalidSettings(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server":{"read_header_timeout":"soon"}}`), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read_header_timeout")

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestValidateSettings(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr bool
	}{
		{"defaults", func(s *Settings) {}, false},
		{"empty addr", func(s *Settings) { s.Server.Addr = "" }, true},
		{"negative timeout", func(s *Settings) { s.Server.ReadHeaderTimeout = "-1s" }, true},
		{"bad level", func(s *Settings) { s.LogLevel = "loud" }, true},
		{"missing models file", func(s *Settings) { s.Models.Path = "/nonexistent/models.yaml" }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := GetDefaultSettings()
			tc.mutate(s)
			err := ValidateSettings(s)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveSettings_RoundTrip(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "nested", "settings.json")

	s := GetDefaultSettings()
	s.Server.Addr = ":4000"
	require.NoError(t, SaveSettings(path, s))

	loaded, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, s, loaded)
}
