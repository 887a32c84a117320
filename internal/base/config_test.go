package base

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadConfigReadsNestedKeys(t *testing.T) {
	path := writeConfig(t, `{
		"addr": ":9000",
		"log": {"debug": true},
		"db": {"driver": "postgres", "dsn": "host=db"},
		"ai": {
			"provider": "claude",
			"model": "claude-3-5-haiku-latest",
			"temperature": 0.2,
			"timeout": "30s",
			"min_interval": 250,
			"max_attempts": 3
		}
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "host=db", cfg.DSN)
	assert.Equal(t, "claude", cfg.AIProvider)
	assert.Equal(t, 0.2, cfg.AITemperature)
	assert.Equal(t, 30*time.Second, cfg.AITimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.AIMinInterval)
	assert.Equal(t, 3, cfg.AIMaxAttempts)
	// untouched keys keep their defaults
	assert.Equal(t, time.Second, cfg.AIBackoff)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, `{"ai": {"provider": "openai"}}`)
	t.Setenv("MUSIC_AI_PROVIDER", "qwen")
	t.Setenv("MUSIC_AI_MAX_ATTEMPTS", "2")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "qwen", cfg.AIProvider)
	assert.Equal(t, 2, cfg.AIMaxAttempts)
}

func TestLoadConfigBadDuration(t *testing.T) {
	path := writeConfig(t, `{"ai": {"timeout": "soon"}}`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestAIOptions(t *testing.T) {
	cfg := Default()
	cfg.AIBaseURL = "http://localhost:11434/v1"
	opts := cfg.AIOptions()
	assert.Equal(t, "deepseek", opts.Provider)
	assert.Equal(t, "http://localhost:11434/v1", opts.BaseURL)
	assert.Equal(t, cfg.AIMaxAttempts, opts.MaxAttempts)
	assert.Equal(t, cfg.AIBackoff, opts.BaseBackoff)
}

func TestLoadConfigIgnoresUnprefixedEnv(t *testing.T) {
	t.Setenv("DEBUG", "yes")
	t.Setenv("ADDR", ":9999")
	t.Setenv("API_TOKEN", "leak")
	t.Setenv("MUSIC_API_TOKEN", "secret")
	t.Setenv("MUSIC_AI_BASE_URL", "http://localhost:11434/v1")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.False(t, cfg.Debug)
	assert.Equal(t, "secret", cfg.APIToken)
	assert.Equal(t, "http://localhost:11434/v1", cfg.AIBaseURL)
}
