package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsDefaults(t *testing.T) {
	cfg, err := loadSettings("")
	require.NoError(t, err)

	assert.Equal(t, 200, cfg.Users)
	assert.Equal(t, 5, cfg.Engine.Session.MaxSessions)
	assert.Equal(t, 30*time.Minute, cfg.Engine.Session.Timeout)
	assert.Equal(t, "aplt", cfg.Engine.Store.KeyPrefix)
	assert.True(t, cfg.Engine.Metrics.EnableLatencyHistograms)
}

func TestLoadSettingsFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loadtest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
users: 10
engine:
  session:
    max_sessions: 2
    timeout: 5m
  login_attempt:
    max_attempts: 3
`), 0o600))
	t.Setenv("AUTHPOLICY_ENGINE_LOGIN_ATTEMPT_MAX_ATTEMPTS", "7")
	t.Setenv("AUTHPOLICY_CONCURRENCY", "4")

	cfg, err := loadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Users)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 2, cfg.Engine.Session.MaxSessions)
	assert.Equal(t, 5*time.Minute, cfg.Engine.Session.Timeout)
	assert.Equal(t, 7, cfg.Engine.LoginAttempt.MaxAttempts, "env overrides the file")
}

func TestLoadSettingsRejectsInvalidEngineConfig(t *testing.T) {
	t.Setenv("AUTHPOLICY_ENGINE_PASSWORD_MIN_LENGTH", "300")
	_, err := loadSettings("")
	require.Error(t, err)
}

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(1), percentile(samples, 0))
	assert.Equal(t, time.Duration(5), percentile(samples, 50))
	assert.Equal(t, time.Duration(10), percentile(samples, 100))
	assert.Equal(t, time.Duration(0), percentile(nil, 50))
}
