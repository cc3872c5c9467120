package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("API_ENDPOINT", "https://api.example.com")
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 10*time.Second, cfg.BackendTimeout)
	assert.Equal(t, 720*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "https://api.example.com", cfg.PublicAPI, "public API falls back to the backend endpoint")
	assert.Equal(t, 10, cfg.LoginRateLimit)
	assert.False(t, cfg.JobsEnabled)
	assert.Empty(t, cfg.PGDSN)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("NEXT_PUBLIC_API", "https://files.example.com")
	t.Setenv("APP_ENV", "production")
	t.Setenv("BACKEND_TIMEOUT", "3s")
	t.Setenv("JOBS_ENABLED", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com", cfg.PublicAPI)
	assert.Equal(t, 3*time.Second, cfg.BackendTimeout)
	assert.True(t, cfg.JobsEnabled)
	assert.True(t, cfg.IsProduction())
}

func TestLoadConfigRejectsMissingOrBadValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SESSION_SECRET", "")
	_, err := LoadConfig()
	assert.Error(t, err)

	setRequiredEnv(t)
	t.Setenv("API_ENDPOINT", "api.example.com")
	_, err = LoadConfig()
	assert.Error(t, err)
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&Config{LogFormat: "json"}, &buf).Info("hola", slog.String("k", "v"))
	assert.True(t, strings.HasPrefix(buf.String(), "{"), buf.String())

	buf.Reset()
	newLogger(&Config{AppEnv: "production"}, &buf).Debug("hidden")
	assert.Empty(t, buf.String())
}
