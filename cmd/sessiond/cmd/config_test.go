package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessiond.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := loadConfig(newViper(""))
	require.NoError(t, err)
	require.Equal(t, ":3001", cfg.Server.Addr)
	require.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	require.Equal(t, "st", cfg.Redis.Prefix)
	require.Equal(t, "/auth", cfg.Session.APIBasePath)
	require.Equal(t, "any", cfg.Session.TransferMethod)
	require.Equal(t, time.Hour, cfg.Session.AccessTokenValidity)
	require.Equal(t, "info", cfg.Log.Level)
	require.Empty(t, cfg.Core.URL)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
redis:
  addr: "127.0.0.1:6380"
session:
  api_domain: "https://api.example.com"
  website_domain: "https://example.com"
  anti_csrf: VIA_TOKEN
  access_token_validity: 15m
log:
  level: debug
`)

	cfg, err := loadConfig(newViper(path))
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Server.Addr)
	require.Equal(t, "127.0.0.1:6380", cfg.Redis.Addr)
	require.Equal(t, "https://api.example.com", cfg.Session.APIDomain)
	require.Equal(t, "VIA_TOKEN", cfg.Session.AntiCSRF)
	require.Equal(t, 15*time.Minute, cfg.Session.AccessTokenValidity)
	require.Equal(t, 100*24*time.Hour, cfg.Session.RefreshTokenValidity)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":9000\"\n")
	t.Setenv("SESSIOND_SERVER_ADDR", ":7000")
	t.Setenv("SESSIOND_SESSION_CHECK_DATABASE", "true")
	t.Setenv("SESSIOND_CORE_URL", "http://core.internal:3567")

	cfg, err := loadConfig(newViper(path))
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.Server.Addr)
	require.True(t, cfg.Session.CheckDatabase)
	require.Equal(t, "http://core.internal:3567", cfg.Core.URL)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bad log level", body: "log:\n  level: loud\n"},
		{name: "bad transfer method", body: "session:\n  transfer_method: carrier-pigeon\n"},
		{name: "bad anti csrf", body: "session:\n  anti_csrf: SOMETIMES\n"},
		{name: "relative base path", body: "session:\n  api_base_path: auth\n"},
		{name: "short signing key", body: "session:\n  signing_key: short\n"},
		{name: "refresh shorter than access", body: "session:\n  access_token_validity: 2h\n  refresh_token_validity: 1h\n"},
		{name: "rate limit with remote core", body: "core:\n  url: http://core:3567\nsession:\n  max_refresh_attempts: 3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(newViper(writeConfig(t, tt.body)))
			require.Error(t, err)
			require.Contains(t, err.Error(), "config validation failed")
		})
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := loadConfig(newViper(filepath.Join(t.TempDir(), "missing.yaml")))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read config file")
}

func TestFindConfigFileInPathsNeedsExtension(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sessiond"), []byte("binary"), 0o700))
	require.Empty(t, findConfigFileInPaths([]string{dir}))

	path := filepath.Join(dir, "sessiond.yml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o600))
	require.Equal(t, path, findConfigFileInPaths([]string{t.TempDir(), dir}))
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]string{
		"debug": "debug",
		"warn":  "warn",
		"fatal": "fatal",
		"":      "info",
		"loud":  "info",
	} {
		require.Equal(t, want, parseLevel(in).String(), in)
	}
}

func TestNewLoggerModes(t *testing.T) {
	l, err := newLogger(LogConfig{Level: "warn"})
	require.NoError(t, err)
	require.False(t, l.Core().Enabled(parseLevel("info")))
	require.True(t, l.Core().Enabled(parseLevel("error")))

	l, err = newLogger(LogConfig{Level: "debug", Development: true})
	require.NoError(t, err)
	require.True(t, l.Core().Enabled(parseLevel("debug")))
}
