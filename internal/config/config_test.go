package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"REVERSI_CONFIG", "REVERSI_LISTEN_ADDR", "REVERSI_WS_ADDR", "REVERSI_ADMIN_ADDR",
		"REVERSI_TURN_TIMEOUT", "REVERSI_NAME_TIMEOUT", "REVERSI_WRITE_TIMEOUT",
		"REVERSI_PASS_RULE", "REVERSI_MAX_SESSIONS", "REVERSI_CHAT_BUFFER",
		"REDIS_URL", "REVERSI_SESSION_TTL", "REVERSI_MESSAGES_DIR",
		"LOG_LEVEL", "LOG_FORMAT", "LOG_FILE", "LOG_TO_CONSOLE", "LOG_CALLER",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":2025", cfg.ListenAddr)
	require.Equal(t, 30*time.Second, cfg.TurnTimeout)
	require.Equal(t, 30*time.Second, cfg.NameTimeout)
	require.Equal(t, "conditional", cfg.PassRule)
	require.Equal(t, 200, cfg.MaxConcurrentSessions)
	require.Empty(t, cfg.RedisURL)
	require.True(t, cfg.Log.Console)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("REVERSI_LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("REVERSI_TURN_TIMEOUT", "15")
	t.Setenv("REVERSI_NAME_TIMEOUT", "1m")
	t.Setenv("REVERSI_PASS_RULE", "always")
	t.Setenv("REVERSI_MAX_SESSIONS", "4")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("LOG_TO_CONSOLE", "false")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	require.Equal(t, 15*time.Second, cfg.TurnTimeout)
	require.Equal(t, time.Minute, cfg.NameTimeout)
	require.Equal(t, "always", cfg.PassRule)
	require.Equal(t, 4, cfg.MaxConcurrentSessions)
	require.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	require.False(t, cfg.Log.Console)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "reversi.yaml")
	body := `
listen_addr: ":7000"
ws_addr: ":7001"
turn_timeout: 20s
max_concurrent_sessions: 10
log:
  level: debug
  console: false
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("REVERSI_CONFIG", path)
	t.Setenv("REVERSI_WS_ADDR", ":7100")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.ListenAddr)
	require.Equal(t, ":7100", cfg.WSAddr)
	require.Equal(t, 20*time.Second, cfg.TurnTimeout)
	require.Equal(t, 10, cfg.MaxConcurrentSessions)
	require.Equal(t, "debug", cfg.Log.Level)
	require.False(t, cfg.Log.Console)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"REVERSI_TURN_TIMEOUT": "soon",
		"REVERSI_PASS_RULE":    "never",
	}
	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(k, v)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("REVERSI_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load()
	require.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	d, err := parseDuration("30")
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, d)

	d, err = parseDuration("1500ms")
	require.NoError(t, err)
	require.Equal(t, 1500*time.Millisecond, d)

	for _, bad := range []string{"0", "-5", "-1s", "x"} {
		_, err := parseDuration(bad)
		require.Error(t, err, bad)
	}
}

func TestValidateTurnTimeoutFloor(t *testing.T) {
	cfg := Default()
	cfg.TurnTimeout = 500 * time.Millisecond
	require.Error(t, cfg.Validate())
}
