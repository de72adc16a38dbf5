package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearClientEnv(t *testing.T) {
	for _, k := range []string{"DOMAIN", "SERVER_URL", "STUN_SERVER", "TURN_SERVER", "TURN_USERNAME",
		"TURN_PASSWORD", "FORCE_RELAY", "DISPLAY_NAME", "NEGOTIATION_TIMEOUT", "RECONNECT_ATTEMPTS"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearClientEnv(t)
	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.WebSocketURL)
	assert.Equal(t, []string{DefaultSTUN}, cfg.GetSTUNServers())
	assert.Nil(t, cfg.GetTURNServers())
	assert.Equal(t, DefaultNegotiationTimeout, cfg.NegotiationTimeout)
	assert.Equal(t, DefaultReconnectAttempts, cfg.ReconnectAttempts)
	assert.Equal(t, "http://localhost:8080/rooms", cfg.HTTPURL("rooms"))
}

func TestLoadPrecedence(t *testing.T) {
	clearClientEnv(t)
	t.Setenv("DOMAIN", "relay.example.com")
	t.Setenv("DISPLAY_NAME", "env-name")
	t.Setenv("NEGOTIATION_TIMEOUT", "5s")
	t.Setenv("RECONNECT_ATTEMPTS", "7")

	cfg, err := Load(Options{DisplayName: "flag-name"})
	require.NoError(t, err)
	assert.Equal(t, "wss://relay.example.com/ws", cfg.WebSocketURL)
	assert.Equal(t, "https://relay.example.com/rooms", cfg.HTTPURL("/rooms"))
	assert.Equal(t, "flag-name", cfg.DisplayName)
	assert.Equal(t, 5*time.Second, cfg.NegotiationTimeout)
	assert.Equal(t, 7, cfg.ReconnectAttempts)
}

func TestLoadServerURLWins(t *testing.T) {
	clearClientEnv(t)
	t.Setenv("DOMAIN", "ignored.example.com")
	cfg, err := Load(Options{ServerURL: "ws://10.0.0.2:9000/ws"})
	require.NoError(t, err)
	assert.Equal(t, "ws://10.0.0.2:9000/ws", cfg.WebSocketURL)

	_, err = Load(Options{ServerURL: "http://nope"})
	assert.Error(t, err)
}

func TestTURNServers(t *testing.T) {
	clearClientEnv(t)
	cfg, err := Load(Options{TURNServer: "turn.example.com", TURNUser: "u", TURNPass: "p", ForceRelay: true})
	require.NoError(t, err)
	assert.True(t, cfg.ForceRelay)
	assert.Equal(t, []string{
		"turn:turn.example.com:3478?transport=udp",
		"turn:turn.example.com:3478?transport=tcp",
		"turns:turn.example.com:5349?transport=tcp",
	}, cfg.GetTURNServers())
	user, pass := cfg.GetTURNCredentials()
	assert.Equal(t, "u", user)
	assert.Equal(t, "p", pass)
}

func TestForceRelayNeedsTURN(t *testing.T) {
	clearClientEnv(t)
	_, err := Load(Options{ForceRelay: true})
	assert.Error(t, err)
}

func TestLoadRelayDefaults(t *testing.T) {
	cfg, err := LoadRelay(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 60*time.Second, cfg.PongWait)
	assert.Equal(t, 256, cfg.SendBuffer)
	assert.Equal(t, 64, cfg.MaxNameLength)
}

func TestLoadRelayFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: debug
port: 9000
ping_period: 5s
pong_wait: 10s
allowed_origins:
  - https://app.example.com
`), 0o600))
	t.Setenv("RELAY_PORT", "9100")

	cfg, err := LoadRelay(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.PingPeriod)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.AllowedOrigins)
}

func TestLoadRelayRejectsBadTimings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ping_period: 90s\n"), 0o600))
	_, err := LoadRelay(path)
	assert.Error(t, err)
}
