package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", "ip: 192.168.1.50\nport: 80\n")

	config, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.50", config.IP)
	assert.Equal(t, Port(80), config.Port)
	assert.Equal(t, time.Duration(0), config.Timeout)
	assert.Equal(t, "socketio", config.Source.Type)
	assert.Equal(t, "localhost", config.Source.Host)
	assert.Equal(t, Port(3000), config.Source.Port)
	assert.Equal(t, 5*time.Second, config.Timers.OnInterval)
	assert.Equal(t, 60*time.Second, config.Timers.OffDelay)
	assert.Equal(t, 120*time.Second, config.Timers.StateInterval)
	assert.Equal(t, 2*time.Second, config.Timers.ReconnectDelay)
	assert.Equal(t, "info", config.Log.Level)
	assert.Equal(t, "stderr", config.Log.Output)
	assert.Empty(t, config.Server.Addr)
	assert.Nil(t, config.Discord)
}

func TestLoadConfig_JSONWithStringPort(t *testing.T) {
	path := writeConfig(t, "config.json", `{"ip": "10.0.0.7", "port": "8080"}`)

	config, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", config.IP)
	assert.Equal(t, Port(8080), config.Port)
}

func TestLoadConfig_Full(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
ip: relay.local
port: 8081
timeout: 3s
source:
  type: mpd
  host: music.local
  port: 6600
  settings:
    password: secret
timers:
  on-interval: 1s
  off-delay: 5m
  state-interval: 30s
server:
  addr: ":8080"
  username: admin
  password: hunter2
discord:
  bot-token: token
  guild-id: "1234"
log:
  level: debug
  output: stdout
`)

	config, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, config.Timeout)
	assert.Equal(t, "mpd", config.Source.Type)
	assert.Equal(t, Port(6600), config.Source.Port)
	assert.Equal(t, "secret", config.Source.Settings["password"])
	assert.Equal(t, time.Second, config.Timers.OnInterval)
	assert.Equal(t, 5*time.Minute, config.Timers.OffDelay)
	assert.Equal(t, 2*time.Second, config.Timers.ReconnectDelay)
	assert.Equal(t, ":8080", config.Server.Addr)
	require.NotNil(t, config.Discord)
	assert.Equal(t, "token", config.Discord.BotToken)
	assert.Equal(t, "1234", config.Discord.GuildId)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{name: "missing ip", content: "port: 80\n", errMsg: "IP"},
		{name: "missing port", content: "ip: 10.0.0.7\n", errMsg: "Port"},
		{name: "port out of range", content: "ip: 10.0.0.7\nport: 70000\n", errMsg: "Port"},
		{name: "non numeric port", content: "ip: 10.0.0.7\nport: http\n", errMsg: "invalid port"},
		{name: "unknown source", content: "ip: 10.0.0.7\nport: 80\nsource:\n  type: kafka\n", errMsg: "Type"},
		{name: "discord without token", content: "ip: 10.0.0.7\nport: 80\ndiscord:\n  guild-id: \"1\"\n", errMsg: "BotToken"},
		{name: "username without password", content: "ip: 10.0.0.7\nport: 80\nserver:\n  username: admin\n", errMsg: "Password"},
		{name: "bad duration", content: "ip: 10.0.0.7\nport: 80\ntimers:\n  off-delay: soon\n", errMsg: "decoding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "config.yaml", tt.content)
			_, err := loadConfig(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("RELAY_IP", "10.1.1.1")
	t.Setenv("RELAY_PORT", "9090")
	t.Setenv("DISCORD_BOT_TOKEN", "from-env")
	path := writeConfig(t, "config.yaml", "ip: 192.168.1.50\nport: 80\n")

	config, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "10.1.1.1", config.IP)
	assert.Equal(t, Port(9090), config.Port)
	require.NotNil(t, config.Discord)
	assert.Equal(t, "from-env", config.Discord.BotToken)

	t.Setenv("RELAY_PORT", "eighty")
	_, err = loadConfig(path)
	assert.Error(t, err)
}
