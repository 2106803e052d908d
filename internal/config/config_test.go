package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.Engine.MatchWindow)
	assert.Equal(t, DefaultLimits(), cfg.Limits)
	assert.Equal(t, 3, cfg.TaskQueue.MaxRetry)
	assert.False(t, cfg.AutoReply.Enabled)
	assert.True(t, cfg.AutoReply.MeetingModeOnly)
	assert.Equal(t, 5*time.Minute, cfg.AutoReply.Cooldown)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENGINE_MATCH_WINDOW", "90s")
	t.Setenv("LIMITS_MAX_REGISTRATIONS", "5")
	t.Setenv("DB_URL", "postgres://autoflow@db/autoflow")
	t.Setenv("APP_AGENT_ID", "pixel-7")
	t.Setenv("AUTOREPLY_ENABLED", "true")
	t.Setenv("AUTOREPLY_COOLDOWN", "2m")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Engine.MatchWindow)
	assert.Equal(t, 5, cfg.Limits.MaxRegistrations)
	assert.Equal(t, "postgres://autoflow@db/autoflow", cfg.DBURL)
	assert.Equal(t, "pixel-7", cfg.AgentID)
	assert.True(t, cfg.AutoReply.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.AutoReply.Cooldown)
}

func TestValidateRejectsBadRadiusRange(t *testing.T) {
	cfg := &Config{
		Engine: EngineConfig{Workers: 1, QueueSize: 1, MatchWindow: time.Minute},
		Limits: DefaultLimits(),
	}
	require.NoError(t, cfg.Validate())

	cfg.AutoReply.Cooldown = -time.Second
	assert.Error(t, cfg.Validate())

	cfg.AutoReply.Cooldown = 0
	cfg.Limits.MinRadius = 6000
	assert.Error(t, cfg.Validate())
}

func TestEngineLocation(t *testing.T) {
	assert.Equal(t, time.Local, EngineConfig{}.Location())
	assert.Equal(t, "UTC", EngineConfig{Timezone: "UTC"}.Location().String())
	assert.Equal(t, time.Local, EngineConfig{Timezone: "Not/AZone"}.Location())
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	yaml := []byte(`
app:
  agent_id: tablet
effectors:
  permitted: [NOTIFICATION, SET_VOLUME]
  script_timeout: 2s
engine:
  timezone: Europe/Berlin
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "tablet", cfg.AgentID)
	assert.Equal(t, []string{"NOTIFICATION", "SET_VOLUME"}, cfg.Effectors.Permitted)
	assert.Equal(t, 2*time.Second, cfg.Effectors.ScriptTimeout)
	assert.Equal(t, 10*time.Second, cfg.Effectors.ForegroundMaxAge)
	assert.Equal(t, "Europe/Berlin", cfg.Engine.Timezone)
}
