package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Port        string
	AgentID     string
	DBURL       string
	RedisAddr   string
	MQTTBroker  string
	MQTTClient  string
	JWTSecret   string
	MDNSName    string
	LogLevel    string
	LogFormat   string
	TokenTTL    time.Duration
	Engine      EngineConfig
	Limits      Limits
	Effectors   EffectorsConfig
	BlockPolicy BlockPolicyConfig
	TaskQueue   TaskQueueConfig
	AutoReply   AutoReplyConfig
}

// EngineConfig tunes event dispatch and matching
type EngineConfig struct {
	Workers      int
	QueueSize    int
	MatchWindow  time.Duration // tolerance for time triggers and alarm callbacks
	ProbeTimeout time.Duration
	StateTTL     time.Duration // how long an AND trigger stays satisfied
	Timezone     string
}

// Limits bounds what a workflow may contain
type Limits struct {
	MaxHorizon       time.Duration
	MinRadius        float64
	MaxRadius        float64
	MaxRegistrations int
	MaxNameLength    int
	MaxTriggers      int
	MaxActions       int
	MaxTitleLength   int
	MaxMessageLength int
}

// EffectorsConfig describes what the device agent allows
type EffectorsConfig struct {
	Permitted        []string // action types granted by the agent; empty grants all
	ScriptTimeout    time.Duration
	ForegroundMaxAge time.Duration // older foreground reports are ignored
}

// BlockPolicyConfig controls the foreground app check loop
type BlockPolicyConfig struct {
	PollInterval time.Duration
	RedisKey     string
}

// TaskQueueConfig configures the asynq alarm backend
type TaskQueueConfig struct {
	Concurrency int
	MaxRetry    int
	Timeout     time.Duration
}

// AutoReplyConfig controls texting back missed callers
type AutoReplyConfig struct {
	Enabled         bool
	Message         string
	Cooldown        time.Duration // per number
	MeetingModeOnly bool
	RedisPrefix     string
}

// Location returns the configured timezone, falling back to local time
func (e EngineConfig) Location() *time.Location {
	if e.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// DefaultLimits mirrors the defaults applied by LoadConfig
func DefaultLimits() Limits {
	return Limits{
		MaxHorizon:       365 * 24 * time.Hour,
		MinRadius:        50,
		MaxRadius:        5000,
		MaxRegistrations: 100,
		MaxNameLength:    100,
		MaxTriggers:      10,
		MaxActions:       10,
		MaxTitleLength:   50,
		MaxMessageLength: 200,
	}
}

// legacy flat env names still honoured
var envAliases = map[string]string{
	"database.url":   "DB_URL",
	"redis.addr":     "REDIS_ADDR",
	"mqtt.broker":    "MQTT_BROKER",
	"mqtt.client_id": "MQTT_CLIENT_ID",
	"jwt.secret":     "JWT_SECRET",
	"app.agent_id":   "AGENT_ID",
	"log.level":      "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	lim := DefaultLimits()

	v.SetDefault("app.port", "8080")
	v.SetDefault("app.agent_id", "device")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "autoflow")
	v.SetDefault("mdns.local_name", "autoflow.local")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.queue_size", 256)
	v.SetDefault("engine.match_window", 5*time.Minute)
	v.SetDefault("engine.probe_timeout", 30*time.Second)
	v.SetDefault("engine.state_ttl", 30*time.Minute)
	v.SetDefault("engine.timezone", "")

	v.SetDefault("limits.max_horizon", lim.MaxHorizon)
	v.SetDefault("limits.min_radius", lim.MinRadius)
	v.SetDefault("limits.max_radius", lim.MaxRadius)
	v.SetDefault("limits.max_registrations", lim.MaxRegistrations)
	v.SetDefault("limits.max_name_length", lim.MaxNameLength)
	v.SetDefault("limits.max_triggers", lim.MaxTriggers)
	v.SetDefault("limits.max_actions", lim.MaxActions)
	v.SetDefault("limits.max_title_length", lim.MaxTitleLength)
	v.SetDefault("limits.max_message_length", lim.MaxMessageLength)

	v.SetDefault("jwt.token_ttl", 0)

	v.SetDefault("effectors.permitted", []string{})
	v.SetDefault("effectors.script_timeout", 5*time.Second)
	v.SetDefault("effectors.foreground_max_age", 10*time.Second)

	v.SetDefault("blockpolicy.poll_interval", time.Second)
	v.SetDefault("blockpolicy.redis_key", "autoflow:blockpolicy")

	v.SetDefault("taskqueue.concurrency", 10)
	v.SetDefault("taskqueue.max_retry", 3)
	v.SetDefault("taskqueue.timeout", 10*time.Second)

	v.SetDefault("autoreply.enabled", false)
	v.SetDefault("autoreply.message", "")
	v.SetDefault("autoreply.cooldown", 5*time.Minute)
	v.SetDefault("autoreply.meeting_mode_only", true)
	v.SetDefault("autoreply.redis_prefix", "autoflow:autoreply")
}

// LoadConfig reads configuration from .env, an optional config.yaml, and env vars
func LoadConfig() (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	cfg := &Config{
		Port:       v.GetString("app.port"),
		AgentID:    v.GetString("app.agent_id"),
		DBURL:      v.GetString("database.url"),
		RedisAddr:  v.GetString("redis.addr"),
		MQTTBroker: v.GetString("mqtt.broker"),
		MQTTClient: v.GetString("mqtt.client_id"),
		JWTSecret:  v.GetString("jwt.secret"),
		MDNSName:   v.GetString("mdns.local_name"),
		LogLevel:   v.GetString("log.level"),
		LogFormat:  v.GetString("log.format"),
		TokenTTL:   v.GetDuration("jwt.token_ttl"),
		Engine: EngineConfig{
			Workers:      v.GetInt("engine.workers"),
			QueueSize:    v.GetInt("engine.queue_size"),
			MatchWindow:  v.GetDuration("engine.match_window"),
			ProbeTimeout: v.GetDuration("engine.probe_timeout"),
			StateTTL:     v.GetDuration("engine.state_ttl"),
			Timezone:     v.GetString("engine.timezone"),
		},
		Limits: Limits{
			MaxHorizon:       v.GetDuration("limits.max_horizon"),
			MinRadius:        v.GetFloat64("limits.min_radius"),
			MaxRadius:        v.GetFloat64("limits.max_radius"),
			MaxRegistrations: v.GetInt("limits.max_registrations"),
			MaxNameLength:    v.GetInt("limits.max_name_length"),
			MaxTriggers:      v.GetInt("limits.max_triggers"),
			MaxActions:       v.GetInt("limits.max_actions"),
			MaxTitleLength:   v.GetInt("limits.max_title_length"),
			MaxMessageLength: v.GetInt("limits.max_message_length"),
		},
		Effectors: EffectorsConfig{
			Permitted:        v.GetStringSlice("effectors.permitted"),
			ScriptTimeout:    v.GetDuration("effectors.script_timeout"),
			ForegroundMaxAge: v.GetDuration("effectors.foreground_max_age"),
		},
		BlockPolicy: BlockPolicyConfig{
			PollInterval: v.GetDuration("blockpolicy.poll_interval"),
			RedisKey:     v.GetString("blockpolicy.redis_key"),
		},
		TaskQueue: TaskQueueConfig{
			Concurrency: v.GetInt("taskqueue.concurrency"),
			MaxRetry:    v.GetInt("taskqueue.max_retry"),
			Timeout:     v.GetDuration("taskqueue.timeout"),
		},
		AutoReply: AutoReplyConfig{
			Enabled:         v.GetBool("autoreply.enabled"),
			Message:         v.GetString("autoreply.message"),
			Cooldown:        v.GetDuration("autoreply.cooldown"),
			MeetingModeOnly: v.GetBool("autoreply.meeting_mode_only"),
			RedisPrefix:     v.GetString("autoreply.redis_prefix"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	switch {
	case c.Engine.Workers < 1:
		return fmt.Errorf("engine.workers must be at least 1, got %d", c.Engine.Workers)
	case c.Engine.QueueSize < 1:
		return fmt.Errorf("engine.queue_size must be at least 1, got %d", c.Engine.QueueSize)
	case c.Engine.MatchWindow <= 0:
		return fmt.Errorf("engine.match_window must be positive")
	case c.Limits.MinRadius <= 0 || c.Limits.MinRadius > c.Limits.MaxRadius:
		return fmt.Errorf("limits: invalid radius range [%v, %v]", c.Limits.MinRadius, c.Limits.MaxRadius)
	case c.Limits.MaxRegistrations < 1:
		return fmt.Errorf("limits.max_registrations must be at least 1")
	case c.AutoReply.Cooldown < 0:
		return fmt.Errorf("autoreply.cooldown must not be negative")
	}
	return nil
}
