// Package config loads and validates dashboard configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	AI        AIConfig        `mapstructure:"ai"`
	Store     StoreConfig     `mapstructure:"store"`
	Storage   StorageConfig   `mapstructure:"storage"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Activity  ActivityConfig  `mapstructure:"activity"`
	Probe     ProbeConfig     `mapstructure:"probe"`
	Drive     DriveConfig     `mapstructure:"drive"`
	Sessions  SessionsConfig  `mapstructure:"sessions"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// AIConfig selects models and quotas for the generative backend.
type AIConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	BaseURL        string  `mapstructure:"base_url"`
	IntentModel    string  `mapstructure:"intent_model"`
	CodeModel      string  `mapstructure:"code_model"`
	FastModel      string  `mapstructure:"fast_model"`
	ChatModel      string  `mapstructure:"chat_model"`
	ThinkingBudget int     `mapstructure:"thinking_budget"`
	Language       string  `mapstructure:"language"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RatePerMinute  float64 `mapstructure:"rate_per_minute"`
	Burst          int     `mapstructure:"burst"`
}

// Timeout converts TimeoutSeconds into a duration.
func (a AIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// StoreConfig picks and configures the project registry backend.
type StoreConfig struct {
	Backend    string `mapstructure:"backend"`
	DSN        string `mapstructure:"dsn"`
	SQLitePath string `mapstructure:"sqlite_path"`
	Table      string `mapstructure:"table"`
	MaxConns   int32  `mapstructure:"max_conns"`
	Seed       bool   `mapstructure:"seed"`
	SeedFile   string `mapstructure:"seed_file"`
}

// StorageConfig sets the backend and prefix for exported spider code.
type StorageConfig struct {
	Backend string             `mapstructure:"backend"`
	Bucket  string             `mapstructure:"bucket"`
	Prefix  string             `mapstructure:"prefix"`
	Local   LocalStorageConfig `mapstructure:"local"`
}

// LocalStorageConfig configures the filesystem blob backend.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ActivityConfig tunes the activity hub and its sinks.
type ActivityConfig struct {
	BufferSize    int                 `mapstructure:"buffer_size"`
	Batch         ActivityBatchConfig `mapstructure:"batch"`
	SinkTimeoutMs int                 `mapstructure:"sink_timeout_ms"`
	LogEnabled    bool                `mapstructure:"log_enabled"`
	RingSize      int                 `mapstructure:"ring_size"`
}

// ActivityBatchConfig bounds hub flushes.
type ActivityBatchConfig struct {
	MaxEvents int `mapstructure:"max_events"`
	MaxWaitMs int `mapstructure:"max_wait_ms"`
}

// ProbeConfig controls the wizard preflight fetch.
type ProbeConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	UserAgent          string `mapstructure:"user_agent"`
	TimeoutSeconds     int    `mapstructure:"timeout_seconds"`
	RespectRobots      bool   `mapstructure:"respect_robots"`
	PromotionThreshold int    `mapstructure:"promotion_threshold"`
	// AllowPrivate lets the preflight reach loopback, private and link-local
	// addresses. Off by default so the server cannot be pointed at itself or
	// at cloud metadata endpoints.
	AllowPrivate bool `mapstructure:"allow_private"`
}

// DriveConfig lists substrings that indicate drive support in spider code.
type DriveConfig struct {
	Markers []string `mapstructure:"markers"`
}

// SessionsConfig bounds browser session state.
type SessionsConfig struct {
	Max        int    `mapstructure:"max"`
	CookieName string `mapstructure:"cookie_name"`
}

// TelemetryConfig names the service for traces and optionally enables Cloud Trace export.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	Version     string `mapstructure:"version"`
	ProjectID   string `mapstructure:"project_id"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPYDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	// The model credential is commonly exported under the vendor's own names.
	if err := v.BindEnv("ai.api_key", "SCRAPYDASH_AI_API_KEY", "GEMINI_API_KEY", "API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind ai.api_key: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("ai.intent_model", "gemini-flash-lite-latest")
	v.SetDefault("ai.code_model", "gemini-3-pro-preview")
	v.SetDefault("ai.fast_model", "gemini-3-flash-preview")
	v.SetDefault("ai.chat_model", "gemini-3-flash-preview")
	v.SetDefault("ai.thinking_budget", 32768)
	v.SetDefault("ai.language", "Thai")
	v.SetDefault("ai.timeout_seconds", 120)
	v.SetDefault("ai.rate_per_minute", 30)
	v.SetDefault("ai.burst", 5)
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.sqlite_path", "scrapydash.db")
	v.SetDefault("store.table", "projects")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.seed", true)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.prefix", "spiders")
	v.SetDefault("storage.local.base_dir", "exports")
	v.SetDefault("activity.buffer_size", 256)
	v.SetDefault("activity.batch.max_events", 16)
	v.SetDefault("activity.batch.max_wait_ms", 250)
	v.SetDefault("activity.sink_timeout_ms", 2000)
	v.SetDefault("activity.log_enabled", true)
	v.SetDefault("activity.ring_size", 200)
	v.SetDefault("probe.enabled", true)
	v.SetDefault("probe.user_agent", "ai-scrapy-dashboard/0.1 (+preflight)")
	v.SetDefault("probe.timeout_seconds", 10)
	v.SetDefault("probe.respect_robots", true)
	v.SetDefault("probe.promotion_threshold", 2048)
	v.SetDefault("probe.allow_private", false)
	v.SetDefault("drive.markers", []string{"pydrive", "GoogleDrive", "googleapiclient", "drive.google.com"})
	v.SetDefault("sessions.max", 1000)
	v.SetDefault("sessions.cookie_name", "scrapydash_session")
	v.SetDefault("telemetry.service_name", "ai-scrapy-dashboard")
	v.SetDefault("telemetry.version", "dev")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.AI.TimeoutSeconds <= 0 {
		return fmt.Errorf("ai.timeout_seconds must be > 0")
	}
	if c.AI.RatePerMinute < 0 {
		return fmt.Errorf("ai.rate_per_minute must be >= 0")
	}
	switch c.Store.Backend {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set for the postgres backend")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path must be set for the sqlite backend")
		}
	default:
		return fmt.Errorf("store.backend %q is not one of memory, postgres, sqlite", c.Store.Backend)
	}
	switch c.Storage.Backend {
	case "memory":
	case "local":
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, local, gcs", c.Storage.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if c.Activity.BufferSize <= 0 {
		return fmt.Errorf("activity.buffer_size must be > 0")
	}
	if c.Sessions.Max <= 0 {
		return fmt.Errorf("sessions.max must be > 0")
	}
	return nil
}
