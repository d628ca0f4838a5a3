// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Crawl        CrawlConfig        `mapstructure:"crawl"`
	Research     ResearchConfig     `mapstructure:"research"`
	Content      ContentConfig      `mapstructure:"content"`
	WordPress    WordPressConfig    `mapstructure:"wordpress"`
	Events       EventsConfig       `mapstructure:"events"`
	Artifacts    ArtifactsConfig    `mapstructure:"artifacts"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
	StopTimeoutSeconds    int `mapstructure:"stop_timeout_seconds"`
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

// OrchestratorConfig sets per-site engine defaults; start requests may
// override the concurrency cap.
type OrchestratorConfig struct {
	TickSeconds        int `mapstructure:"tick_seconds"`
	MaxConcurrentTasks int `mapstructure:"max_concurrent_tasks"`
}

// CrawlConfig governs page discovery and headless rendering.
type CrawlConfig struct {
	UserAgent           string `mapstructure:"user_agent"`
	MaxPages            int    `mapstructure:"max_pages"`
	MaxDepth            int    `mapstructure:"max_depth"`
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
	RenderEnabled       bool   `mapstructure:"render_enabled"`
	RenderMaxParallel   int    `mapstructure:"render_max_parallel"`
	RenderNavTimeoutSec int    `mapstructure:"render_nav_timeout_seconds"`
}

// ResearchConfig points at the keyword and SERP research API.
type ResearchConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Region         string `mapstructure:"region"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ContentConfig points at the content generation API.
type ContentConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// WordPressConfig holds publishing credentials. Publishing is optional;
// sites without credentials run with the publisher disconnected.
type WordPressConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Username       string `mapstructure:"username"`
	AppPassword    string `mapstructure:"app_password"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// EventsConfig selects the sinks attached to the event hub. The log and
// in-memory sinks are always on; Postgres and Pub/Sub attach when set.
type EventsConfig struct {
	MemoryCapacity  int    `mapstructure:"memory_capacity"`
	PostgresDSN     string `mapstructure:"postgres_dsn"`
	PostgresTable   string `mapstructure:"postgres_table"`
	PubSubProjectID string `mapstructure:"pubsub_project_id"`
	PubSubTopic     string `mapstructure:"pubsub_topic"`
}

// ArtifactsConfig selects where generated content artifacts are stored.
type ArtifactsConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OPTIVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.stop_timeout_seconds", 30)
	v.SetDefault("logging.development", true)
	v.SetDefault("orchestrator.tick_seconds", 2)
	v.SetDefault("orchestrator.max_concurrent_tasks", 3)
	v.SetDefault("crawl.user_agent", "optiview-bot/0.1")
	v.SetDefault("crawl.max_pages", 100)
	v.SetDefault("crawl.max_depth", 3)
	v.SetDefault("crawl.timeout_seconds", 15)
	v.SetDefault("crawl.render_enabled", false)
	v.SetDefault("crawl.render_max_parallel", 1)
	v.SetDefault("crawl.render_nav_timeout_seconds", 45)
	v.SetDefault("research.timeout_seconds", 20)
	v.SetDefault("research.region", "us")
	v.SetDefault("content.timeout_seconds", 120)
	v.SetDefault("wordpress.timeout_seconds", 30)
	v.SetDefault("events.memory_capacity", 256)
	v.SetDefault("events.postgres_table", "orchestration_events")
	v.SetDefault("artifacts.backend", "memory")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Orchestrator.TickSeconds <= 0 {
		return fmt.Errorf("orchestrator.tick_seconds must be > 0")
	}
	if c.Orchestrator.MaxConcurrentTasks <= 0 {
		return fmt.Errorf("orchestrator.max_concurrent_tasks must be > 0")
	}
	if c.Crawl.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be > 0")
	}
	if c.Crawl.RenderEnabled && c.Crawl.RenderMaxParallel <= 0 {
		return fmt.Errorf("crawl.render_max_parallel must be > 0 when rendering is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Artifacts.Backend {
	case "memory":
	case "local":
		if c.Artifacts.BaseDir == "" {
			return fmt.Errorf("artifacts.base_dir must be set for the local backend")
		}
	case "gcs":
		if c.Artifacts.GCSBucket == "" {
			return fmt.Errorf("artifacts.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("artifacts.backend must be one of memory, local, gcs")
	}
	return nil
}

// TickInterval converts the orchestrator tick into a duration.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.Orchestrator.TickSeconds) * time.Second
}
