// Package config loads the engine's runtime configuration from environment
// variables, an optional .env file, and CLI flag overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every tunable the engine reads at startup. All environment
// variables use the ZMETA_ prefix.
type Config struct {
	UDPHost     string `env:"ZMETA_UDP_HOST" envDefault:"0.0.0.0"`
	UDPPort     int    `env:"ZMETA_UDP_PORT" envDefault:"5005"`
	UDPQueueMax int    `env:"ZMETA_UDP_QUEUE_MAX" envDefault:"4096"`

	HTTPAddr  string `env:"ZMETA_HTTP_ADDR" envDefault:":8000"`
	UIBaseURL string `env:"ZMETA_UI_BASE_URL" envDefault:"http://127.0.0.1:8000"`

	WSGreeting string `env:"ZMETA_WS_GREETING" envDefault:"Connected to ZMeta WebSocket"`
	WSQueue    int    `env:"ZMETA_WS_QUEUE" envDefault:"64"`

	CORSOrigins string `env:"ZMETA_CORS_ORIGINS" envDefault:"*"`

	AuthHeader   string `env:"ZMETA_AUTH_HEADER" envDefault:"x-zmeta-secret"`
	SharedSecret string `env:"ZMETA_SHARED_SECRET"`

	Env string `env:"ZMETA_ENV" envDefault:"dev"`

	LogLevel string `env:"ZMETA_LOG_LEVEL" envDefault:"info"`

	RulesFile string `env:"ZMETA_RULES_FILE" envDefault:"config/rules.yaml"`
	RecordDir string `env:"ZMETA_RECORD_DIR" envDefault:"data/records"`

	// RecorderRetentionHours is a string because empty must mean "disabled"
	// (a zero int can't carry that distinction) and because an invalid
	// non-numeric or non-positive value must surface as a ConfigError
	// rather than silently default.
	RecorderRetentionHours string `env:"ZMETA_RECORDER_RETENTION_HOURS"`

	// Optional MQTT ingest bridge (third transport, additive to UDP/HTTP).
	MQTTBrokerURL string `env:"ZMETA_MQTT_BROKER_URL"`
	MQTTTopics    string `env:"ZMETA_MQTT_TOPICS" envDefault:"zmeta/ingest/#"`
	MQTTClientID  string `env:"ZMETA_MQTT_CLIENT_ID" envDefault:"zmeta-engine"`
	MQTTUsername  string `env:"ZMETA_MQTT_USERNAME"`
	MQTTPassword  string `env:"ZMETA_MQTT_PASSWORD"`
	MQTTEmbed     bool   `env:"ZMETA_MQTT_EMBED" envDefault:"false"`
	MQTTEmbedAddr string `env:"ZMETA_MQTT_EMBED_ADDR" envDefault:":1883"`

	UDPTargetHost string `env:"ZMETA_UDP_TARGET_HOST"`
	SimUDPHost    string `env:"ZMETA_SIM_UDP_HOST"`

	ReadTimeout  time.Duration `env:"ZMETA_HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"ZMETA_HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"ZMETA_HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	RateLimitRPS   float64 `env:"ZMETA_RATE_LIMIT_RPS" envDefault:"50"`
	RateLimitBurst int     `env:"ZMETA_RATE_LIMIT_BURST" envDefault:"100"`
}

// AuthEnabled reports whether the shared-secret check is active.
func (c *Config) AuthEnabled() bool {
	return c.SharedSecret != ""
}

// CORSOriginList parses CORSOrigins into an allow-list. "*" (the default)
// means no restriction (nil, handled by the caller as allow-all). An empty
// string produces an empty, non-nil slice so the caller can distinguish
// "no origins allowed" from "all origins allowed".
func (c *Config) CORSOriginList() []string {
	if c.CORSOrigins == "*" {
		return nil
	}
	if c.CORSOrigins == "" {
		return []string{}
	}
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

// RecorderRetention parses RecorderRetentionHours. An empty string disables
// retention pruning (ok=false). A malformed or non-positive value is a fatal
// ConfigError.
func (c *Config) RecorderRetention() (d time.Duration, ok bool, err error) {
	if strings.TrimSpace(c.RecorderRetentionHours) == "" {
		return 0, false, nil
	}
	hours, perr := strconv.ParseFloat(c.RecorderRetentionHours, 64)
	if perr != nil {
		return 0, false, fmt.Errorf("invalid ZMETA_RECORDER_RETENTION_HOURS %q: %w", c.RecorderRetentionHours, perr)
	}
	if hours <= 0 {
		return 0, false, fmt.Errorf("invalid ZMETA_RECORDER_RETENTION_HOURS %q: must be > 0", c.RecorderRetentionHours)
	}
	return time.Duration(hours * float64(time.Hour)), true, nil
}

// Validate checks invariants that env.Parse can't express on its own.
func (c *Config) Validate() error {
	if _, _, err := c.RecorderRetention(); err != nil {
		return err
	}
	return nil
}

// Overrides holds CLI flag values that take priority over environment variables.
type Overrides struct {
	EnvFile       string
	HTTPAddr      string
	LogLevel      string
	UDPHost       string
	RulesFile     string
	RecordDir     string
	MQTTBrokerURL string
}

// Load reads configuration from a .env file, environment variables, and CLI
// overrides. Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.UDPHost != "" {
		cfg.UDPHost = overrides.UDPHost
	}
	if overrides.RulesFile != "" {
		cfg.RulesFile = overrides.RulesFile
	}
	if overrides.RecordDir != "" {
		cfg.RecordDir = overrides.RecordDir
	}
	if overrides.MQTTBrokerURL != "" {
		cfg.MQTTBrokerURL = overrides.MQTTBrokerURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
