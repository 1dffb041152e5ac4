// Package config loads sdnguard settings from a .env file, an optional YAML
// file and the process environment, in that order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds server configuration.
type Config struct {
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Controller  ControllerConfig  `yaml:"controller"`
	ThreatIntel ThreatIntelConfig `yaml:"threat_intel"`
	LLM         LLMConfig         `yaml:"llm"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Session     SessionConfig     `yaml:"session"`
	Audit       AuditConfig       `yaml:"audit"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`

	GuardPolicyFile   string `yaml:"guard_policy_file"`
	CORSAllowedOrigin string `yaml:"cors_allowed_origin"`

	// Warnings collects values that could not be parsed and were replaced
	// by their defaults.
	Warnings []string `yaml:"-"`
}

// ControllerConfig addresses the SDN controller REST API.
type ControllerConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ThreatIntelConfig addresses the IP reputation service.
type ThreatIntelConfig struct {
	APIKey     string        `yaml:"api_key"`
	URL        string        `yaml:"url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxAgeDays int           `yaml:"max_age_days"`
}

// LLMConfig selects the reasoning engine transport.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
}

// DispatchConfig bounds a single conversational turn.
type DispatchConfig struct {
	MaxActions  int           `yaml:"max_actions"`
	TurnTimeout time.Duration `yaml:"turn_timeout"`
}

// SessionConfig selects and sizes the session store.
type SessionConfig struct {
	Backend       string        `yaml:"backend"`
	MaxTurns      int           `yaml:"max_turns"`
	IdleTTL       time.Duration `yaml:"idle_ttl"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
}

// AuditConfig selects the audit sinks. All sinks are optional.
type AuditConfig struct {
	DatabaseURL  string   `yaml:"database_url"`
	SQLitePath   string   `yaml:"sqlite_path"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`

	Archive ArchiveConfig `yaml:"archive"`
}

// ArchiveConfig selects where exported audit chains are kept.
type ArchiveConfig struct {
	Backend  string `yaml:"backend"`
	Dir      string `yaml:"dir"`
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
	Prefix   string `yaml:"prefix"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port:      "5001",
		LogLevel:  "info",
		LogFormat: "text",
		Controller: ControllerConfig{
			URL:     "http://localhost:8080",
			Timeout: 5 * time.Second,
		},
		ThreatIntel: ThreatIntelConfig{
			URL:        "https://api.abuseipdb.com",
			Timeout:    10 * time.Second,
			MaxAgeDays: 90,
		},
		LLM: LLMConfig{
			Provider: "openai",
		},
		Dispatch: DispatchConfig{
			MaxActions:  12,
			TurnTimeout: 45 * time.Second,
		},
		Session: SessionConfig{
			Backend:   "memory",
			MaxTurns:  50,
			IdleTTL:   time.Hour,
			RedisAddr: "localhost:6379",
		},
		Audit: AuditConfig{
			KafkaTopic: "sdnguard.audit",
			Archive: ArchiveConfig{
				Backend: "fs",
				Dir:     "data/archive",
			},
		},
		Telemetry: TelemetryConfig{
			Endpoint: "localhost:4317",
			Insecure: true,
		},
		CORSAllowedOrigin: "*",
	}
}

// Load builds the configuration. A missing .env file is not an error; a
// YAML file named by SDNGUARD_CONFIG that cannot be read or parsed is.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("SDNGUARD_CONFIG"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = c.str("PORT", c.Port)
	c.LogLevel = strings.ToLower(c.str("LOG_LEVEL", c.LogLevel))
	c.LogFormat = strings.ToLower(c.str("LOG_FORMAT", c.LogFormat))

	c.Controller.URL = strings.TrimRight(c.str("RYU_CONTROLLER_URL", c.Controller.URL), "/")
	c.Controller.Timeout = c.duration("RYU_TIMEOUT", c.Controller.Timeout)

	c.ThreatIntel.APIKey = c.str("ABUSEIPDB_API_KEY", c.ThreatIntel.APIKey)
	c.ThreatIntel.URL = strings.TrimRight(c.str("ABUSEIPDB_URL", c.ThreatIntel.URL), "/")
	c.ThreatIntel.Timeout = c.duration("ABUSEIPDB_TIMEOUT", c.ThreatIntel.Timeout)
	c.ThreatIntel.MaxAgeDays = c.integer("ABUSEIPDB_MAX_AGE_DAYS", c.ThreatIntel.MaxAgeDays)

	c.LLM.Provider = strings.ToLower(c.str("LLM_PROVIDER", c.LLM.Provider))
	c.LLM.Model = c.str("LLM_MODEL", c.LLM.Model)
	c.LLM.BaseURL = c.str("LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.Temperature = c.float("LLM_TEMPERATURE", c.LLM.Temperature)
	c.LLM.APIKey = c.str("LLM_API_KEY", c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv(providerKeyEnv(c.LLM.Provider))
	}

	c.Dispatch.MaxActions = c.integer("MAX_ACTIONS_PER_TURN", c.Dispatch.MaxActions)
	c.Dispatch.TurnTimeout = c.duration("TURN_TIMEOUT", c.Dispatch.TurnTimeout)

	c.Session.Backend = strings.ToLower(c.str("SESSION_BACKEND", c.Session.Backend))
	c.Session.MaxTurns = c.integer("SESSION_MAX_TURNS", c.Session.MaxTurns)
	c.Session.IdleTTL = c.duration("SESSION_IDLE_TTL", c.Session.IdleTTL)
	c.Session.RedisAddr = c.str("REDIS_ADDR", c.Session.RedisAddr)
	c.Session.RedisPassword = c.str("REDIS_PASSWORD", c.Session.RedisPassword)
	c.Session.RedisDB = c.integer("REDIS_DB", c.Session.RedisDB)

	c.Audit.DatabaseURL = c.str("AUDIT_DATABASE_URL", c.Audit.DatabaseURL)
	c.Audit.SQLitePath = c.str("AUDIT_SQLITE_PATH", c.Audit.SQLitePath)
	if brokers := os.Getenv("AUDIT_KAFKA_BROKERS"); brokers != "" {
		c.Audit.KafkaBrokers = splitList(brokers)
	}
	c.Audit.KafkaTopic = c.str("AUDIT_KAFKA_TOPIC", c.Audit.KafkaTopic)
	c.Audit.Archive.Backend = strings.ToLower(c.str("AUDIT_ARCHIVE_BACKEND", c.Audit.Archive.Backend))
	c.Audit.Archive.Dir = c.str("AUDIT_ARCHIVE_DIR", c.Audit.Archive.Dir)
	c.Audit.Archive.Bucket = c.str("AUDIT_ARCHIVE_BUCKET", c.Audit.Archive.Bucket)
	c.Audit.Archive.Region = c.str("AUDIT_ARCHIVE_REGION", c.str("AWS_REGION", c.Audit.Archive.Region))
	c.Audit.Archive.Endpoint = c.str("AUDIT_ARCHIVE_ENDPOINT", c.Audit.Archive.Endpoint)
	c.Audit.Archive.Prefix = c.str("AUDIT_ARCHIVE_PREFIX", c.Audit.Archive.Prefix)

	c.Telemetry.Enabled = c.boolean("OTEL_ENABLED", c.Telemetry.Enabled)
	c.Telemetry.Endpoint = c.str("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.Endpoint)
	c.Telemetry.Insecure = c.boolean("OTEL_INSECURE", c.Telemetry.Insecure)

	c.GuardPolicyFile = c.str("GUARD_POLICY_FILE", c.GuardPolicyFile)
	c.CORSAllowedOrigin = c.str("CORS_ALLOWED_ORIGIN", c.CORSAllowedOrigin)
}

// Validate reports settings that leave a feature degraded. None of them
// prevent startup.
func (c *Config) Validate() []string {
	out := append([]string(nil), c.Warnings...)
	if c.ThreatIntel.APIKey == "" {
		out = append(out, "ABUSEIPDB_API_KEY is not set; IP reputation checks will report a configuration error")
	}
	if c.LLM.APIKey == "" && c.LLM.BaseURL == "" {
		out = append(out, fmt.Sprintf("no API key for LLM provider %q", c.LLM.Provider))
	}
	if c.Dispatch.MaxActions <= 0 {
		out = append(out, "MAX_ACTIONS_PER_TURN must be positive")
	}
	switch c.Session.Backend {
	case "memory", "redis":
	default:
		out = append(out, fmt.Sprintf("unknown SESSION_BACKEND %q, using memory", c.Session.Backend))
	}
	return out
}

func providerKeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "gemini":
		return "GEMINI_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

func (c *Config) str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (c *Config) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Bare integers are seconds.
		if n, nerr := strconv.Atoi(v); nerr == nil {
			return time.Duration(n) * time.Second
		}
		c.warn(key, v)
		return def
	}
	return d
}

func (c *Config) integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		c.warn(key, v)
		return def
	}
	return n
}

func (c *Config) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		c.warn(key, v)
		return def
	}
	return f
}

func (c *Config) boolean(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		c.warn(key, v)
		return def
	}
	return b
}

func (c *Config) warn(key, value string) {
	c.Warnings = append(c.Warnings, fmt.Sprintf("invalid %s=%q, using default", key, value))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
