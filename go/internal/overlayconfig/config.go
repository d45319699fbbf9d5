package overlayconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds settings for the overlay gateway.
type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	NATS struct {
		URL           string        `yaml:"url"`
		SubjectPrefix string        `yaml:"subject_prefix"`
		ChannelID     string        `yaml:"channel_id"`
		MaxReconnects int           `yaml:"max_reconnects"`
		ReconnectWait time.Duration `yaml:"reconnect_wait"`
	} `yaml:"nats"`

	Intake struct {
		TickInterval time.Duration `yaml:"tick_interval"`
		StaleAfter   time.Duration `yaml:"stale_after"`
		// InitialLatency seeds the broadcaster latency for channels without a
		// context publisher. Nil holds every message until a context update arrives.
		InitialLatency *time.Duration `yaml:"initial_latency"`
	} `yaml:"intake"`

	Stats struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"stats"`
}

// Default returns the built-in configuration.
func Default() Config {
	var c Config
	c.Port = "8081"
	c.LogLevel = "info"
	c.NATS.URL = "nats://localhost:4222"
	c.NATS.SubjectPrefix = "overlay"
	c.NATS.ChannelID = "default"
	c.NATS.MaxReconnects = -1
	c.NATS.ReconnectWait = 2 * time.Second
	c.Intake.TickInterval = 300 * time.Millisecond
	c.Intake.StaleAfter = 120 * time.Second
	c.Stats.Timeout = 10 * time.Second
	return c
}

// Load reads the YAML file at path (skipped when path is empty) on top of the
// defaults, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the intake pipeline cannot run with.
func (c Config) Validate() error {
	if c.NATS.ChannelID == "" {
		return fmt.Errorf("nats.channel_id is required")
	}
	if c.Intake.TickInterval <= 0 {
		return fmt.Errorf("intake.tick_interval must be positive, got %s", c.Intake.TickInterval)
	}
	if c.Intake.StaleAfter <= 0 {
		return fmt.Errorf("intake.stale_after must be positive, got %s", c.Intake.StaleAfter)
	}
	if c.Intake.InitialLatency != nil && *c.Intake.InitialLatency < 0 {
		return fmt.Errorf("intake.initial_latency must not be negative, got %s", *c.Intake.InitialLatency)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.SubjectPrefix = getEnv("OVERLAY_SUBJECT_PREFIX", c.NATS.SubjectPrefix)
	c.NATS.ChannelID = getEnv("OVERLAY_CHANNEL_ID", c.NATS.ChannelID)
	c.NATS.MaxReconnects = getEnvAsInt("NATS_MAX_RECONNECTS", c.NATS.MaxReconnects)
	c.NATS.ReconnectWait = getEnvAsDuration("NATS_RECONNECT_WAIT", c.NATS.ReconnectWait)
	c.Intake.TickInterval = getEnvAsDuration("OVERLAY_TICK_INTERVAL", c.Intake.TickInterval)
	c.Intake.StaleAfter = getEnvAsDuration("OVERLAY_STALE_AFTER", c.Intake.StaleAfter)
	if value := os.Getenv("OVERLAY_INITIAL_LATENCY"); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			c.Intake.InitialLatency = &d
		}
	}
	c.Stats.BaseURL = getEnv("STATS_BASE_URL", c.Stats.BaseURL)
	c.Stats.Timeout = getEnvAsDuration("STATS_TIMEOUT", c.Stats.Timeout)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
