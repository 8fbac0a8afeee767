// Package config loads hazardfeed settings from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Overflow policies for slow live-stream subscribers
const (
	OverflowDropOldest = "drop-oldest"
	OverflowDisconnect = "disconnect"
)

// Zone source kinds
const (
	SourceStatic = "static"
	SourceFeed   = "feed"
	SourceHWA    = "hwa"
)

// Config holds all service settings
type Config struct {
	HTTPAddr        string        `yaml:"http_addr"`
	DataDir         string        `yaml:"data_dir"`
	MediaDir        string        `yaml:"media_dir"`
	PublicURL       string        `yaml:"public_url"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigin      string        `yaml:"cors_origin"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`

	Auth      AuthConfig      `yaml:"auth"`
	Events    EventsConfig    `yaml:"events"`
	Zones     ZonesConfig     `yaml:"zones"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// TrustedProxies lists the addresses or CIDR ranges of reverse proxies
	// whose X-Forwarded-For and X-Real-IP headers are believed. Empty means
	// the peer address is always the client.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// AuthConfig configures bearer token signing
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// EventsConfig configures the live event broker
type EventsConfig struct {
	BufferSize int    `yaml:"buffer_size"`
	Overflow   string `yaml:"overflow"`
}

// ZonesConfig configures the hazard zone refresher and its source
type ZonesConfig struct {
	Source          string        `yaml:"source"`
	FeedURL         string        `yaml:"feed_url"`
	HWAURL          string        `yaml:"hwa_url"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	DefaultRadiusM  float64       `yaml:"default_radius_m"`
	BulletinTTL     time.Duration `yaml:"bulletin_ttl"`
}

// KafkaConfig configures the optional event mirror. Mirroring is off when
// Brokers is empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// RateLimitConfig bounds post submissions per client IP
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		HTTPAddr:        ":5000",
		DataDir:         "./data",
		PublicURL:       "http://localhost:5000",
		LogLevel:        "info",
		LogFormat:       "json",
		ShutdownTimeout: 10 * time.Second,
		CORSOrigin:      "http://localhost:3000",
		MaxUploadBytes:  32 << 20,
		Auth: AuthConfig{
			TokenTTL: 7 * 24 * time.Hour,
		},
		Events: EventsConfig{
			BufferSize: 64,
			Overflow:   OverflowDropOldest,
		},
		Zones: ZonesConfig{
			Source:          SourceStatic,
			HWAURL:          "https://incois.gov.in/site/services/hwa.jsp",
			RefreshInterval: 10 * time.Minute,
			FetchTimeout:    15 * time.Second,
			DefaultRadiusM:  50000,
			BulletinTTL:     time.Minute,
		},
		Kafka: KafkaConfig{
			Topic: "hazardfeed-events",
		},
		RateLimit: RateLimitConfig{
			RPS:   2,
			Burst: 5,
		},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.MediaDir == "" {
		cfg.MediaDir = cfg.DataDir + "/media"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and enumerations
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("token TTL must be positive")
	}
	if c.Events.BufferSize <= 0 {
		return errors.New("EVENT_BUFFER_SIZE must be positive")
	}
	switch c.Events.Overflow {
	case OverflowDropOldest, OverflowDisconnect:
	default:
		return fmt.Errorf("invalid EVENT_OVERFLOW %q", c.Events.Overflow)
	}
	switch c.Zones.Source {
	case SourceStatic:
	case SourceFeed:
		if c.Zones.FeedURL == "" {
			return errors.New("ZONE_FEED_URL is required for the feed zone source")
		}
	case SourceHWA:
		if c.Zones.HWAURL == "" {
			return errors.New("ZONE_HWA_URL is required for the hwa zone source")
		}
	default:
		return fmt.Errorf("invalid ZONE_SOURCE %q", c.Zones.Source)
	}
	if c.Zones.RefreshInterval <= 0 {
		return errors.New("ZONE_REFRESH_INTERVAL must be positive")
	}
	if c.Zones.FetchTimeout <= 0 {
		return errors.New("zone fetch timeout must be positive")
	}
	if c.Zones.BulletinTTL < 0 {
		return errors.New("HWA_BULLETIN_TTL must not be negative")
	}
	for _, p := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(p); err != nil && net.ParseIP(p) == nil {
			return fmt.Errorf("invalid TRUSTED_PROXIES entry %q", p)
		}
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.DataDir, "DATA_DIR")
	setString(&cfg.MediaDir, "MEDIA_DIR")
	setString(&cfg.PublicURL, "PUBLIC_URL")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogFormat, "LOG_FORMAT")
	setString(&cfg.CORSOrigin, "CLIENT_URL")
	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Events.Overflow, "EVENT_OVERFLOW")
	setString(&cfg.Zones.Source, "ZONE_SOURCE")
	setString(&cfg.Zones.FeedURL, "ZONE_FEED_URL")
	setString(&cfg.Zones.HWAURL, "ZONE_HWA_URL")
	setString(&cfg.Kafka.Topic, "KAFKA_TOPIC")

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = parseList(v)
	}
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = parseList(v)
	}

	if err := setDuration(&cfg.ShutdownTimeout, "SHUTDOWN_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Zones.RefreshInterval, "ZONE_REFRESH_INTERVAL"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Zones.BulletinTTL, "HWA_BULLETIN_TTL"); err != nil {
		return err
	}
	if v := os.Getenv("EVENT_BUFFER_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid EVENT_BUFFER_SIZE: %w", err)
		}
		cfg.Events.BufferSize = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
