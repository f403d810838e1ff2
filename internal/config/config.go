// Package config loads and validates collector configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	DB      DBConfig      `mapstructure:"db"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs the frontier and worker pool.
type CrawlerConfig struct {
	SeedURL        string  `mapstructure:"seed_url"`
	SameDomainOnly bool    `mapstructure:"same_domain_only"`
	MaxPages       int64   `mapstructure:"max_pages"`
	Workers        int     `mapstructure:"workers"`
	DelaySeconds   float64 `mapstructure:"delay_seconds"`
	UserAgent      string  `mapstructure:"user_agent"`
}

// HTTPConfig configures the outbound HTTP client.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// DBConfig controls access to the frontier database.
type DBConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("URLCOLLECTOR")
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
	v.SetDefault("crawler.same_domain_only", false)
	v.SetDefault("crawler.max_pages", 0)
	v.SetDefault("crawler.workers", 1)
	v.SetDefault("crawler.delay_seconds", 0.5)
	v.SetDefault("crawler.user_agent", "urlcollector/1.0")
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("db.table", "urls")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits before anything in
// the core sees the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.SeedURL == "" {
		return fmt.Errorf("crawler.seed_url is required")
	}
	u, err := url.Parse(c.Crawler.SeedURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("crawler.seed_url must be an absolute http(s) URL")
	}
	if c.Crawler.Workers < 1 {
		return fmt.Errorf("crawler.workers must be >= 1")
	}
	if c.Crawler.MaxPages < 0 {
		return fmt.Errorf("crawler.max_pages must be >= 0")
	}
	if c.Crawler.DelaySeconds < 0 {
		return fmt.Errorf("crawler.delay_seconds must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	return nil
}

// RequestTimeout converts the HTTP timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Delay converts the configured inter-request delay into a duration.
func (c Config) Delay() time.Duration {
	return time.Duration(c.Crawler.DelaySeconds * float64(time.Second))
}

// SeedHost returns the lowercased host of the seed URL, the reference point
// for same-domain scope filtering. Validate must have passed first.
func (c Config) SeedHost() string {
	u, err := url.Parse(c.Crawler.SeedURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
