// Package config loads xmly-dl settings from an optional YAML file, XMLY_*
// environment variables and command-line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/xmly-dl/pkg/cache"
	"github.com/Sternrassler/xmly-dl/pkg/client"
	"github.com/Sternrassler/xmly-dl/pkg/logging"
	"github.com/Sternrassler/xmly-dl/pkg/pipeline"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. XMLY_CACHE_REDIS_ADDR.
const EnvPrefix = "XMLY"

// DefaultTimeout bounds the wait for response headers.
const DefaultTimeout = 30 * time.Second

// Config is the decoded xmly-dl configuration. Keys mirror the YAML file;
// nested sections map to dotted env and flag names, e.g. cache.redis_addr.
type Config struct {
	Output    string        `mapstructure:"output"`
	UserAgent string        `mapstructure:"user_agent"`
	Referer   string        `mapstructure:"referer"`
	APIBase   string        `mapstructure:"api_base"`
	Timeout   time.Duration `mapstructure:"timeout"`

	Log     logConfig     `mapstructure:"log"`
	Metrics metricsConfig `mapstructure:"metrics"`
	Cache   cacheConfig   `mapstructure:"cache"`
}

type logConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type metricsConfig struct {
	File string `mapstructure:"file"`
}

type cacheConfig struct {
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()

	v.SetConfigName("xmly-dl")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/xmly-dl")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("output", pipeline.DefaultOutputRoot)
	v.SetDefault("user_agent", client.DefaultUserAgent)
	v.SetDefault("referer", "")
	v.SetDefault("api_base", "")
	v.SetDefault("timeout", DefaultTimeout)

	v.SetDefault("log.level", string(logging.LevelInfo))
	v.SetDefault("log.pretty", false)

	v.SetDefault("metrics.file", "")

	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.ttl", cache.DefaultTTL)

	return v
}

// Load reads the configuration. An explicit configFile must exist; without
// one, xmly-dl.yaml is looked up in the search paths and skipped when
// absent.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

// ApplyListing fills Referer and APIBase from the listing root when they are
// not configured: the referer becomes "<scheme>://<host>/" and the API base
// "<scheme>://<host>".
func (c *Config) ApplyListing(root string) error {
	u, err := url.Parse(root)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("listing URL must be absolute (got %q)", root)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("listing URL must use http or https (got %q)", u.Scheme)
	}

	origin := u.Scheme + "://" + u.Host
	if c.Referer == "" {
		c.Referer = origin + "/"
	}
	if c.APIBase == "" {
		c.APIBase = origin
	}
	return nil
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Output) == "" {
		return fmt.Errorf("output is required")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user_agent is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0 (got %s)", c.Timeout)
	}
	if err := logging.ValidateLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Cache.RedisAddr != "" && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be > 0 when a redis address is set (got %s)", c.Cache.TTL)
	}
	return nil
}

// ClientConfig returns the site client configuration.
func (c *Config) ClientConfig() client.Config {
	return client.Config{
		UserAgent: c.UserAgent,
		Referer:   c.Referer,
		Timeout:   c.Timeout,
	}
}

// LoggingConfig returns the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	return cfg
}
