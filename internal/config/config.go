// Package config loads service settings from defaults, an optional YAML
// file, .env and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const EnvPrefix = "PRICEWATCH"

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Pool       PoolConfig       `mapstructure:"pool"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Retailers  RetailersConfig  `mapstructure:"retailers"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
	Mode            string        `mapstructure:"mode"`
}

type CacheConfig struct {
	Backend          string        `mapstructure:"backend"`
	RedisURL         string        `mapstructure:"redis_url"`
	RedisDB          int           `mapstructure:"redis_db"`
	PriceTTL         time.Duration `mapstructure:"price_ttl"`
	ComparisonTTL    time.Duration `mapstructure:"comparison_ttl"`
	HistoryTTL       time.Duration `mapstructure:"history_ttl"`
	HistoryRetention time.Duration `mapstructure:"history_retention"`
}

type PoolConfig struct {
	Capacity   int    `mapstructure:"capacity"`
	Ceiling    int    `mapstructure:"ceiling"`
	Renderer   string `mapstructure:"renderer"`
	ChromePath string `mapstructure:"chrome_path"`
	Headless   bool   `mapstructure:"headless"`
	UserAgent  string `mapstructure:"user_agent"`
}

type AggregatorConfig struct {
	Concurrency       int           `mapstructure:"concurrency"`
	TaskTimeout       time.Duration `mapstructure:"task_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	SelectorTimeout   time.Duration `mapstructure:"selector_timeout"`
}

type MonitorConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	DefaultThreshold float64       `mapstructure:"default_threshold"`
	SubscriptionTTL  time.Duration `mapstructure:"subscription_ttl"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

type RetailersConfig struct {
	WalmartAPIKey string `mapstructure:"walmart_api_key"`
	EbayAPIKey    string `mapstructure:"ebay_api_key"`
}

// Load reads configuration. An empty configPath looks for config.yaml in
// ./config and the working directory and is fine if none exists.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found")
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	normalizeSeconds(v, "cache.price_ttl", "cache.comparison_ttl")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindEnvVars keeps the unprefixed variable names older deployments use.
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string][]string{
		"server.port":               {"PORT"},
		"server.mode":               {"GIN_MODE"},
		"cache.redis_url":           {"REDIS_URL"},
		"cache.redis_db":            {"REDIS_DB"},
		"cache.price_ttl":           {"CACHE_TTL"},
		"cache.comparison_ttl":      {"CACHE_TTL"},
		"logging.level":             {"LOG_LEVEL"},
		"pool.chrome_path":          {"CHROME_PATH"},
		"retailers.walmart_api_key": {"WALMART_API_KEY"},
		"retailers.ebay_api_key":    {"EBAY_APP_ID"},
	}
	for key, names := range bindings {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// normalizeSeconds accepts a bare integer as seconds, the way CACHE_TTL was
// always given.
func normalizeSeconds(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		raw := strings.TrimSpace(v.GetString(key))
		if raw != "" && strings.Trim(raw, "0123456789") == "" {
			v.Set(key, raw+"s")
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8085)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 2*time.Minute)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("server.mode", "release")

	v.SetDefault("cache.backend", "redis")
	v.SetDefault("cache.redis_url", "redis://localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.price_ttl", 30*time.Minute)
	v.SetDefault("cache.comparison_ttl", 30*time.Minute)
	v.SetDefault("cache.history_ttl", time.Hour)
	v.SetDefault("cache.history_retention", 365*24*time.Hour)

	v.SetDefault("pool.capacity", 5)
	v.SetDefault("pool.ceiling", 8)
	v.SetDefault("pool.renderer", "chrome")
	v.SetDefault("pool.chrome_path", "")
	v.SetDefault("pool.headless", true)
	v.SetDefault("pool.user_agent", "")

	v.SetDefault("aggregator.concurrency", 8)
	v.SetDefault("aggregator.task_timeout", 40*time.Second)
	v.SetDefault("aggregator.navigation_timeout", 30*time.Second)
	v.SetDefault("aggregator.selector_timeout", 10*time.Second)

	v.SetDefault("monitor.interval", 30*time.Minute)
	v.SetDefault("monitor.default_threshold", 5.0)
	v.SetDefault("monitor.subscription_ttl", 24*time.Hour)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.no_color", false)

	v.SetDefault("retailers.walmart_api_key", "")
	v.SetDefault("retailers.ebay_api_key", "")
}

func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port < 65536, "server.port %d out of range", c.Server.Port)
	check(c.Server.RateLimit > 0 && c.Server.RateBurst > 0, "server rate limit and burst must be positive")
	check(c.Cache.Backend == "memory" || c.Cache.Backend == "redis", "cache.backend %q must be memory or redis", c.Cache.Backend)
	check(c.Pool.Capacity > 0, "pool.capacity must be positive")
	check(c.Pool.Ceiling >= c.Pool.Capacity, "pool.ceiling %d below capacity %d", c.Pool.Ceiling, c.Pool.Capacity)
	check(c.Pool.Renderer == "chrome" || c.Pool.Renderer == "static", "pool.renderer %q must be chrome or static", c.Pool.Renderer)
	check(c.Aggregator.Concurrency > 0, "aggregator.concurrency must be positive")
	check(c.Aggregator.TaskTimeout > 0, "aggregator.task_timeout must be positive")
	check(c.Monitor.Interval > 0, "monitor.interval must be positive")
	check(c.Monitor.DefaultThreshold > 0 && c.Monitor.DefaultThreshold <= 100,
		"monitor.default_threshold %v must be in (0, 100]", c.Monitor.DefaultThreshold)
	check(c.Logging.Format == "json" || c.Logging.Format == "console", "logging.format %q must be json or console", c.Logging.Format)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
