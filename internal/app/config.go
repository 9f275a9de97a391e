package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (DISCOUNTS_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `env:"DATABASE_URL" usage:"PostgreSQL connection URL (DISCOUNTS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	// Location is the IANA zone that per-day redemption limits are counted in.
	Location  string `default:"UTC" usage:"Business time zone for daily redemption limits"`
	Cache     CacheConfig
	Kafka     KafkaConfig
	RateLimit RateLimitConfig
	Graceful  GracefulConfig
}

// CacheConfig selects the candidate cache backend.
type CacheConfig struct {
	Backend  string        `default:"memory" usage:"Candidate cache backend: memory, redis or none"`
	RedisURL string        `env:"REDIS_URL" usage:"Redis URL for the redis backend (DISCOUNTS_CACHE_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	TTL      time.Duration `env:"TTL" default:"3m" usage:"Candidate set TTL"`
}

// KafkaConfig controls the evaluation event stream. Empty brokers disable it.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka brokers for evaluation events"`
	Topic   string   `default:"discount-evaluations" usage:"Kafka topic for evaluation events"`
}

// RateLimitConfig controls the per-client token bucket rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// LoadConfig loads configuration from flags, environment variables and YAML
// config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		Args:      args,
		EnvPrefix: "DISCOUNTS",
		Files:     []string{"config.yaml", "/etc/discounts/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set DISCOUNTS_DATABASE_URL or DATABASE_URL")
	}
	switch c.Cache.Backend {
	case CacheMemory, CacheNone:
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			return errors.New("redis cache backend requires DISCOUNTS_CACHE_REDIS_URL or REDIS_URL")
		}
	default:
		return errors.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's DISCOUNTS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Cache.RedisURL == "" {
		c.Cache.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
}

// location resolves Location, falling back to UTC.
func (c *Config) location() (*time.Location, error) {
	if c.Location == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return time.UTC, errors.Wrapf(err, "load location %q", c.Location)
	}
	return loc, nil
}
