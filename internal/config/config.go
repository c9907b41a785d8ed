// Package config loads the precache server configuration: defaults, then a
// YAML file, then PRECACHE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "PRECACHE_"

type Config struct {
	Listen      string `yaml:"listen" env:"LISTEN"`
	MetricsPath string `yaml:"metricsPath" env:"METRICS_PATH"`

	Origin     string        `yaml:"origin" env:"ORIGIN"`
	OriginHost string        `yaml:"originHost" env:"ORIGIN_HOST"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`

	Generation         string   `yaml:"generation" env:"GENERATION"`
	Assets             []string `yaml:"assets" env:"ASSETS" envSeparator:","`
	WaitForClients     bool     `yaml:"waitForClients" env:"WAIT_FOR_CLIENTS"`
	DisableClaim       bool     `yaml:"disableClaim" env:"DISABLE_CLAIM"`
	InstallConcurrency int      `yaml:"installConcurrency" env:"INSTALL_CONCURRENCY"`
	MaxBodyBytes       int64    `yaml:"maxBodyBytes" env:"MAX_BODY_BYTES"`

	ClientIdleTimeout time.Duration `yaml:"clientIdleTimeout" env:"CLIENT_IDLE_TIMEOUT"`
	MaxClients        int           `yaml:"maxClients" env:"MAX_CLIENTS"`

	Namespace string `yaml:"namespace" env:"NAMESPACE"`
	Provider  string `yaml:"provider" env:"PROVIDER"` // bigcache|ristretto|redis|sqlite
	Codec     string `yaml:"codec" env:"CODEC"`       // proto|json|cbor|msgpack
	Logger    string `yaml:"logger" env:"LOGGER"`     // zap|zerolog|logrus|slog|apex
	LogLevel  string `yaml:"logLevel" env:"LOG_LEVEL"`

	Ristretto RistrettoConfig `yaml:"ristretto" envPrefix:"RISTRETTO_"`
	BigCache  BigCacheConfig  `yaml:"bigcache" envPrefix:"BIGCACHE_"`
	Redis     RedisConfig     `yaml:"redis" envPrefix:"REDIS_"`
	SQLite    SQLiteConfig    `yaml:"sqlite" envPrefix:"SQLITE_"`
}

type RistrettoConfig struct {
	MaxCost int64 `yaml:"maxCost" env:"MAX_COST"`
}

type BigCacheConfig struct {
	HardMaxCacheSizeMB int `yaml:"hardMaxCacheSizeMB" env:"HARD_MAX_CACHE_SIZE_MB"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

var (
	providers = []string{"bigcache", "ristretto", "redis", "sqlite"}
	codecs    = []string{"proto", "json", "cbor", "msgpack"}
	loggers   = []string{"zap", "zerolog", "logrus", "slog", "apex"}
)

func Default() Config {
	return Config{
		Listen:      ":8080",
		MetricsPath: "/metrics",
		Namespace:   "precache",
		Provider:    "bigcache",
		Codec:       "proto",
		Logger:      "zap",
		LogLevel:    "info",
		Ristretto:   RistrettoConfig{MaxCost: 64 << 20},
		Redis:       RedisConfig{Addr: "localhost:6379"},
	}
}

// Load returns Default overlaid with the YAML file at path (skipped when
// path is empty) and then with PRECACHE_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	return cfg, nil
}

// OriginURL parses Origin; nil when unset.
func (c Config) OriginURL() (*url.URL, error) {
	if c.Origin == "" {
		return nil, nil
	}
	u, err := url.Parse(c.Origin)
	if err != nil {
		return nil, fmt.Errorf("config: origin: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("config: origin %q must be an absolute URL", c.Origin)
	}
	return u, nil
}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	var errs []error
	if c.Generation == "" {
		errs = append(errs, errors.New("config: generation is required"))
	}
	if len(c.Assets) == 0 {
		errs = append(errs, errors.New("config: at least one asset is required"))
	}
	if c.Origin == "" {
		errs = append(errs, errors.New("config: origin is required"))
	} else if _, err := c.OriginURL(); err != nil {
		errs = append(errs, err)
	}
	if c.Namespace == "" {
		errs = append(errs, errors.New("config: namespace is required"))
	}
	if !oneOf(c.Provider, providers) {
		errs = append(errs, fmt.Errorf("config: unknown provider %q (want one of %v)", c.Provider, providers))
	}
	if !oneOf(c.Codec, codecs) {
		errs = append(errs, fmt.Errorf("config: unknown codec %q (want one of %v)", c.Codec, codecs))
	}
	if !oneOf(c.Logger, loggers) {
		errs = append(errs, fmt.Errorf("config: unknown logger %q (want one of %v)", c.Logger, loggers))
	}
	if c.ClientIdleTimeout < 0 || c.MaxClients < 0 {
		errs = append(errs, errors.New("config: clientIdleTimeout and maxClients must be >= 0"))
	}
	if c.Provider == "ristretto" && c.Ristretto.MaxCost <= 0 {
		errs = append(errs, errors.New("config: ristretto.maxCost must be > 0"))
	}
	if c.Provider == "redis" && c.Redis.Addr == "" {
		errs = append(errs, errors.New("config: redis.addr is required"))
	}
	return errors.Join(errs...)
}

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}
