package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the storefront server configuration, read from storefront.yml
// and then overridden from the environment.
type Config struct {
	Env      string         `yaml:"env"`       // "dev" or "prod"
	LogLevel string         `yaml:"log_level"` // debug, info, warn, error
	HTTPAddr string         `yaml:"http_addr"`
	GRPCAddr string         `yaml:"grpc_addr"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Storage  StorageConfig  `yaml:"storage"`
	Checkout CheckoutConfig `yaml:"checkout"`
	Search   SearchConfig   `yaml:"search"`
}

type CatalogConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig picks the backends. Carts live in Redis when RedisAddr is
// set and in SQLite otherwise; orders live in MySQL when MySQLDSN is set.
type StorageConfig struct {
	RedisAddr  string `yaml:"redis_addr,omitempty"`
	MySQLDSN   string `yaml:"mysql_dsn,omitempty"`
	SQLitePath string `yaml:"sqlite_path,omitempty"`
}

type CheckoutConfig struct {
	Workers          int `yaml:"workers"`
	QueueSize        int `yaml:"queue_size"`
	QuoteConcurrency int `yaml:"quote_concurrency"`
}

type SearchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

func Default() *Config {
	return &Config{
		Env:      "prod",
		LogLevel: "info",
		HTTPAddr: ":8080",
		GRPCAddr: ":50051",
		Catalog: CatalogConfig{
			BaseURL: "https://fakestoreapi.com",
			Timeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			SQLitePath: "storefront.db",
		},
		Checkout: CheckoutConfig{
			Workers:          4,
			QueueSize:        1000,
			QuoteConcurrency: 4,
		},
		Search: SearchConfig{
			Debounce: 300 * time.Millisecond,
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Env, "STOREFRONT_ENV")
	setString(&c.LogLevel, "STOREFRONT_LOG_LEVEL")
	setString(&c.HTTPAddr, "STOREFRONT_HTTP_ADDR")
	setString(&c.GRPCAddr, "STOREFRONT_GRPC_ADDR")
	setString(&c.Catalog.BaseURL, "STOREFRONT_CATALOG_URL")
	setString(&c.Storage.SQLitePath, "STOREFRONT_SQLITE_PATH")
	setString(&c.Storage.RedisAddr, "REDIS_ADDR")
	setString(&c.Storage.MySQLDSN, "MYSQL_DSN")

	if err := setDuration(&c.Catalog.Timeout, "STOREFRONT_CATALOG_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&c.Search.Debounce, "STOREFRONT_SEARCH_DEBOUNCE"); err != nil {
		return err
	}
	return setInt(&c.Checkout.Workers, "STOREFRONT_WORKERS")
}

// Validate performs strict validation on the configuration
func (c *Config) Validate() error {
	if c.Env != "dev" && c.Env != "prod" {
		return fmt.Errorf("unsupported env: %s (expected: dev or prod)", c.Env)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log_level: %s", c.LogLevel)
	}
	if c.HTTPAddr == "" && c.GRPCAddr == "" {
		return errors.New("at least one of http_addr and grpc_addr is required")
	}
	if c.Catalog.BaseURL == "" {
		return errors.New("catalog.base_url is required")
	}
	if c.Catalog.Timeout <= 0 {
		return fmt.Errorf("catalog.timeout must be > 0, got %s", c.Catalog.Timeout)
	}
	if c.Storage.RedisAddr == "" && c.Storage.SQLitePath == "" {
		return errors.New("storage needs redis_addr or sqlite_path")
	}
	if c.Checkout.Workers <= 0 {
		return fmt.Errorf("checkout.workers must be > 0, got %d", c.Checkout.Workers)
	}
	if c.Checkout.QueueSize <= 0 {
		return fmt.Errorf("checkout.queue_size must be > 0, got %d", c.Checkout.QueueSize)
	}
	if c.Checkout.QuoteConcurrency <= 0 {
		return fmt.Errorf("checkout.quote_concurrency must be > 0, got %d", c.Checkout.QuoteConcurrency)
	}
	if c.Search.Debounce < 0 {
		return fmt.Errorf("search.debounce must be >= 0, got %s", c.Search.Debounce)
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
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}
