package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/labstack/gommon/random"
)

// Config represents the complete service configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Minio    MinioConfig    `toml:"minio"`
	Auth     AuthConfig     `toml:"auth"`
	Orders   OrdersConfig   `toml:"orders"`
	Jobs     JobsConfig     `toml:"jobs"`
}

type ServerConfig struct {
	Port int `toml:"port"`
}

type DatabaseConfig struct {
	URL      string `toml:"url"`
	MaxConns int32  `toml:"max_conns"`
	Migrate  bool   `toml:"migrate"`
}

// RedisConfig is shared by the cache and the asynq task queue
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type MinioConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
	Bucket    string `toml:"bucket"`
}

type AuthConfig struct {
	JWTSecret string   `toml:"jwt_secret"`
	JWKSURL   string   `toml:"jwks_url"`
	TokenTTL  Duration `toml:"token_ttl"`
}

type OrdersConfig struct {
	PlacementTimeout    Duration `toml:"placement_timeout"`
	CompensationTimeout Duration `toml:"compensation_timeout"`
	IdempotencyTTL      Duration `toml:"idempotency_ttl"`
}

// JobsConfig controls the background scheduler and the notification worker
type JobsConfig struct {
	MarketplaceRefresh Duration `toml:"marketplace_refresh"`
	LowStockInterval   Duration `toml:"low_stock_interval"`
	LowStockThreshold  int      `toml:"low_stock_threshold"`
	WorkerConcurrency  int      `toml:"worker_concurrency"`
}

// Duration decodes TOML strings such as "5s" or "24h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{MaxConns: 10, Migrate: true},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Minio: MinioConfig{
			Endpoint:  "localhost:9000",
			AccessKey: "minioadmin",
			SecretKey: "minioadmin",
			Bucket:    "product-images",
		},
		Auth: AuthConfig{TokenTTL: Duration{24 * time.Hour}},
		Orders: OrdersConfig{
			PlacementTimeout:    Duration{5 * time.Second},
			CompensationTimeout: Duration{5 * time.Second},
			IdempotencyTTL:      Duration{24 * time.Hour},
		},
		Jobs: JobsConfig{
			MarketplaceRefresh: Duration{time.Minute},
			LowStockInterval:   Duration{time.Hour},
			LowStockThreshold:  5,
			WorkerConcurrency:  5,
		},
	}
}

// Load reads defaults, then the optional TOML file at path, then environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Auth.JWTSecret == "" && cfg.Auth.JWKSURL == "" {
		cfg.Auth.JWTSecret = random.String(32)
		log.Printf("WARNING: JWT_SECRET not set, using a generated development secret")
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
		return nil
	}
	duration := func(key string, dst *Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		return dst.UnmarshalText([]byte(v))
	}

	str("DATABASE_URL", &c.Database.URL)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("MINIO_ENDPOINT", &c.Minio.Endpoint)
	str("MINIO_ACCESS_KEY", &c.Minio.AccessKey)
	str("MINIO_SECRET_KEY", &c.Minio.SecretKey)
	str("MINIO_BUCKET", &c.Minio.Bucket)
	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("JWKS_URL", &c.Auth.JWKSURL)
	if v, ok := lookup("MINIO_USE_SSL"); ok && v != "" {
		c.Minio.UseSSL = v == "true"
	}

	if err := integer("REDIS_DB", &c.Redis.DB); err != nil {
		return err
	}
	if err := integer("PORT", &c.Server.Port); err != nil {
		return err
	}
	if err := integer("LOW_STOCK_THRESHOLD", &c.Jobs.LowStockThreshold); err != nil {
		return err
	}
	if err := duration("ORDER_PLACEMENT_TIMEOUT", &c.Orders.PlacementTimeout); err != nil {
		return fmt.Errorf("invalid ORDER_PLACEMENT_TIMEOUT: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL environment variable is required"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Server.Port))
	}
	if c.Orders.PlacementTimeout.Duration <= 0 {
		errs = append(errs, errors.New("orders.placement_timeout must be positive"))
	}
	if c.Orders.CompensationTimeout.Duration <= 0 {
		errs = append(errs, errors.New("orders.compensation_timeout must be positive"))
	}
	if c.Jobs.LowStockThreshold < 0 {
		errs = append(errs, errors.New("jobs.low_stock_threshold cannot be negative"))
	}
	return errors.Join(errs...)
}
