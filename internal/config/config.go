package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/goliatone/go-recipe-query/cache"
	"github.com/goliatone/go-recipe-query/internal/logger"
)

// Backends
const (
	BackendMemory    = "memory"
	BackendSQL       = "sql"
	BackendPostgREST = "postgrest"
)

// SQL drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Environment variables
const (
	EnvBackend          = "RECIPES_BACKEND"
	EnvSQLDriver        = "RECIPES_SQL_DRIVER"
	EnvSQLDSN           = "RECIPES_SQL_DSN"
	EnvAPIURL           = "RECIPES_API_URL"
	EnvAPIKey           = "RECIPES_API_KEY"
	EnvRateLimit        = "RECIPES_RATE_LIMIT"
	EnvCacheCapacity    = "RECIPES_CACHE_CAPACITY"
	EnvEvictionInterval = "RECIPES_EVICTION_INTERVAL"
	EnvLogLevel         = "RECIPES_LOG_LEVEL"
	EnvLogFormat        = "RECIPES_LOG_FORMAT"
	EnvEnvironment      = "RECIPES_ENVIRONMENT"
	EnvSessionFile      = "RECIPES_SESSION_FILE"
	EnvConfigFile       = "RECIPES_CONFIG_FILE"
)

// Duration reads Go duration strings ("30s", "5m") from TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// SQL configures the SQL gateway.
type SQL struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
	Seed   bool   `toml:"seed"`
}

// API configures the hosted PostgREST backend.
type API struct {
	URL       string   `toml:"url"`
	Key       string   `toml:"key"`
	RateLimit float64  `toml:"rate_limit"`
	Burst     int      `toml:"burst"`
	Timeout   Duration `toml:"timeout"`
}

// Cache configures the query cache.
type Cache struct {
	Capacity         int      `toml:"capacity"`
	EvictionInterval Duration `toml:"eviction_interval"`
	SessionTTL       Duration `toml:"session_ttl"`
}

// Log configures logging.
type Log struct {
	Level       string `toml:"level"`
	Format      string `toml:"format"`
	Environment string `toml:"environment"`
	AddSource   bool   `toml:"add_source"`
}

// Config holds the application configuration
type Config struct {
	Backend     string `toml:"backend"`
	SessionFile string `toml:"session_file"`
	SQL         SQL    `toml:"sql"`
	API         API    `toml:"api"`
	Cache       Cache  `toml:"cache"`
	Log         Log    `toml:"log"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Backend: BackendMemory,
		SQL: SQL{
			Driver: DriverSQLite,
			DSN:    "file:recipes.db?cache=shared",
		},
		API: API{
			RateLimit: 10,
			Burst:     5,
			Timeout:   Duration{10 * time.Second},
		},
		Cache: Cache{
			Capacity:         1000,
			EvictionInterval: Duration{30 * time.Second},
			SessionTTL:       Duration{10 * time.Minute},
		},
		Log: Log{
			Level:       "info",
			Format:      "text",
			Environment: "dev",
		},
	}
}

// Load loads the configuration. Values come from the defaults, then the TOML
// file named by RECIPES_CONFIG_FILE, then environment variables (a .env file
// in the working directory is read first if present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := getEnv(EnvConfigFile, ""); path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// MergeFile overlays the keys present in a TOML file onto c.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Backend = strings.ToLower(getEnv(EnvBackend, c.Backend))
	c.SQL.Driver = getEnv(EnvSQLDriver, c.SQL.Driver)
	c.SQL.DSN = getEnv(EnvSQLDSN, c.SQL.DSN)
	c.API.URL = getEnv(EnvAPIURL, c.API.URL)
	c.API.Key = getEnv(EnvAPIKey, c.API.Key)
	c.Log.Level = getEnv(EnvLogLevel, c.Log.Level)
	c.Log.Format = getEnv(EnvLogFormat, c.Log.Format)
	c.Log.Environment = getEnv(EnvEnvironment, c.Log.Environment)
	c.SessionFile = getEnv(EnvSessionFile, c.SessionFile)

	if v, ok := os.LookupEnv(EnvCacheCapacity); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s value: %w", EnvCacheCapacity, err)
		}
		c.Cache.Capacity = n
	}
	if v, ok := os.LookupEnv(EnvRateLimit); ok {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s value: %w", EnvRateLimit, err)
		}
		c.API.RateLimit = n
	}
	if v, ok := os.LookupEnv(EnvEvictionInterval); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s value: %w", EnvEvictionInterval, err)
		}
		c.Cache.EvictionInterval = Duration{d}
	}
	return nil
}

// Validate implements validation.Validatable.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendMemory, BackendSQL, BackendPostgREST)),
		validation.Field(&c.SQL, validation.When(c.Backend == BackendSQL, validation.By(func(any) error {
			return validation.ValidateStruct(&c.SQL,
				validation.Field(&c.SQL.Driver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
				validation.Field(&c.SQL.DSN, validation.Required),
			)
		}))),
		validation.Field(&c.API, validation.When(c.Backend == BackendPostgREST, validation.By(func(any) error {
			return validation.ValidateStruct(&c.API,
				validation.Field(&c.API.URL, validation.Required, is.URL),
				validation.Field(&c.API.Key, validation.Required),
			)
		}))),
		validation.Field(&c.Cache, validation.By(func(any) error {
			return validation.ValidateStruct(&c.Cache,
				validation.Field(&c.Cache.Capacity, validation.Required, validation.Min(1)),
				validation.Field(&c.Cache.EvictionInterval, validation.By(positive)),
				validation.Field(&c.Cache.SessionTTL, validation.By(positive)),
			)
		})),
		validation.Field(&c.Log, validation.By(func(any) error {
			return validation.ValidateStruct(&c.Log,
				validation.Field(&c.Log.Format, validation.In("text", "json")),
			)
		})),
	)
}

func positive(v any) error {
	d, ok := v.(Duration)
	if !ok {
		return nil
	}
	if d.Duration <= 0 {
		return validation.NewError("validation_positive_duration", "must be a positive duration")
	}
	return nil
}

// CacheConfig maps the cache section onto cache.Config.
func (c Config) CacheConfig() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Capacity = c.Cache.Capacity
	cfg.EvictionInterval = c.Cache.EvictionInterval.Duration
	cfg.ReadThrough.TTL = c.Cache.SessionTTL.Duration
	return cfg
}

// LoggerConfig maps the log section onto logger.Config.
func (c Config) LoggerConfig(version string) logger.Config {
	cfg := logger.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Format = c.Log.Format
	cfg.Environment = c.Log.Environment
	cfg.AddSource = c.Log.AddSource
	if version != "" {
		cfg.Version = version
	}
	return cfg
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
