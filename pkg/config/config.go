// Package config loads keypaged configuration from defaults, an optional
// config file and KEYPAGE_ environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Sternrassler/keypage/pkg/logging"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendBTree  = "btree"
	BackendRedis  = "redis"
)

// Config holds application configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	Store  StoreConfig  `mapstructure:"store"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Paging PagingConfig `mapstructure:"paging"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// StoreConfig selects and configures the dataset backend.
type StoreConfig struct {
	Backend    string `mapstructure:"backend"`
	SQLitePath string `mapstructure:"sqlite_path"`
	Name       string `mapstructure:"name"`
	SeedItems  int    `mapstructure:"seed_items"`
}

// RedisConfig holds Redis connection settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig holds page cache settings.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// PagingConfig bounds load requests.
type PagingConfig struct {
	DefaultLoadSize int  `mapstructure:"default_load_size"`
	MaxLoadSize     int  `mapstructure:"max_load_size"`
	Counted         bool `mapstructure:"counted"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request_timeout", 5*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("store.backend", BackendSQLite)
	v.SetDefault("store.sqlite_path", "keypage.db")
	v.SetDefault("store.name", "records")
	v.SetDefault("store.seed_items", 0)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("paging.default_load_size", 20)
	v.SetDefault("paging.max_load_size", 500)
	v.SetDefault("paging.counted", true)
}

// Load reads configuration from file and env. Env var overrides use prefix KEYPAGE_,
// e.g. KEYPAGE_SERVER_ADDR. KEYPAGE_CONFIG names an explicit config file.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	cfgPath := os.Getenv("KEYPAGE_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("keypage")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/keypage")
	}

	v.SetEnvPrefix("KEYPAGE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// A missing default file is fine; a missing explicit one is not.
		if cfgPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite backend")
		}
	case BackendBTree:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend)
	}
	if c.Store.Name == "" {
		return fmt.Errorf("store.name is required")
	}

	if c.Cache.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("cache.enabled requires redis.addr")
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive (got %v)", c.Cache.TTL)
	}

	if c.Paging.DefaultLoadSize <= 0 || c.Paging.MaxLoadSize <= 0 {
		return fmt.Errorf("paging load sizes must be positive")
	}
	if c.Paging.DefaultLoadSize > c.Paging.MaxLoadSize {
		return fmt.Errorf("paging.default_load_size %d exceeds paging.max_load_size %d",
			c.Paging.DefaultLoadSize, c.Paging.MaxLoadSize)
	}
	return nil
}
