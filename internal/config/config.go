// Package config загружает конфигурацию downloaderd.
//
// Источники (по возрастанию приоритета): значения по умолчанию,
// YAML файл, переменные окружения с префиксом DOWNLOADER_
// (store.driver → DOWNLOADER_STORE_DRIVER).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Драйверы хранилища.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Драйверы шины команд.
const (
	BusLocal = "local"
	BusAMQP  = "amqp"
)

// EnvPrefix — префикс переменных окружения.
const EnvPrefix = "DOWNLOADER"

type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http" yaml:"http"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Downloader DownloaderConfig `mapstructure:"downloader" yaml:"downloader"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Bus        BusConfig        `mapstructure:"bus" yaml:"bus"`
	Transport  TransportConfig  `mapstructure:"transport" yaml:"transport"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type DownloaderConfig struct {
	MaxConcurrent   int           `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	ThrottleWindow  time.Duration `mapstructure:"throttle_window" yaml:"throttle_window"`
	BusBuffer       int           `mapstructure:"bus_buffer" yaml:"bus_buffer"`
	FinalizeTimeout time.Duration `mapstructure:"finalize_timeout" yaml:"finalize_timeout"`
	CancelOnStop    bool          `mapstructure:"cancel_on_stop" yaml:"cancel_on_stop"`
	ResumeOnStart   bool          `mapstructure:"resume_on_start" yaml:"resume_on_start"`
}

type StoreConfig struct {
	Driver      string `mapstructure:"driver" yaml:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	PostgresURL string `mapstructure:"postgres_url" yaml:"postgres_url"`
}

type BusConfig struct {
	Driver   string `mapstructure:"driver" yaml:"driver"`
	AMQPURL  string `mapstructure:"amqp_url" yaml:"amqp_url"`
	Instance string `mapstructure:"instance" yaml:"instance"`
}

type TransportConfig struct {
	UserAgent     string        `mapstructure:"user_agent" yaml:"user_agent"`
	HeaderTimeout time.Duration `mapstructure:"header_timeout" yaml:"header_timeout"`
}

// Load читает конфигурацию. Пустой path — только значения по умолчанию
// и переменные окружения.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set Defaults
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("downloader.max_concurrent", 0)
	v.SetDefault("downloader.throttle_window", 200*time.Millisecond)
	v.SetDefault("downloader.bus_buffer", 256)
	v.SetDefault("downloader.finalize_timeout", 10*time.Second)
	v.SetDefault("downloader.cancel_on_stop", false)
	v.SetDefault("downloader.resume_on_start", true)
	v.SetDefault("store.driver", StoreSQLite)
	v.SetDefault("store.sqlite_path", "./data/downloader.db")
	v.SetDefault("store.postgres_url", "")
	v.SetDefault("bus.driver", BusLocal)
	v.SetDefault("bus.amqp_url", "")
	v.SetDefault("bus.instance", "")
	v.SetDefault("transport.user_agent", "Downloader")
	v.SetDefault("transport.header_timeout", 30*time.Second)

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file not found: %s", path)
		}

		// Read config File
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// Support Environment Variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path is required for sqlite driver")
		}
	case StorePostgres:
		// Пустой URL — DB_URL или адрес по умолчанию (repo.NewPool).
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	c.Bus.Driver = strings.ToLower(strings.TrimSpace(c.Bus.Driver))
	switch c.Bus.Driver {
	case BusLocal, BusAMQP:
	default:
		return fmt.Errorf("unknown bus driver %q", c.Bus.Driver)
	}

	if c.Downloader.MaxConcurrent < 0 {
		return fmt.Errorf("downloader.max_concurrent must be >= 0, got %d", c.Downloader.MaxConcurrent)
	}

	if c.Downloader.BusBuffer <= 0 {
		// Default to a sane value
		c.Downloader.BusBuffer = 256
	}

	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}

	return nil
}
