package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/btcplaces/btcplaces/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	BTCMap   BTCMapConfig   `yaml:"btcmap" mapstructure:"btcmap"`
	Overpass OverpassConfig `yaml:"overpass" mapstructure:"overpass"`
	Sync     SyncConfig     `yaml:"sync" mapstructure:"sync"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	Path        string           `yaml:"path" mapstructure:"path"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// ServerConfig configures the read API server.
type ServerConfig struct {
	Host         string `yaml:"host" mapstructure:"host"`
	Port         int    `yaml:"port" mapstructure:"port"`
	CacheTTLSecs int    `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// BTCMapConfig configures the aggregator feed client.
type BTCMapConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// OverpassConfig configures the query interpreter client.
type OverpassConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// SyncConfig configures the periodic synchronization job.
type SyncConfig struct {
	IntervalSecs         int   `yaml:"interval_secs" mapstructure:"interval_secs"`
	RetryDelaySecs       int   `yaml:"retry_delay_secs" mapstructure:"retry_delay_secs"`
	Workers              int   `yaml:"workers" mapstructure:"workers"`
	OverpassTimeoutSecs  int   `yaml:"overpass_timeout_secs" mapstructure:"overpass_timeout_secs"`
	OverpassMaxSizeBytes int64 `yaml:"overpass_max_size_bytes" mapstructure:"overpass_max_size_bytes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BTCPLACES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "btcplaces.db")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cache_ttl_secs", 60)
	v.SetDefault("btcmap.base_url", "https://api.btcmap.org")
	v.SetDefault("btcmap.timeout_secs", 120)
	v.SetDefault("overpass.base_url", "https://overpass-api.de")
	v.SetDefault("sync.interval_secs", 3600)
	v.SetDefault("sync.retry_delay_secs", 300)
	v.SetDefault("sync.workers", 8)
	v.SetDefault("sync.overpass_timeout_secs", 300)
	v.SetDefault("sync.overpass_max_size_bytes", int64(2)<<30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
