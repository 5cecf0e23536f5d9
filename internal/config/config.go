package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Saturation SaturationConfig `yaml:"saturation" mapstructure:"saturation"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// ServerConfig configures the public HTTP server.
type ServerConfig struct {
	Port             int      `yaml:"port" mapstructure:"port"`
	Namespace        string   `yaml:"namespace" mapstructure:"namespace"`
	AllowedOrigins   []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	ReportRatePerMin int      `yaml:"report_rate_per_min" mapstructure:"report_rate_per_min"`
	ReportBurst      int      `yaml:"report_burst" mapstructure:"report_burst"`
}

// CacheConfig configures the aggregation cache.
type CacheConfig struct {
	Backend    string `yaml:"backend" mapstructure:"backend"`
	RedisURL   string `yaml:"redis_url" mapstructure:"redis_url"`
	MaxEntries int    `yaml:"max_entries" mapstructure:"max_entries"`
}

// SaturationConfig configures the saturation policy.
type SaturationConfig struct {
	GlobalDivisor   int64            `yaml:"global_divisor" mapstructure:"global_divisor"`
	CountryDivisors map[string]int64 `yaml:"country_divisors" mapstructure:"country_divisors"`
	PostType        string           `yaml:"post_type" mapstructure:"post_type"`
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
	v.SetEnvPrefix("HEATMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "heatmap.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.namespace", "heatmap_1000")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.report_rate_per_min", 10)
	v.SetDefault("server.report_burst", 5)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.max_entries", 256)
	v.SetDefault("saturation.global_divisor", 1000)
	v.SetDefault("saturation.post_type", "groups")
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
