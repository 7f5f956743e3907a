package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Data      DataConfig
	Models    ModelsConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Plot      PlotConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	Development    bool
}

type DataConfig struct {
	VolcanoTable string
}

type ModelsConfig struct {
	Dir     string
	Preload bool
}

type SQLiteConfig struct {
	Enabled bool
	Path    string
	// RetentionDays prunes history older than this at startup. 0 keeps
	// everything.
	RetentionDays int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLSec   int
	// BreakerTimeoutSec is how long the cache is bypassed after repeated
	// failures.
	BreakerTimeoutSec int
}

type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
}

type PlotConfig struct {
	Width  int
	Height int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

type MetricsConfig struct {
	Enabled bool
}

// Load reads config.yaml from the usual locations, or the file at path when
// one is given, then applies ERUPTION_* environment overrides.
func Load(path ...string) (*Config, error) {
	v := viper.New()
	if len(path) > 0 && path[0] != "" {
		v.SetConfigFile(path[0])
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/eruption-duration")
	}

	v.SetEnvPrefix("ERUPTION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.development", false)

	v.SetDefault("data.volcanoTable", "./data/volc_data.feather")

	v.SetDefault("models.dir", "./models")
	v.SetDefault("models.preload", true)

	v.SetDefault("sqlite.enabled", true)
	v.SetDefault("sqlite.path", "./data/plots.db")
	v.SetDefault("sqlite.retentionDays", 90)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttlSec", 3600)
	v.SetDefault("redis.breakerTimeoutSec", 30)

	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.requestsPerMinute", 120)

	v.SetDefault("plot.width", 900)
	v.SetDefault("plot.height", 500)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("metrics.enabled", true)
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Data.VolcanoTable == "" {
		return fmt.Errorf("data.volcanoTable is required")
	}
	if c.Models.Dir == "" {
		return fmt.Errorf("models.dir is required")
	}
	if c.SQLite.Enabled && c.SQLite.Path == "" {
		return fmt.Errorf("sqlite.path is required when sqlite is enabled")
	}
	if c.Redis.Enabled && c.Redis.TTLSec <= 0 {
		return fmt.Errorf("redis.ttlSec must be positive, got %d", c.Redis.TTLSec)
	}
	if c.SQLite.RetentionDays < 0 {
		return fmt.Errorf("sqlite.retentionDays must not be negative, got %d", c.SQLite.RetentionDays)
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("rateLimit.requestsPerMinute must be positive, got %d", c.RateLimit.RequestsPerMinute)
	}
	if c.Plot.Width < 100 || c.Plot.Height < 100 {
		return fmt.Errorf("plot size must be at least 100x100, got %dx%d", c.Plot.Width, c.Plot.Height)
	}
	switch c.Logging.Format {
	case "json", "console", "text":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
