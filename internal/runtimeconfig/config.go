// Package runtimeconfig loads the host process's own TOML configuration
// (engine limits, stdio/log directories, trigger listen addresses) and
// doubles as the factors.RuntimeConfigSource that backs every factor's
// RuntimeConfig(name) lookup for its own runtime-config section.
package runtimeconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var validate = validator.New()

// Config is the host process's ambient configuration: everything that
// isn't part of the application manifest (locked app) itself.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Stdio    StdioConfig    `mapstructure:"stdio"`
	Triggers TriggersConfig `mapstructure:"triggers"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// LogConfig configures the host's own structured logger.
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json text"`
	Output     string `mapstructure:"output" validate:"oneof=stdout stderr file"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// EngineConfig configures the wazero runtime and its compiled-module
// cache.
type EngineConfig struct {
	MemoryLimitPages    uint32 `mapstructure:"memory_limit_pages"`
	InstancePreCacheLRU int    `mapstructure:"instance_pre_cache_size"`
}

// StdioConfig configures per-component guest stdout/stderr capture.
type StdioConfig struct {
	LogDir     string   `mapstructure:"log_dir"`
	Follow     []string `mapstructure:"follow"`
	MaxSizeMB  int      `mapstructure:"max_size_mb"`
	MaxBackups int      `mapstructure:"max_backups"`
	MaxAgeDays int      `mapstructure:"max_age_days"`
}

// TriggersConfig configures the listen addresses for built-in triggers.
type TriggersConfig struct {
	HTTP      HTTPTriggerConfig      `mapstructure:"http"`
	Redis     RedisTriggerConfig     `mapstructure:"redis"`
	WebSocket WebSocketTriggerConfig `mapstructure:"websocket"`
}

// HTTPTriggerConfig configures the HTTP trigger's listener.
type HTTPTriggerConfig struct {
	ListenAddr        string        `mapstructure:"listen_addr" validate:"required,hostname_port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	MaxRequestsPerSec float64       `mapstructure:"max_requests_per_second" validate:"gte=0"`
	RateLimitBurst    int           `mapstructure:"rate_limit_burst" validate:"gte=0"`
}

// RedisTriggerConfig configures the Redis subscription trigger.
type RedisTriggerConfig struct {
	Addr     string `mapstructure:"addr" validate:"required,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// WebSocketTriggerConfig configures the websocket trigger's listener.
type WebSocketTriggerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Addr    string `mapstructure:"addr"`
}

// Load reads configPath (if non-empty) over the defaults, overlaying
// environment variables (WASMFACTORS_<SECTION>_<KEY>), and unmarshals
// into a Config.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("wasmfactors")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("runtimeconfig: read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("runtimeconfig: unmarshal: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("runtimeconfig: invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("engine.memory_limit_pages", 0)
	v.SetDefault("engine.instance_pre_cache_size", 64)

	v.SetDefault("stdio.log_dir", "")
	v.SetDefault("stdio.max_size_mb", 10)
	v.SetDefault("stdio.max_backups", 3)
	v.SetDefault("stdio.max_age_days", 7)

	v.SetDefault("triggers.http.listen_addr", "127.0.0.1:3000")
	v.SetDefault("triggers.http.read_timeout", "30s")
	v.SetDefault("triggers.http.write_timeout", "30s")
	v.SetDefault("triggers.http.shutdown_timeout", "10s")
	v.SetDefault("triggers.http.max_requests_per_second", 0)
	v.SetDefault("triggers.http.rate_limit_burst", 0)

	v.SetDefault("triggers.redis.addr", "localhost:6379")
	v.SetDefault("triggers.redis.db", 0)

	v.SetDefault("triggers.websocket.listen_addr", "127.0.0.1:3001")
	v.SetDefault("triggers.websocket.shutdown_timeout", "5s")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.addr", "127.0.0.1:9090")
}
