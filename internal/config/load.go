package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var validate = validator.New()

// LoadConfig reads the YAML file at path, applies ERPSYNC_* environment overrides and defaults,
// and validates the result. A missing file is not an error; defaults and env still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("ERPSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints. The staging connection is only checked when staging is enabled.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Staging.Enabled {
		if err := validate.Struct(c.Staging.Connection); err != nil {
			return fmt.Errorf("invalid staging connection: %w", err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.type", "mysql")
	v.SetDefault("store.host", "localhost")
	v.SetDefault("store.port", 3306)
	v.SetDefault("store.database", "mes")
	v.SetDefault("store.ssl_mode", "disable")

	v.SetDefault("staging.enabled", false)
	v.SetDefault("staging.connection.type", "mysql")
	v.SetDefault("staging.connection.port", 3306)
	v.SetDefault("staging.connection.server_id", 100)
	v.SetDefault("staging.source", "ERP")

	v.SetDefault("sync.workers", 4)
	v.SetDefault("sync.batch_size", 100)
	v.SetDefault("sync.flush_interval", "500ms")
	v.SetDefault("sync.fingerprint_length", 32)
	v.SetDefault("sync.realtime", false)
	v.SetDefault("sync.history_limit", 50)

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval", "@every 15m")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.topic", "erp-sync.batches")
	v.SetDefault("events.batch_size", 100)
	v.SetDefault("events.batch_timeout", "1s")
	v.SetDefault("events.compression", "snappy")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}
