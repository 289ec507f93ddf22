// Package config loads server configuration from a YAML file (by default
// ./config.yaml, then ./configs/config.yaml) with every key overridable via
// VIDAR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"vidar/internal/risk"
)

// Config is the top-level configuration. Maps directly to the YAML file.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Risk    RiskConfig    `mapstructure:"risk"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds the TCP gateway's listen address and worker count.
type ServerConfig struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
	Workers int    `mapstructure:"workers"`
}

// RiskConfig carries the pre-trade limits as decimal strings so no value
// passes through a binary float on the way in.
type RiskConfig struct {
	MaxOrderSize    string `mapstructure:"max_order_size"`
	MaxPositionSize string `mapstructure:"max_position_size"`
	MaxDailyLoss    string `mapstructure:"max_daily_loss"`
	MaxOrderValue   string `mapstructure:"max_order_value"`
}

// Limits parses the configured strings into risk limits.
func (c RiskConfig) Limits() (risk.Limits, error) {
	var limits risk.Limits
	for _, field := range []struct {
		name  string
		raw   string
		value *decimal.Decimal
	}{
		{"max_order_size", c.MaxOrderSize, &limits.MaxOrderSize},
		{"max_position_size", c.MaxPositionSize, &limits.MaxPositionSize},
		{"max_daily_loss", c.MaxDailyLoss, &limits.MaxDailyLoss},
		{"max_order_value", c.MaxOrderValue, &limits.MaxOrderValue},
	} {
		parsed, err := decimal.NewFromString(field.raw)
		if err != nil {
			return risk.Limits{}, fmt.Errorf("risk.%s: %w", field.name, err)
		}
		*field.value = parsed
	}
	return limits, nil
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Load reads configuration from the given path, or the default search
// locations when path is empty. If no file is found in the default
// locations, defaults apply; an explicit path that cannot be read is an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	defaults := risk.DefaultLimits()
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 9001)
	v.SetDefault("server.workers", 10)
	v.SetDefault("risk.max_order_size", defaults.MaxOrderSize.String())
	v.SetDefault("risk.max_position_size", defaults.MaxPositionSize.String())
	v.SetDefault("risk.max_daily_loss", defaults.MaxDailyLoss.String())
	v.SetDefault("risk.max_order_value", defaults.MaxOrderValue.String())
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	}

	v.SetEnvPrefix("VIDAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return &cfg, nil
}
