// Package config loads and validates the escrowd configuration.
package config

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config represents the escrowd application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Domain   DomainConfig   `mapstructure:"domain"`
	Genesis  GenesisConfig  `mapstructure:"genesis"`
	JWKS     JWKSConfig     `mapstructure:"jwks"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host" default:"0.0.0.0"`
	Port            int           `mapstructure:"port" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" default:"30s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" default:"30s"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" default:"60s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" default:"30s"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host" default:"localhost" validate:"required"`
	Port     int    `mapstructure:"port" default:"5432"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database" default:"escrowd" validate:"required"`
	SSLMode  string `mapstructure:"ssl_mode" default:"disable"`
}

// DomainConfig identifies this deployment for attestation signature binding.
// All four fields feed the typed-data domain separator; changing any of them
// invalidates every attestation signed for the previous values.
type DomainConfig struct {
	Name              string `mapstructure:"name" default:"escrowd"`
	Version           string `mapstructure:"version" default:"1"`
	ChainID           uint64 `mapstructure:"chain_id" validate:"required"`
	VerifyingContract string `mapstructure:"verifying_contract" validate:"required"`
}

// GenesisConfig seeds the engine configuration row on first start. It is
// ignored once the row exists.
type GenesisConfig struct {
	Owner        string `mapstructure:"owner" validate:"required"`
	Signer       string `mapstructure:"signer" validate:"required"`
	FeeCollector string `mapstructure:"fee_collector"`
	FeeRateBps   uint32 `mapstructure:"fee_rate_bps"`
}

// JWKSConfig contains optional JWKS configuration for gating write endpoints
type JWKSConfig struct {
	URL    string `mapstructure:"url"`
	Issuer string `mapstructure:"issuer"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level" default:"info"`
	Format     string `mapstructure:"format" default:"json"`
	OutputPath string `mapstructure:"output_path" default:"stdout"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ESCROWD")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := defaults.Set(config); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}
