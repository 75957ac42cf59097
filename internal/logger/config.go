package logger

import "fmt"

// Config represents logging configuration
type Config struct {
	File       string `mapstructure:"file" toml:"file"`
	MaxSize    int    `mapstructure:"max_size" toml:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" toml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" toml:"compress"`
	Level      string `mapstructure:"level" toml:"level"` // debug, info, warn, error
}

// DefaultConfig logs warnings and errors to the console only
func DefaultConfig() *Config {
	return &Config{
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     30,
		Level:      "warn",
	}
}

// SetDefaults fills unset fields from DefaultConfig
func (cfg *Config) SetDefaults() *Config {
	out := *cfg
	def := DefaultConfig()
	if out.MaxSize == 0 {
		out.MaxSize = def.MaxSize
	}
	if out.MaxBackups == 0 {
		out.MaxBackups = def.MaxBackups
	}
	if out.MaxAge == 0 {
		out.MaxAge = def.MaxAge
	}
	if out.Level == "" {
		out.Level = def.Level
	}
	return &out
}

// Validate validates logging configuration
func (cfg *Config) Validate() error {
	if cfg.MaxSize <= 0 {
		return fmt.Errorf("max_size must be positive")
	}
	if cfg.MaxBackups < 0 || cfg.MaxAge < 0 {
		return fmt.Errorf("max_backups and max_age must not be negative")
	}
	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.Level)
	}
	return nil
}
