// Package config loads server runtime configuration from environment
// variables (optionally via a .env file), with sane defaults for
// local development.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds everything main needs to start listening.
type Config struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	DBPath          string        `mapstructure:"db_path"`
	IdleWindow      time.Duration `mapstructure:"idle_window"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Load reads configuration from a .env file (if present) and the
// SYNCORE_-prefixed environment, falling back to defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("syncore")
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("db_path", "syncore.db")
	v.SetDefault("idle_window", 24*time.Hour)
	v.SetDefault("log_level", "info")
	v.SetDefault("shutdown_timeout", 10*time.Second)

	cfg := &Config{
		ListenAddr:      v.GetString("listen_addr"),
		DBPath:          v.GetString("db_path"),
		IdleWindow:      v.GetDuration("idle_window"),
		LogLevel:        v.GetString("log_level"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
	}
	return cfg, nil
}
