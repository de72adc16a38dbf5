package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Relay holds the relay server configuration.
type Relay struct {
	Mode           string        `mapstructure:"mode"`
	Port           int           `mapstructure:"port"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	MaxNameLength  int           `mapstructure:"max_name_length"`
}

// Addr is the listen address for the HTTP server.
func (r *Relay) Addr() string {
	return fmt.Sprintf(":%d", r.Port)
}

// RelayConfigFile returns the config file used when none is given:
// config/relay.<RELAY_ENV>.yaml, with RELAY_ENV defaulting to "dev".
func RelayConfigFile() string {
	env := os.Getenv("RELAY_ENV")
	if env == "" {
		env = "dev"
	}
	return fmt.Sprintf("config/relay.%s.yaml", env)
}

// LoadRelay reads defaults, then the YAML file at path (if it exists), then
// RELAY_* environment variables. An empty path means RelayConfigFile().
func LoadRelay(path string) (*Relay, error) {
	if path == "" {
		path = RelayConfigFile()
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	v.SetEnvPrefix("RELAY")
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 64*1024)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("send_buffer", 256)
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("max_name_length", 64)

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		slog.Debug("config file not found, using defaults", "file", path)
	} else {
		slog.Info("loaded config", "file", path)
	}

	var cfg Relay
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *Relay) validate() error {
	switch {
	case r.Port <= 0 || r.Port > 65535:
		return fmt.Errorf("invalid port %d", r.Port)
	case r.PingPeriod <= 0 || r.PingPeriod >= r.PongWait:
		return fmt.Errorf("ping_period (%s) must be positive and shorter than pong_wait (%s)", r.PingPeriod, r.PongWait)
	case r.WriteWait <= 0:
		return fmt.Errorf("write_wait must be positive")
	case r.SendBuffer <= 0:
		return fmt.Errorf("send_buffer must be positive")
	case r.ReadLimit <= 0:
		return fmt.Errorf("read_limit must be positive")
	}
	return nil
}
