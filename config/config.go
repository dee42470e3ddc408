package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultRoomExpiry is the inactivity window after which an idle room is
// torn down. Every join and every relayed message restarts the countdown.
const DefaultRoomExpiry = 20 * time.Minute

type Config struct {
	APIListenAddr string        `mapstructure:"api-listen-addr"`
	WSListenAddr  string        `mapstructure:"ws-listen-addr"`
	LogLevel      string        `mapstructure:"log-level"`
	RoomExpiry    time.Duration `mapstructure:"room-expiry"`
	StaticDir     string        `mapstructure:"static-dir"`
	WSBaseURL     string        `mapstructure:"ws-base-url"`
}

// Load resolves configuration from defaults, an optional prisma.yaml,
// PRISMA_-prefixed environment variables and the given flag set, in
// ascending order of precedence.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigName("prisma")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("PRISMA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("api-listen-addr", ":8080")
	v.SetDefault("ws-listen-addr", ":8888")
	v.SetDefault("log-level", "debug")
	v.SetDefault("room-expiry", DefaultRoomExpiry)
	v.SetDefault("static-dir", "./public")
	v.SetDefault("ws-base-url", "ws://localhost:8888")

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
