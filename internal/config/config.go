// Package config loads the rabbitrpc daemon configuration from an optional
// YAML file overlaid with RABBITRPC_ environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/glimte/rabbitrpc"
	"github.com/glimte/rabbitrpc/serialization"
)

// EnvPrefix prefixes environment overrides; "__" separates sections,
// e.g. RABBITRPC_BROKER__HOST.
const EnvPrefix = "RABBITRPC_"

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Broker    Broker    `koanf:"broker"`
	Server    Server    `koanf:"server"`
	Log       Log       `koanf:"log"`
	Admin     Admin     `koanf:"admin"`
	Reconnect Reconnect `koanf:"reconnect"`
}

type Broker struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port"`
	VirtualHost       string        `koanf:"virtual_host"`
	Username          string        `koanf:"username"`
	Password          string        `koanf:"password"`
	Heartbeat         time.Duration `koanf:"heartbeat"`
	ConnectionTimeout time.Duration `koanf:"connection_timeout"`
	ConnectionName    string        `koanf:"connection_name"`
}

type Server struct {
	Queue             string        `koanf:"queue"`
	Exchange          string        `koanf:"exchange"`
	Codec             string        `koanf:"codec"`
	ConsumerTagPrefix string        `koanf:"consumer_tag_prefix"`
	Handler           string        `koanf:"handler"`
	HandlerTimeout    time.Duration `koanf:"handler_timeout"`
	// RateLimit in requests per second; zero disables limiting
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	File   string `koanf:"file"`
}

type Admin struct {
	// Addr of the health and metrics listener; empty disables it
	Addr string `koanf:"addr"`
}

type Reconnect struct {
	Initial     time.Duration `koanf:"initial"`
	Max         time.Duration `koanf:"max"`
	Multiplier  float64       `koanf:"multiplier"`
	MaxAttempts int           `koanf:"max_attempts"`
}

// Default returns the configuration used for keys no source sets
func Default() Config {
	return Config{
		Broker: Broker{
			Host:        rabbitrpc.DefaultHost,
			Port:        rabbitrpc.DefaultPort,
			VirtualHost: rabbitrpc.DefaultVirtualHost,
		},
		Server: Server{
			Codec:     "gob",
			Handler:   "echo",
			RateBurst: 1,
		},
		Log: Log{
			Level:  "info",
			Format: "json",
		},
		Admin: Admin{
			Addr: ":9090",
		},
		Reconnect: Reconnect{
			Initial:    time.Second,
			Max:        30 * time.Second,
			Multiplier: 2,
		},
	}
}

// Load reads path, when not empty, then applies environment overrides and
// overrides, in that order, and validates the result.
func Load(path string, overrides ...func(*Config)) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	for _, override := range overrides {
		override(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values Load cannot type-check
func (c Config) Validate() error {
	if c.Server.Queue == "" {
		return fmt.Errorf("%w: server.queue required", ErrInvalid)
	}
	if _, err := serialization.ByName(c.Server.Codec); err != nil {
		return fmt.Errorf("%w: server.codec: %v", ErrInvalid, err)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("%w: server.rate_limit must not be negative", ErrInvalid)
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		return fmt.Errorf("%w: server.rate_burst must be at least 1", ErrInvalid)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalid, err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("%w: log.format must be json or text", ErrInvalid)
	}
	if c.Reconnect.Multiplier < 1 {
		return fmt.Errorf("%w: reconnect.multiplier must be at least 1", ErrInvalid)
	}
	if c.Reconnect.Initial <= 0 || c.Reconnect.Max < c.Reconnect.Initial {
		return fmt.Errorf("%w: reconnect.initial must be positive and not above reconnect.max", ErrInvalid)
	}
	return nil
}

// ConnectionSettings maps the broker section onto server settings
func (b Broker) ConnectionSettings() rabbitrpc.ConnectionSettings {
	return rabbitrpc.ConnectionSettings{
		Host:              b.Host,
		Port:              b.Port,
		VirtualHost:       b.VirtualHost,
		Username:          b.Username,
		Password:          b.Password,
		Heartbeat:         b.Heartbeat,
		ConnectionTimeout: b.ConnectionTimeout,
		ConnectionName:    b.ConnectionName,
	}
}

// SlogLevel parses Level
func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(l.Level))
	return level, err
}
