package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Env  string `yaml:"env" env-default:"local" env:"ENV"`
	Port int    `yaml:"port" env-default:"8008" env:"PORT"`
	// LocalAddr and BroadcastAddr are resolved from the first usable
	// interface when empty.
	LocalAddr     string        `yaml:"local_addr" env:"LOCAL_ADDR"`
	BroadcastAddr string        `yaml:"broadcast_addr" env:"BROADCAST_ADDR"`
	BroadcastPort int           `yaml:"broadcast_port" env:"BROADCAST_PORT"`
	Interval      time.Duration `yaml:"interval" env-default:"1s" env:"INTERVAL"`
	KeyFile       string        `yaml:"key_file" env-default:"secret.seed" env:"KEY_FILE"`
	WatchKey      bool          `yaml:"watch_key" env:"WATCH_KEY"`
	PeersDB       string        `yaml:"peers_db" env-default:"peers.db" env:"PEERS_DB"`
	MetricsAddr   string        `yaml:"metrics_addr" env:"METRICS_ADDR"`
}

// Load reads the config file at path, falling back to CONFIG_PATH. With no
// file at all the config comes from the environment and defaults.
// Priority: env > file > default.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	} else {
		// check if file exists
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: config file does not exist: %s", op, path)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("%s: cannot read config: %w", op, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) Validate() error {
	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("%w: unknown env %q", ErrInvalidConfig, c.Env)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalidConfig, c.Port)
	}
	if c.BroadcastPort < 0 || c.BroadcastPort > 65535 {
		return fmt.Errorf("%w: broadcast port %d", ErrInvalidConfig, c.BroadcastPort)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval %s", ErrInvalidConfig, c.Interval)
	}
	if c.KeyFile == "" {
		return fmt.Errorf("%w: key_file is empty", ErrInvalidConfig)
	}
	return nil
}

// Usage describes the environment variables understood by Load.
func Usage() string {
	var cfg Config
	desc, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return desc
}
