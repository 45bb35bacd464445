package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds the server settings. Every field can be set from the environment.
type Config struct {
	HTTPAddr string    `env:"HTTP_ADDR" env-default:":8080"`
	LogLevel string    `env:"LOG_LEVEL" env-default:"info"`
	Store    string    `env:"STORE" env-default:"memory"`
	Redis    Redis     `env-prefix:"REDIS_"`
	Session  Session   `env-prefix:"SESSION_"`
	SQLite   SQLite    `env-prefix:"SQLITE_"`
	Token    Token     `env-prefix:"TOKEN_"`
	Otel     Telemetry `env-prefix:"OTEL_"`
}

type Redis struct {
	ConnString string `env:"CONNSTRING" env-default:"localhost:6379"`
}

type Session struct {
	TTL time.Duration `env:"TTL" env-default:"24h"`
}

type SQLite struct {
	Path string `env:"PATH" env-default:"./scoreboard.db"`
}

type Token struct {
	Secret string        `env:"SECRET" env-default:"change-me"`
	TTL    time.Duration `env:"TTL" env-default:"72h"`
}

type Telemetry struct {
	Enabled     bool   `env:"ENABLED" env-default:"false"`
	Collector   string `env:"COLLECTOR" env-default:"otel-collector:4317"`
	StdoutTrace bool   `env:"STDOUT_TRACE" env-default:"false"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("unable to read config from environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is Load that panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.Store {
	case StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("unknown store %q, want %q or %q", c.Store, StoreMemory, StoreRedis)
	}
	if c.Token.Secret == "" {
		return fmt.Errorf("TOKEN_SECRET must not be empty")
	}
	return nil
}
