package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

type Config struct {
	Server struct {
		Port string `yaml:"port" env:"TRIVIA_PORT"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level" env:"TRIVIA_LOG_LEVEL"`
	} `yaml:"log"`
	Store struct {
		Driver string `yaml:"driver" env:"TRIVIA_STORE_DRIVER"`
	} `yaml:"store"`
	SQLite struct {
		Path string `yaml:"path" env:"TRIVIA_SQLITE_PATH"`
	} `yaml:"sqlite"`
	Postgres struct {
		URL string `yaml:"url" env:"TRIVIA_POSTGRES_URL"`
	} `yaml:"postgres"`
	Redis struct {
		Addr     string `yaml:"addr" env:"TRIVIA_REDIS_ADDR"`
		Password string `yaml:"password" env:"TRIVIA_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"TRIVIA_REDIS_DB"`
		TTL      string `yaml:"ttl" env:"TRIVIA_REDIS_TTL"`
	} `yaml:"redis"`
	Scoreboard struct {
		TTL string `yaml:"ttl" env:"TRIVIA_SCOREBOARD_TTL"`
	} `yaml:"scoreboard"`
	Rounds struct {
		QuestionsPerRound int `yaml:"questionsPerRound" env:"TRIVIA_QUESTIONS_PER_ROUND"`
	} `yaml:"rounds"`
	AMQP struct {
		URL      string `yaml:"url" env:"TRIVIA_AMQP_URL"`
		Exchange string `yaml:"exchange" env:"TRIVIA_AMQP_EXCHANGE"`
	} `yaml:"amqp"`
}

// Load reads YAML config from path, then applies .env and TRIVIA_* environment
// overrides. A missing file or .env is not an error.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return cfg, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = StoreMemory
		if cfg.Postgres.URL != "" {
			cfg.Store.Driver = StorePostgres
		}
	}
	switch cfg.Store.Driver {
	case StoreMemory, StorePostgres, StoreSQLite:
	default:
		return cfg, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if cfg.AMQP.Exchange == "" {
		cfg.AMQP.Exchange = "trivia.events"
	}
	return cfg, nil
}

// LogLevel parses log.level, defaulting to info.
func (c Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
