package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	// SQL drivers for the sqlite and postgres backends.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/petrijr/processo"
)

// config is the YAML configuration of the CLI.
type config struct {
	// Store selects the persistence backend: memory, sqlite, postgres, redis.
	Store string `yaml:"store"`

	// DSN is the database location for sqlite (file path) and postgres
	// (connection string).
	DSN string `yaml:"dsn"`

	// RedisAddr is the Redis address for the redis backend (host:port).
	RedisAddr string `yaml:"redis_addr"`

	// Listen is the HTTP listen address for serve.
	Listen string `yaml:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

func defaultConfig() config {
	return config{
		Store:    "memory",
		DSN:      "processo.db",
		Listen:   ":8080",
		LogLevel: "info",
	}
}

// loadConfig reads the YAML file at path, or returns defaults if path is empty.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// newLogger builds a slog text logger at the configured level and installs
// it as the default.
func newLogger(cfg config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// newEngine builds the engine for the configured backend. The returned
// cleanup function closes whatever connection the backend opened.
func newEngine(cfg config, obs processo.Observer) (processo.Engine, func(), error) {
	switch cfg.Store {
	case "", "memory":
		return processo.NewInMemoryEngineWithObserver(obs), func() {}, nil

	case "sqlite":
		db, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		eng, err := processo.NewSQLiteEngineWithObserver(db, obs)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return eng, func() { db.Close() }, nil

	case "postgres":
		db, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		eng, err := processo.NewPostgresEngineWithObserver(db, obs)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return eng, func() { db.Close() }, nil

	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		eng := processo.NewRedisEngineWithObserver(client, obs)
		return eng, func() { client.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
}
