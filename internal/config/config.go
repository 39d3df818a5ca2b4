package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

type Config struct {
	Port  string
	Store StoreConfig
	Exec  ExecConfig

	// Zero disables the stale-room sweeper. It only sees this process's
	// sockets, so it is off by default for the shared redis store.
	SweepInterval time.Duration

	LogLevel  string
	LogFormat string
}

type StoreConfig struct {
	Driver     string
	RedisURL   string
	KeyPrefix  string
	RoomTTL    time.Duration
	SQLitePath string
}

type ExecConfig struct {
	Endpoint      string
	ClientID      string
	ClientSecret  string
	Timeout       time.Duration
	RatePerMinute int
}

// Load reads the configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{
		Port: envOrDefault("PORT", "3001"),
		Store: StoreConfig{
			Driver:     envOrDefault("STORE_DRIVER", DriverRedis),
			RedisURL:   redisURL(),
			KeyPrefix:  envOrDefault("REDIS_KEY_PREFIX", "room:"),
			RoomTTL:    envDuration("ROOM_TTL", 0),
			SQLitePath: envOrDefault("CODESYNC_DB_PATH", "./data/codesync.db"),
		},
		Exec: ExecConfig{
			Endpoint:      envOrDefault("JDOODLE_URL", "https://api.jdoodle.com/v1/execute"),
			ClientID:      os.Getenv("JDOODLE_CLIENT_ID"),
			ClientSecret:  os.Getenv("JDOODLE_CLIENT_SECRET"),
			Timeout:       envDuration("EXECUTE_TIMEOUT", 15*time.Second),
			RatePerMinute: envInt("EXECUTE_RATE_PER_MINUTE", 20),
		},
		LogLevel:      envOrDefault("LOG_LEVEL", "info"),
		LogFormat:     envOrDefault("LOG_FORMAT", "json"),
	}

	switch cfg.Store.Driver {
	case DriverRedis, DriverSQLite, DriverMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Store.Driver)
	}
	cfg.SweepInterval = envDuration("SWEEP_INTERVAL", defaultSweepInterval(cfg.Store.Driver))
	return cfg, nil
}

func defaultSweepInterval(driver string) time.Duration {
	if driver == DriverRedis {
		return 0
	}
	return 5 * time.Minute
}

// REDIS_URL wins; REDIS_ADDR is accepted as a bare host:port
func redisURL() string {
	if url, ok := os.LookupEnv("REDIS_URL"); ok && url != "" {
		return url
	}
	return "redis://" + envOrDefault("REDIS_ADDR", "localhost:6379")
}

func envOrDefault(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func envDuration(key string, def time.Duration) time.Duration {
	if env, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(env); err == nil {
			return parsed
		}
	}
	return def
}

func envInt(key string, def int) int {
	if env, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(env); err == nil {
			return parsed
		}
	}
	return def
}
