package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers understood by STORE_DRIVER.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// DefaultTimeLayout matches the zh-CN locale date format used for winner records.
const DefaultTimeLayout = "2006/1/2 15:04:05"

type Config struct {
	Port           string
	Env            string
	StoreDriver    string
	DataDir        string
	RedisURL       string // redis:// URL or host:port
	RedisPass      string
	RedisDB        int
	DatabaseURL    string
	PrizesFile     string        // optional YAML prize table
	OperatorSecret string        // HMAC secret for operator tokens; empty disables operator auth
	DrawDelay      time.Duration // pacing before a draw result is revealed
	TimeLayout     string
	SessionIdle    time.Duration // idle tenant sessions older than this are evicted
}

// Load reads the configuration from the environment. Call godotenv.Load
// first if a .env file should be honoured.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getenv("PORT", "8080"),
		Env:            getenv("APP_ENV", "development"),
		StoreDriver:    strings.ToLower(getenv("STORE_DRIVER", StoreFile)),
		DataDir:        getenv("DATA_DIR", "data"),
		RedisURL:       getenv("REDIS_URL", "localhost:6379"),
		RedisPass:      os.Getenv("REDIS_PASSWORD"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		PrizesFile:     os.Getenv("PRIZES_FILE"),
		OperatorSecret: os.Getenv("OPERATOR_SECRET"),
		TimeLayout:     getenv("TIME_LAYOUT", DefaultTimeLayout),
		DrawDelay:      time.Second,
		SessionIdle:    time.Hour,
	}

	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil || db < 0 {
			return nil, fmt.Errorf("invalid REDIS_DB %q", v)
		}
		cfg.RedisDB = db
	}
	if v := os.Getenv("DRAW_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("invalid DRAW_DELAY %q", v)
		}
		cfg.DrawDelay = d
	}
	if v := os.Getenv("SESSION_IDLE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid SESSION_IDLE %q", v)
		}
		cfg.SessionIdle = d
	}

	switch cfg.StoreDriver {
	case StoreMemory, StoreFile, StoreRedis:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("STORE_DRIVER=postgres requires DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
