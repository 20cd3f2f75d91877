package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort      string
	RedisAddr       string
	RedisPass       string
	RedisDB         int
	AuditDBPath     string
	PlannerAPIKey   string
	PlannerBaseURL  string
	PlannerModel    string
	PlannerTimeout  time.Duration
	NotifyWorkers   int
	StaleSessionAge time.Duration
	SweepSchedule   string
}

func Load() *Config {
	// Secrets live in .env during local development; absence is fine.
	_ = godotenv.Load()

	return &Config{
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		AuditDBPath:     getEnv("AUDIT_DB_PATH", "callline_audit.db"),
		PlannerAPIKey:   getEnv("PLANNER_API_KEY", ""),
		PlannerBaseURL:  getEnv("PLANNER_BASE_URL", ""),
		PlannerModel:    getEnv("PLANNER_MODEL", "gpt-4o-mini"),
		PlannerTimeout:  getEnvDuration("PLANNER_TIMEOUT", 30*time.Second),
		NotifyWorkers:   getEnvInt("NOTIFY_WORKERS", 3),
		StaleSessionAge: getEnvDuration("STALE_SESSION_AGE", 15*time.Minute),
		SweepSchedule:   getEnv("SWEEP_SCHEDULE", "@every 1m"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
