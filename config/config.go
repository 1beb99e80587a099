/*
Package config loads server configuration from the environment, an
optional .env file and command-line flags.

PRECEDENCE:
  flags > environment > .env > defaults

VARIABLES:
  PORT               HTTP port (default 8080)
  ENVIRONMENT        development | production
  DB_DRIVER          sqlite | postgres | memory (default sqlite)
  SQLITE_PATH        SQLite file, ":memory:" allowed (default schedules.db)
  DATABASE_URL       postgres:// URL, required for the postgres driver
  DB_MAX_CONNS       Pool size for postgres (default 10)
  KAFKA_BROKERS      Comma-separated brokers; empty disables events
  KAFKA_TOPIC        Topic for schedule events (default schedule.events)
  LOG_LEVEL          debug | info | warn | error
  LOG_FORMAT         json | text
  REDERIVE_INTERVAL  How often stale schedules are re-derived (default 1m)
  REDERIVE_BATCH     Records per sweep (default 100)
  ALLOWED_ORIGINS    Comma-separated CORS origins
  RESCHEDULE_RULE    same_day | next_working_day | previous_working_day | modified_following
*/
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/schedule-engine/calendar"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port        int
	Environment string

	// Database
	DBDriver    string
	SQLitePath  string
	DatabaseURL string
	DBMaxConns  int32

	// Events
	KafkaBrokers []string
	KafkaTopic   string

	// Logging
	LogLevel  string
	LogFormat string

	// Background re-derivation
	RederiveInterval time.Duration
	RederiveBatch    int

	// CORS
	AllowedOrigins []string

	// Calendar
	RescheduleRule calendar.RescheduleRule
}

// LoadDotEnv loads .env files if present. Missing files are not an error.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// Load reads configuration from environment variables, then applies args
// as flags on top.
func Load(args []string) (*Config, error) {
	cfg := &Config{
		Port:             getEnvAsInt("PORT", 8080),
		Environment:      getEnv("ENVIRONMENT", "development"),
		DBDriver:         getEnv("DB_DRIVER", "sqlite"),
		SQLitePath:       getEnv("SQLITE_PATH", "schedules.db"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		DBMaxConns:       int32(getEnvAsInt("DB_MAX_CONNS", 10)),
		KafkaBrokers:     getEnvAsSlice("KAFKA_BROKERS", nil),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "schedule.events"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
		RederiveInterval: getEnvAsDuration("REDERIVE_INTERVAL", time.Minute),
		RederiveBatch:    getEnvAsInt("REDERIVE_BATCH", 100),
		AllowedOrigins:   getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:8080"}),
		RescheduleRule:   calendar.RescheduleRule(getEnv("RESCHEDULE_RULE", string(calendar.NextWorkingDay))),
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fs.StringVar(&cfg.DBDriver, "driver", cfg.DBDriver, "Storage driver: sqlite, postgres or memory")
	fs.StringVar(&cfg.SQLitePath, "db", cfg.SQLitePath, "SQLite database path")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "sqlite", "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	if !c.RescheduleRule.Valid() {
		return fmt.Errorf("unknown RESCHEDULE_RULE %q", c.RescheduleRule)
	}
	if c.RederiveInterval <= 0 {
		return fmt.Errorf("REDERIVE_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool { return c.Environment == "production" }

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice reads an environment variable as comma-separated slice
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
