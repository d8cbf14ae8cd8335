/*
Package config loads server configuration.

SOURCES (later wins):
  1. Defaults
  2. .env file in the working directory (optional)
  3. Environment variables
  4. Command-line flags (-port, -db)

VARIABLES:
  PORT                 HTTP port (8080)
  DATABASE_PATH        SQLite path (rental.db), ":memory:" for a throwaway DB
  TIMEZONE             IANA zone used to interpret due dates (Asia/Seoul)
  CHECK_SCHEDULE       Cron spec for the return delay check ("* * * * *")
  DISCORD_WEBHOOK_URL  Webhook for sanction messages (empty = log only)
  DISCORD_USERNAME     Webhook display name (Rental Bot)
  REDIS_ADDR           Enables the cross-process run lock (empty = in-process)
  REDIS_PASSWORD
  RUN_LOCK_TTL         Redis lock expiry (55s)
  ALLOWED_ORIGINS      Comma-separated CORS origins (*)
*/
package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

type Config struct {
	Port           int
	DatabasePath   string
	Location       *time.Location
	CheckSchedule  string
	Discord        DiscordConfig
	Redis          RedisConfig
	AllowedOrigins []string
}

type DiscordConfig struct {
	WebhookURL string
	Username   string
}

type RedisConfig struct {
	Addr     string
	Password string
	LockTTL  time.Duration
}

// Load reads the .env file, the environment and args (normally os.Args[1:]).
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: .env not loaded: %v", err)
	}
	return FromEnv(args)
}

// FromEnv builds the config from the current environment and args only.
func FromEnv(args []string) (*Config, error) {
	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	portFlag := fs.Int("port", port, "HTTP server port")
	dbFlag := fs.String("db", getEnv("DATABASE_PATH", "rental.db"), "SQLite database path")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	zone := getEnv("TIMEZONE", "Asia/Seoul")
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", zone, err)
	}

	schedule := getEnv("CHECK_SCHEDULE", "* * * * *")
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid CHECK_SCHEDULE %q: %w", schedule, err)
	}

	ttl, err := time.ParseDuration(getEnv("RUN_LOCK_TTL", "55s"))
	if err != nil {
		return nil, fmt.Errorf("invalid RUN_LOCK_TTL: %w", err)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("invalid RUN_LOCK_TTL: must be positive")
	}

	return &Config{
		Port:          *portFlag,
		DatabasePath:  *dbFlag,
		Location:      loc,
		CheckSchedule: schedule,
		Discord: DiscordConfig{
			WebhookURL: strings.TrimSpace(os.Getenv("DISCORD_WEBHOOK_URL")),
			Username:   getEnv("DISCORD_USERNAME", "Rental Bot"),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
			Password: os.Getenv("REDIS_PASSWORD"),
			LockTTL:  ttl,
		},
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
	}, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
