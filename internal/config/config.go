package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env      string
	HTTPPort string

	DBDriver        string
	DatabaseURL     string
	DBHost          string
	DBPort          string
	DBUser          string
	DBPassword      string
	DBName          string
	DBMaxOpenConns  int
	DBConnLifetime  time.Duration
	DBPingTimeout   time.Duration
	SeedRegistry    bool
	Timezone        string
	RoleOrder       []string
	VisitDumpLimit  int
	RedisAddr       string
	QueueBackend    string
	QueueKey        string
	LiveCounterKey  string
	AuthRequired    bool
	JWTIssuer       string
	JWTSigningKey   string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	RateLimitPerMin int
	CORSOrigins     []string
}

// Load reads an optional .env file and returns application config populated
// from environment variables with sensible defaults.
func Load() App {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env, continuing with process environment", "error", err)
	}

	return App{
		Env:             strings.ToLower(getEnv("APP_ENV", "dev")),
		HTTPPort:        getEnv("HTTP_PORT", "8081"),
		DBDriver:        strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		DBHost:          getEnv("DB_HOST", "127.0.0.1"),
		DBPort:          getEnv("DB_PORT", "3306"),
		DBUser:          getEnv("DB_USER", "checkin"),
		DBPassword:      getEnv("DB_PASSWORD", ""),
		DBName:          getEnv("DB_NAME", "nfc_checkin"),
		DBMaxOpenConns:  intEnv("DB_MAX_OPEN_CONNS", 10),
		DBConnLifetime:  durationEnv("DB_CONN_MAX_LIFETIME", time.Hour),
		DBPingTimeout:   durationEnv("DB_PING_TIMEOUT", 10*time.Second),
		SeedRegistry:    boolEnv("SEED_REGISTRY", true),
		Timezone:        getEnv("TIMEZONE", "Asia/Bangkok"),
		RoleOrder:       csvEnv("ROLE_ORDER", []string{"Staff", "Student", "Guest", "VIP"}),
		VisitDumpLimit:  intEnv("VISIT_DUMP_LIMIT", 500),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		QueueBackend:    strings.ToLower(getEnv("QUEUE_BACKEND", "redis")),
		QueueKey:        getEnv("QUEUE_KEY", "checkin:visits"),
		LiveCounterKey:  getEnv("LIVE_COUNTER_KEY", "checkin:live"),
		AuthRequired:    boolEnv("AUTH_REQUIRED", false),
		JWTIssuer:       getEnv("JWT_ISSUER", "nfc-checkin"),
		JWTSigningKey:   getEnv("JWT_SIGNING_KEY", "dev-signing-secret-change"),
		AccessTTL:       durationEnv("ACCESS_TTL", 12*time.Hour),
		RefreshTTL:      durationEnv("REFRESH_TTL", 7*24*time.Hour),
		RateLimitPerMin: intEnv("RATE_LIMIT_PER_MIN", 600),
		CORSOrigins:     csvEnv("CORS_ORIGINS", []string{"*"}),
	}
}

// Production reports whether the app runs with production settings.
func (a App) Production() bool {
	return a.Env == "production" || a.Env == "prod"
}

// Location resolves the configured timezone used for visit timestamps.
func (a App) Location() (*time.Location, error) {
	if a.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", a.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			slog.Warn("invalid duration, using fallback", "key", key, "error", err, "fallback", fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		switch strings.ToLower(val) {
		case "1", "true", "yes":
			return true
		case "0", "false", "no":
			return false
		}
		slog.Warn("invalid bool, using fallback", "key", key, "fallback", fallback)
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		slog.Warn("invalid int, using fallback", "key", key, "fallback", fallback)
	}
	return fallback
}

func csvEnv(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
