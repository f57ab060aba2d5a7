package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	JWKSURL  string // Required: identity provider JWKS endpoint
	Issuer   string // Required: expected issuer claim
	Audience string // Required: expected audience (project id)

	SessionSecretFile string        // Optional: path to the session master secret (default: ./session.key)
	CookieDomain      string        // Optional: shared parent domain for session cookies
	AllowedOrigins    []string      // Optional: comma-separated exact-match origin allow-list
	NodeID            string        // Optional: replica identifier for lock ownership (default: hostname)
	DatabaseFile      string        // Optional: path to SQLite database file (default: ./gateway.db)
	ReplayWindow      time.Duration // Optional: one-time-use replay window (default: 5m, clamped 1m-15m)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 15m)
	JWKSRefreshInterval  time.Duration // Provider key cache refresh (default: 6h)
}

func LoadConfig() Config {
	cfg := Config{
		JWKSURL:  os.Getenv("GATEWAY_JWKS_URL"),
		Issuer:   os.Getenv("GATEWAY_ISSUER"),
		Audience: os.Getenv("GATEWAY_AUDIENCE"),

		SessionSecretFile: getEnvOrDefault("GATEWAY_SESSION_SECRET_FILE", "session.key"),
		CookieDomain:      os.Getenv("GATEWAY_COOKIE_DOMAIN"),
		NodeID:            os.Getenv("GATEWAY_NODE_ID"),
		DatabaseFile:      getEnvOrDefault("GATEWAY_DATABASE_FILE", "gateway.db"),
		ReplayWindow:      getEnvDurationOrDefault("GATEWAY_REPLAY_WINDOW", 5*time.Minute),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 15*time.Minute),
		JWKSRefreshInterval:  getEnvDurationOrDefault("GATEWAY_JWKS_REFRESH", 6*time.Hour),
	}

	if origins := os.Getenv("GATEWAY_ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	if cfg.NodeID == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.NodeID = host
		} else {
			cfg.NodeID = "gateway"
		}
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Accept either a duration string ("5m", "90s") or integer minutes.
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
