package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	BaseURL       string // Required: public base URL for OAuth callbacks and mail links
	SessionSecret string // Required: HS256 secret for session and verification tokens (min 32 bytes)

	GithubClientID       string // OAuth client id for GitHub
	GithubClientSecret   string
	FacebookClientID     string // OAuth client id for Facebook
	FacebookClientSecret string
	TwitterClientID      string // OAuth client id for Twitter
	TwitterClientSecret  string

	SMTPAddr string // Optional: SMTP relay host:port, mails are logged when unset
	SMTPFrom string // Optional: From address for outgoing mail

	DatabaseFile        string        // Optional: path to SQLite database file (default: ./commune.db)
	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
	SessionTTL          time.Duration // Session lifetime (default: 30 days)
	PictureInterval     time.Duration // Profile picture refresh interval (default: 24h)

	DefaultInvitations int64 // Invite credit for new accounts (default: 0)
	AutoInviteLimit    int64 // Founding members per city that skip the invite gate (default: 100)
	AutoInviteGrant    int64 // Invite credit granted to founding members (default: 5)
}

func LoadConfig() Config {
	cfg := Config{
		BaseURL:       getEnvOrDefault("COMMUNE_BASE_URL", "http://localhost:8080"),
		SessionSecret: os.Getenv("COMMUNE_SESSION_SECRET"),

		GithubClientID:       os.Getenv("COMMUNE_GITHUB_CLIENT_ID"),
		GithubClientSecret:   os.Getenv("COMMUNE_GITHUB_CLIENT_SECRET"),
		FacebookClientID:     os.Getenv("COMMUNE_FACEBOOK_CLIENT_ID"),
		FacebookClientSecret: os.Getenv("COMMUNE_FACEBOOK_CLIENT_SECRET"),
		TwitterClientID:      os.Getenv("COMMUNE_TWITTER_CLIENT_ID"),
		TwitterClientSecret:  os.Getenv("COMMUNE_TWITTER_CLIENT_SECRET"),

		SMTPAddr: os.Getenv("COMMUNE_SMTP_ADDR"),
		SMTPFrom: getEnvOrDefault("COMMUNE_SMTP_FROM", "noreply@commune.local"),

		DatabaseFile:        getEnvOrDefault("COMMUNE_DATABASE_FILE", "commune.db"),
		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		SessionTTL:          getEnvDurationOrDefault("COMMUNE_SESSION_TTL", 30*24*time.Hour),
		PictureInterval:     getEnvDurationOrDefault("COMMUNE_PICTURE_INTERVAL", 24*time.Hour),

		DefaultInvitations: int64(getEnvIntOrDefault("COMMUNE_DEFAULT_INVITATIONS", 0)),
		AutoInviteLimit:    int64(getEnvIntOrDefault("COMMUNE_AUTO_INVITE_LIMIT", 100)),
		AutoInviteGrant:    int64(getEnvIntOrDefault("COMMUNE_AUTO_INVITE_GRANT", 5)),
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

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
