package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	ServerPort     string
	AppBaseURL     string
	DatabaseType   string
	DatabasePath   string
	DatabaseURL    string
	MigrationsPath string
	Debug          bool

	SessionDuration  time.Duration
	InvitationTTL    time.Duration
	JobInvitationTTL time.Duration
	StoreTimeout     time.Duration
	IdentityTimeout  time.Duration
	RetentionPeriod  time.Duration

	// Identity provider: "local" keeps identities in the application database,
	// "remote" talks to an external admin API
	IdentityProvider     string
	IdentityURL          string
	IdentityTokenURL     string
	IdentityClientID     string
	IdentityClientSecret string
	SignInSecret         string
	SignInTTL            time.Duration
	CSRFSecret           string

	// Invitation creation throttle: "memory" or "redis"
	ThrottleBackend  string
	RedisURL         string
	InviteRate       int
	InviteRateWindow time.Duration
	RequestRate      int

	// Notification transport: "ses", "smtp" or "log"
	NotifyTransport string
	AWSRegion       string
	SESFromEmail    string
	SESFromName     string
	SMTPHost        string
	SMTPPort        int
	SMTPUser        string
	SMTPPassword    string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is applied first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load .env file: %v", err)
	}

	return &Config{
		ServerPort:     getEnv("PORT", "8080"),
		AppBaseURL:     strings.TrimSuffix(getEnv("APP_BASE_URL", "http://localhost:8080"), "/"),
		DatabaseType:   getEnv("DB_TYPE", "sqlite"),
		DatabasePath:   getEnv("DB_PATH", "./staffhub.db"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		MigrationsPath: getEnv("MIGRATIONS_PATH", ""),
		Debug:          getEnvBool("DEBUG", false),

		SessionDuration:  getEnvDuration("SESSION_DURATION", 24*time.Hour),
		InvitationTTL:    getEnvDuration("INVITATION_TTL", 7*24*time.Hour),
		JobInvitationTTL: getEnvDuration("JOB_INVITATION_TTL", 48*time.Hour),
		StoreTimeout:     getEnvDuration("STORE_TIMEOUT", 5*time.Second),
		IdentityTimeout:  getEnvDuration("IDENTITY_TIMEOUT", 10*time.Second),
		RetentionPeriod:  getEnvDuration("RETENTION_PERIOD", 90*24*time.Hour),

		IdentityProvider:     getEnv("IDENTITY_PROVIDER", "local"),
		IdentityURL:          strings.TrimSuffix(getEnv("IDENTITY_URL", ""), "/"),
		IdentityTokenURL:     getEnv("IDENTITY_TOKEN_URL", ""),
		IdentityClientID:     getEnv("IDENTITY_CLIENT_ID", ""),
		IdentityClientSecret: getEnv("IDENTITY_CLIENT_SECRET", ""),
		SignInSecret:         getEnv("SIGNIN_SECRET", ""),
		SignInTTL:            getEnvDuration("SIGNIN_TTL", 15*time.Minute),
		CSRFSecret:           getEnv("CSRF_SECRET", ""),

		ThrottleBackend:  getEnv("THROTTLE_BACKEND", "memory"),
		RedisURL:         getEnv("REDIS_URL", "localhost:6379"),
		InviteRate:       getEnvInt("INVITE_RATE", 20),
		InviteRateWindow: getEnvDuration("INVITE_RATE_WINDOW", time.Hour),
		RequestRate:      getEnvInt("REQUEST_RATE", 60),

		NotifyTransport: getEnv("NOTIFY_TRANSPORT", "log"),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),
		SESFromEmail:    getEnv("SES_FROM_EMAIL", ""),
		SESFromName:     getEnv("SES_FROM_NAME", "Staffhub"),
		SMTPHost:        getEnv("SMTP_HOST", ""),
		SMTPPort:        getEnvInt("SMTP_PORT", 587),
		SMTPUser:        getEnv("SMTP_USER", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
	}
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %t", key, value, defaultValue)
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}
