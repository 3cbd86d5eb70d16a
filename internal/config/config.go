package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Session      SessionConfig
	Blob         BlobConfig
	Lock         LockConfig
	Report       ReportConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
	HealthCheckSec int32
	// Session defaults sent on every pooled connection.
	ApplicationName    string
	StatementTimeoutMs int
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	ClientName    string
	PoolSize      int
	DialTimeoutMs int
	IOTimeoutMs   int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level  string
	Format string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// SessionConfig controls the session cookie.
type SessionConfig struct {
	CookieName string
	Secure     bool
}

// BlobConfig controls where uploaded photos are kept.
type BlobConfig struct {
	Dir           string
	MaxPhotoBytes int64
}

// LockConfig tunes per-ticket serialization.
type LockConfig struct {
	TTLSeconds int
	WaitMillis int
}

// ReportConfig tunes the inspection report.
type ReportConfig struct {
	FinePerNonConformity int64
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	AdminEmail string
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxPhoto, err := strconv.ParseInt(getEnv("BLOB_MAX_PHOTO_BYTES", "10485760"), 10, 64)
	if err != nil || maxPhoto <= 0 {
		return nil, fmt.Errorf("invalid BLOB_MAX_PHOTO_BYTES: %q", os.Getenv("BLOB_MAX_PHOTO_BYTES"))
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ecoguard"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
			HealthCheckSec: int32(getEnvAsInt("POSTGRES_HEALTH_CHECK_SECONDS", 30)),

			ApplicationName:    getEnv("POSTGRES_APPLICATION_NAME", "ecoguard"),
			StatementTimeoutMs: getEnvAsInt("POSTGRES_STATEMENT_TIMEOUT_MS", 5000),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,

			ClientName:    getEnv("REDIS_CLIENT_NAME", "ecoguard-locks"),
			PoolSize:      getEnvAsInt("REDIS_POOL_SIZE", 0),
			DialTimeoutMs: getEnvAsInt("REDIS_DIAL_TIMEOUT_MS", 2000),
			IOTimeoutMs:   getEnvAsInt("REDIS_IO_TIMEOUT_MS", 500),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60*12),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Session: SessionConfig{
			CookieName: getEnv("SESSION_COOKIE_NAME", "session_token"),
			Secure:     getEnvAsBool("SESSION_COOKIE_SECURE", false),
		},
		Blob: BlobConfig{
			Dir:           getEnv("BLOB_DIR", "data/blobs"),
			MaxPhotoBytes: maxPhoto,
		},
		Lock: LockConfig{
			TTLSeconds: getEnvAsInt("LOCK_TTL_SECONDS", 15),
			WaitMillis: getEnvAsInt("LOCK_WAIT_MILLIS", 3000),
		},
		Report: ReportConfig{
			FinePerNonConformity: int64(getEnvAsInt("REPORT_FINE_PER_NONCONFORMITY", 12500)),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@ecoguard.local"),
			AdminEmail: os.Getenv("NOTIFY_ADMIN_EMAIL"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Enabled reports whether a Redis address was configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// TTL is how long a held ticket lock survives without release.
func (l LockConfig) TTL() time.Duration {
	if l.TTLSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(l.TTLSeconds) * time.Second
}

// Wait bounds how long a caller waits to acquire a ticket lock.
func (l LockConfig) Wait() time.Duration {
	if l.WaitMillis <= 0 {
		return 0
	}
	return time.Duration(l.WaitMillis) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
