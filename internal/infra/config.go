package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"fundingledger/internal/domain"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	StoreDriver        string
	MigrateOnStart     bool
	JWTSecret          string
	RedisURL           string
	IdempotencyTTL     time.Duration
	KafkaBrokers       []string
	KafkaTopic         string
	ConfirmRoles       []domain.Role
	DefaultCurrency    string
	DefaultLocale      string
	LedgerMaxAttempts  int
	LedgerRetryBackoff time.Duration
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	ReconcileInterval  time.Duration
	CORSAllowedOrigins []string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		StoreDriver:        strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		MigrateOnStart:     getEnvBool("MIGRATE_ON_START", false),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		RedisURL:           os.Getenv("REDIS_URL"),
		IdempotencyTTL:     time.Second * time.Duration(getEnvInt("IDEMPOTENCY_TTL_SECONDS", 86400)),
		KafkaBrokers:       splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "ledger.events"),
		DefaultCurrency:    strings.ToUpper(getEnv("DEFAULT_CURRENCY", "USD")),
		DefaultLocale:      getEnv("DEFAULT_LOCALE", "en"),
		LedgerMaxAttempts:  getEnvInt("LEDGER_MAX_ATTEMPTS", 3),
		LedgerRetryBackoff: time.Millisecond * time.Duration(getEnvInt("LEDGER_RETRY_BACKOFF_MS", 25)),
		OutboxPollInterval: time.Millisecond * time.Duration(getEnvInt("OUTBOX_POLL_INTERVAL_MS", 2000)),
		OutboxBatchSize:    getEnvInt("OUTBOX_BATCH_SIZE", 100),
		ReconcileInterval:  time.Second * time.Duration(getEnvInt("RECONCILE_INTERVAL_SECONDS", 900)),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	roles, err := parseRoles(getEnv("CONFIRM_ROLES", string(domain.RoleAdmin)))
	if err != nil {
		return nil, err
	}
	cfg.ConfirmRoles = roles

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	case StoreDriverMemory:
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.LedgerMaxAttempts < 1 {
		cfg.LedgerMaxAttempts = 1
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseRoles(v string) ([]domain.Role, error) {
	var roles []domain.Role
	for _, part := range splitList(v) {
		role, ok := domain.ParseRole(part)
		if !ok {
			return nil, fmt.Errorf("CONFIRM_ROLES: unknown role %q", part)
		}
		roles = append(roles, role)
	}
	if len(roles) == 0 {
		return nil, fmt.Errorf("CONFIRM_ROLES must name at least one role")
	}
	return roles, nil
}
