package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"searchkit/sessionclient/internal/observability"
)

// Session store backends accepted in SESSION_STORE.
const (
	StoreMemory    = "memory"
	StoreFile      = "file"
	StoreEncrypted = "encrypted"
	StorePostgres  = "postgres"
	StoreRedis     = "redis"
)

type Config struct {
	AuthAPI       AuthAPIConfig
	Store         StoreConfig
	AuditLogFile  string
	LogLevel      string
	MetricsAddr   string
	WatchInterval time.Duration
	Stub          StubConfig
}

type AuthAPIConfig struct {
	URL string
	// Timeout of zero disables the client timeout.
	Timeout time.Duration
}

type StoreConfig struct {
	Backend       string
	StateFile     string
	EncryptionKey string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

type StubConfig struct {
	Addr              string
	UsersFile         string
	TokenTTL          time.Duration
	BootstrapUsername string
	BootstrapPassword string
	ShutdownTimeout   time.Duration
}

func Load() (Config, error) {
	cfg := Config{
		AuthAPI: AuthAPIConfig{
			URL:     getEnv("AUTH_API_URL", "http://localhost:5000/api"),
			Timeout: time.Duration(getEnvInt("AUTH_HTTP_TIMEOUT_SEC", 30)) * time.Second,
		},
		Store: StoreConfig{
			Backend:       strings.ToLower(getEnv("SESSION_STORE", StoreFile)),
			StateFile:     getEnv("SESSION_STATE_FILE", "./data/session.json"),
			EncryptionKey: getEnv("SESSION_ENCRYPTION_KEY", ""),
			DatabaseURL:   getEnv("DATABASE_URL", ""),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			KeyPrefix:     getEnv("SESSION_KEY_PREFIX", "sessionclient:"),
		},
		AuditLogFile:  getEnv("AUDIT_LOG_FILE", "./data/session_audit.log"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		MetricsAddr:   getEnv("METRICS_ADDR", ""),
		WatchInterval: time.Duration(getEnvInt("WATCH_INTERVAL_SEC", 300)) * time.Second,
		Stub: StubConfig{
			Addr:              getEnv("STUB_ADDR", ":5000"),
			UsersFile:         getEnv("STUB_USERS_FILE", "./data/stub_users.json"),
			TokenTTL:          time.Duration(getEnvInt("STUB_TOKEN_TTL_SEC", 3600)) * time.Second,
			BootstrapUsername: getEnv("STUB_BOOTSTRAP_USERNAME", "alice"),
			BootstrapPassword: getEnv("STUB_BOOTSTRAP_PASSWORD", "correct-horse"),
			ShutdownTimeout:   time.Duration(getEnvInt("STUB_SHUTDOWN_TIMEOUT_SEC", 10)) * time.Second,
		},
	}

	if cfg.AuthAPI.URL == "" {
		return Config{}, fmt.Errorf("AUTH_API_URL must not be empty")
	}
	if cfg.AuthAPI.Timeout < 0 {
		return Config{}, fmt.Errorf("AUTH_HTTP_TIMEOUT_SEC must be >= 0")
	}

	switch cfg.Store.Backend {
	case StoreMemory:
	case StoreFile:
		if cfg.Store.StateFile == "" {
			return Config{}, fmt.Errorf("SESSION_STATE_FILE must not be empty")
		}
	case StoreEncrypted:
		if cfg.Store.StateFile == "" {
			return Config{}, fmt.Errorf("SESSION_STATE_FILE must not be empty")
		}
		if cfg.Store.EncryptionKey == "" {
			return Config{}, fmt.Errorf("SESSION_ENCRYPTION_KEY is required for the encrypted store")
		}
	case StorePostgres:
		if cfg.Store.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreRedis:
		if cfg.Store.RedisAddr == "" {
			return Config{}, fmt.Errorf("REDIS_ADDR must not be empty")
		}
		if cfg.Store.RedisDB < 0 {
			return Config{}, fmt.Errorf("REDIS_DB must be >= 0")
		}
	default:
		return Config{}, fmt.Errorf("SESSION_STORE must be one of memory, file, encrypted, postgres, redis; got %q", cfg.Store.Backend)
	}

	if _, err := observability.ParseLevel(cfg.LogLevel); err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if cfg.WatchInterval <= 0 {
		return Config{}, fmt.Errorf("WATCH_INTERVAL_SEC must be > 0")
	}
	if cfg.Stub.Addr == "" {
		return Config{}, fmt.Errorf("STUB_ADDR must not be empty")
	}
	if cfg.Stub.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("STUB_TOKEN_TTL_SEC must be > 0")
	}
	if cfg.Stub.BootstrapUsername == "" {
		return Config{}, fmt.Errorf("STUB_BOOTSTRAP_USERNAME must not be empty")
	}
	if cfg.Stub.BootstrapPassword == "" {
		return Config{}, fmt.Errorf("STUB_BOOTSTRAP_PASSWORD must not be empty")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return fallback
	}
	return n
}
