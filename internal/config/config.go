package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"QLDCwebserver/internal/throttle"
)

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

type Config struct {
	Env          string
	Addr         string
	PublicURL    *url.URL
	LogLevel     string
	CookieSecret string
	IdentityURL  *url.URL
	Metrics      bool

	Store         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DBDSN         string
	SQLiteDir     string

	Throttle throttle.Config
}

func Load() (Config, error) {
	path := os.Getenv("APP_ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := loadDotEnvFile(path, os.Setenv, os.Getenv); err != nil {
		return Config{}, err
	}
	return LoadFromEnv(os.Getenv)
}

// loadDotEnvFile applies the variables of a .env file that are not already
// set. A missing file is not an error.
func loadDotEnvFile(path string, setenv func(string, string) error, getenv func(string) string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	for k, v := range values {
		if v == "" || getenv(k) != "" {
			continue
		}
		if err := setenv(k, v); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return nil
}

func LoadFromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Env:           getenv("APP_ENV"),
		Addr:          getenv("APP_ADDR"),
		LogLevel:      getenv("APP_LOG_LEVEL"),
		CookieSecret:  getenv("APP_COOKIE_SECRET"),
		Store:         strings.ToLower(strings.TrimSpace(getenv("APP_STORE"))),
		RedisAddr:     getenv("APP_REDIS_ADDR"),
		RedisPassword: getenv("APP_REDIS_PASSWORD"),
		DBDSN:         getenv("APP_DB_DSN"),
		SQLiteDir:     getenv("APP_SQLITE_DIR"),
		Metrics:       getenv("APP_METRICS") != "off",
	}

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8080"
	}

	switch cfg.Env {
	case "dev", "prod", "test":
	default:
		return Config{}, errors.New("APP_ENV: must be one of dev, test, prod")
	}

	publicURL, err := parseHTTPURL("APP_PUBLIC_URL", getenv("APP_PUBLIC_URL"))
	if err != nil {
		return Config{}, err
	}
	cfg.PublicURL = publicURL

	identityURL, err := parseHTTPURL("APP_IDENTITY_URL", getenv("APP_IDENTITY_URL"))
	if err != nil {
		return Config{}, err
	}
	if identityURL == nil {
		return Config{}, errors.New("APP_IDENTITY_URL: required")
	}
	cfg.IdentityURL = identityURL

	if err := loadStore(&cfg, getenv); err != nil {
		return Config{}, err
	}

	cfg.Throttle = throttle.DefaultConfig()
	if raw := getenv("APP_THROTTLE_MAX_ATTEMPTS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("APP_THROTTLE_MAX_ATTEMPTS: %w", err)
		}
		if n <= 0 {
			return Config{}, errors.New("APP_THROTTLE_MAX_ATTEMPTS: must be > 0")
		}
		cfg.Throttle.MaxAttempts = n
	}
	if raw := getenv("APP_THROTTLE_LOCK_DURATION"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("APP_THROTTLE_LOCK_DURATION: %w", err)
		}
		if d <= 0 {
			return Config{}, errors.New("APP_THROTTLE_LOCK_DURATION: must be > 0")
		}
		cfg.Throttle.LockDuration = d
	}

	if cfg.IsProd() {
		if cfg.PublicURL == nil {
			return Config{}, errors.New("APP_PUBLIC_URL: required in prod")
		}
		if cfg.Store == StoreMemory {
			return Config{}, errors.New("APP_STORE: memory store is not allowed in prod")
		}
		if len(cfg.CookieSecret) < 32 {
			return Config{}, errors.New("APP_COOKIE_SECRET: must be at least 32 bytes in prod")
		}
	}

	return cfg, nil
}

func loadStore(cfg *Config, getenv func(string) string) error {
	if cfg.Store == "" {
		cfg.Store = StoreMemory
	}

	switch cfg.Store {
	case StoreMemory:
	case StoreRedis:
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "127.0.0.1:6379"
		}
		if raw := getenv("APP_REDIS_DB"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return errors.New("APP_REDIS_DB: must be a non-negative integer")
			}
			cfg.RedisDB = n
		}
	case StorePostgres:
		if cfg.DBDSN == "" {
			return errors.New("APP_DB_DSN: required when APP_STORE=postgres")
		}
	case StoreSQLite:
		if cfg.SQLiteDir == "" {
			cfg.SQLiteDir = "data"
		}
	default:
		return errors.New("APP_STORE: must be one of memory, redis, postgres, sqlite")
	}
	return nil
}

func parseHTTPURL(name, raw string) (*url.URL, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return nil, fmt.Errorf("%s: must be an absolute URL", name)
	}
	switch parsed.Scheme {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%s: scheme must be http or https", name)
	}
	return parsed, nil
}

func (c Config) IsProd() bool { return c.Env == "prod" }

func (c Config) CookieSecure() bool {
	if c.PublicURL != nil {
		return c.PublicURL.Scheme == "https"
	}
	return c.IsProd()
}
