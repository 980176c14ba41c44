package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const devJWTSecret = "dev-secret"

// AccessTokenTTL is the fixed lifetime of session tokens and their cookie.
const AccessTokenTTL = time.Hour

// FailPolicy decides how the auth gate treats an unreachable revocation store.
type FailPolicy string

const (
	FailClosed FailPolicy = "closed"
	FailOpen   FailPolicy = "open"
)

// Revocation backends.
const (
	RevocationBackendRedis  = "redis"
	RevocationBackendMemory = "memory"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Cookie   CookieConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	ProxyHeader           string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret              string
	ClockSkew              time.Duration
	BcryptCost             int
	RevocationBackend      string
	RevocationTimeout      time.Duration
	RevocationFailPolicy   FailPolicy
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
	BootstrapAdminName     string
	LoginRatePerSecond     float64
	LoginRateBurst         int
}

// CookieConfig controls the session cookie attributes.
type CookieConfig struct {
	Name     string
	Domain   string
	Path     string
	Secure   bool
	SameSite string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	env := getEnv("APP_ENV", "development")
	production := strings.EqualFold(env, "production")

	defaultSameSite := "Lax"
	if production {
		defaultSameSite = "None"
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "auth-service"),
			Env:                   env,
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "3000"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			ProxyHeader:           os.Getenv("APP_PROXY_HEADER"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Username:     os.Getenv("REDIS_USERNAME"),
			Password:     os.Getenv("REDIS_PASSWORD"),
			DB:           redisDB,
			DialTimeout:  getEnvAsMillis("REDIS_DIAL_TIMEOUT_MS", 2000),
			ReadTimeout:  getEnvAsMillis("REDIS_READ_TIMEOUT_MS", 500),
			WriteTimeout: getEnvAsMillis("REDIS_WRITE_TIMEOUT_MS", 500),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:              getEnv("AUTH_JWT_SECRET", devJWTSecret),
			ClockSkew:              time.Duration(getEnvAsInt("AUTH_CLOCK_SKEW_SECONDS", 5)) * time.Second,
			BcryptCost:             getEnvAsInt("AUTH_BCRYPT_COST", 12),
			RevocationBackend:      strings.ToLower(getEnv("AUTH_REVOCATION_BACKEND", RevocationBackendRedis)),
			RevocationTimeout:      getEnvAsMillis("AUTH_REVOCATION_TIMEOUT_MS", 300),
			RevocationFailPolicy:   FailPolicy(strings.ToLower(getEnv("AUTH_REVOCATION_FAIL_POLICY", string(FailClosed)))),
			BootstrapAdminEmail:    os.Getenv("AUTH_BOOTSTRAP_ADMIN_EMAIL"),
			BootstrapAdminPassword: os.Getenv("AUTH_BOOTSTRAP_ADMIN_PASSWORD"),
			BootstrapAdminName:     getEnv("AUTH_BOOTSTRAP_ADMIN_NAME", "admin"),
			LoginRatePerSecond:     getEnvAsFloat("AUTH_LOGIN_RATE_PER_SECOND", 1),
			LoginRateBurst:         getEnvAsInt("AUTH_LOGIN_RATE_BURST", 10),
		},
		Cookie: CookieConfig{
			Name:     getEnv("COOKIE_NAME", "token"),
			Domain:   os.Getenv("COOKIE_DOMAIN"),
			Path:     getEnv("COOKIE_PATH", "/"),
			Secure:   getEnvAsBool("COOKIE_SECURE", production),
			SameSite: getEnv("COOKIE_SAMESITE", defaultSameSite),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations that would weaken the session guarantees.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("AUTH_JWT_SECRET must not be empty")
	}
	if c.App.IsProduction() && c.Auth.JWTSecret == devJWTSecret {
		return errors.New("AUTH_JWT_SECRET must be set in production")
	}

	switch c.Auth.RevocationFailPolicy {
	case FailClosed, FailOpen:
	default:
		return fmt.Errorf("invalid AUTH_REVOCATION_FAIL_POLICY %q", c.Auth.RevocationFailPolicy)
	}

	switch c.Auth.RevocationBackend {
	case RevocationBackendRedis, RevocationBackendMemory:
	default:
		return fmt.Errorf("invalid AUTH_REVOCATION_BACKEND %q", c.Auth.RevocationBackend)
	}

	switch strings.ToLower(c.Cookie.SameSite) {
	case "lax", "strict", "none":
	default:
		return fmt.Errorf("invalid COOKIE_SAMESITE %q", c.Cookie.SameSite)
	}

	if c.Auth.ClockSkew < 0 || c.Auth.ClockSkew > time.Minute {
		return fmt.Errorf("AUTH_CLOCK_SKEW_SECONDS must be between 0 and 60, got %s", c.Auth.ClockSkew)
	}

	if (c.Auth.BootstrapAdminEmail == "") != (c.Auth.BootstrapAdminPassword == "") {
		return errors.New("AUTH_BOOTSTRAP_ADMIN_EMAIL and AUTH_BOOTSTRAP_ADMIN_PASSWORD must be set together")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// IsProduction reports whether the service runs with production defaults.
func (a AppConfig) IsProduction() bool {
	return strings.EqualFold(a.Env, "production")
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the session token lifetime. It is not configurable.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return AccessTokenTTL
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

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsMillis(key string, fallback int) time.Duration {
	return time.Duration(getEnvAsInt(key, fallback)) * time.Millisecond
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
