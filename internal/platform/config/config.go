// Package config loads runtime configuration from the environment and an optional .env file.
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

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Auth    AuthConfig
	CORS    CORSConfig
	Live    LiveConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port              string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

type StorageConfig struct {
	// Backend is "memory" or "postgres".
	Backend     string
	DatabaseURL string
	MaxConns    int32
	MinConns    int32

	IdempotencyTTL time.Duration
	// IdempotencySweepEvery is how often expired idempotency records are deleted.
	IdempotencySweepEvery time.Duration
}

type AuthConfig struct {
	// Mode is "jwt" (default) or "dev".
	Mode string

	DevSubject string
	DevIssuer  string

	// JWT is only populated in jwt mode.
	JWT JWTConfig
}

// JWTConfig configures JWT verification against a JWKS endpoint.
type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string

	ClockSkew              time.Duration
	JWKSRefreshInterval    time.Duration
	JWKSMinRefreshInterval time.Duration

	HTTPTimeout time.Duration
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
}

type LiveConfig struct {
	// KeepAlive is the interval between SSE comment pings.
	KeepAlive time.Duration
	// Buffer is the per-subscriber notification buffer.
	Buffer int
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads .env (if present) and then the process environment.
// Variables already set in the environment win over .env values.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var errs []error
	cfg := Config{
		Server: ServerConfig{
			Port:              getenv("PORT", "8080"),
			ReadHeaderTimeout: durationEnv("SERVER_READ_HEADER_TIMEOUT", 5*time.Second, &errs),
			ShutdownTimeout:   durationEnv("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second, &errs),
		},
		Storage: StorageConfig{
			Backend:               strings.ToLower(getenv("STORAGE_BACKEND", "memory")),
			DatabaseURL:           os.Getenv("DATABASE_URL"),
			MaxConns:              int32(intEnv("DB_MAX_CONNS", 10, &errs)),
			MinConns:              int32(intEnv("DB_MIN_CONNS", 0, &errs)),
			IdempotencyTTL:        durationEnv("IDEMPOTENCY_TTL", 24*time.Hour, &errs),
			IdempotencySweepEvery: durationEnv("IDEMPOTENCY_SWEEP_INTERVAL", 10*time.Minute, &errs),
		},
		Auth: AuthConfig{
			Mode:       strings.ToLower(getenv("AUTH_MODE", "jwt")),
			DevSubject: getenv("DEV_SUBJECT", "dev|local"),
			DevIssuer:  getenv("DEV_ISSUER", "dev"),
		},
		CORS: CORSConfig{
			AllowedOrigins:   listEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
			AllowCredentials: boolEnv("CORS_ALLOW_CREDENTIALS", false, &errs),
		},
		Live: LiveConfig{
			KeepAlive: durationEnv("LIVE_KEEPALIVE", 25*time.Second, &errs),
			Buffer:    intEnv("LIVE_BUFFER", 16, &errs),
		},
		Log: LogConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "json"),
		},
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}

	switch cfg.Storage.Backend {
	case "memory":
	case "postgres":
		if cfg.Storage.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND=postgres")
		}
	default:
		return Config{}, fmt.Errorf("STORAGE_BACKEND must be memory or postgres, got %q", cfg.Storage.Backend)
	}

	switch cfg.Auth.Mode {
	case "dev":
	case "jwt":
		jwtCfg, err := LoadJWTConfigFromEnv()
		if err != nil {
			return Config{}, fmt.Errorf("invalid auth config: %w", err)
		}
		cfg.Auth.JWT = jwtCfg
	default:
		return Config{}, fmt.Errorf("AUTH_MODE must be jwt or dev, got %q", cfg.Auth.Mode)
	}

	return cfg, nil
}

func LoadJWTConfigFromEnv() (JWTConfig, error) {
	issuer := os.Getenv("JWT_ISSUER")
	audience := os.Getenv("JWT_AUDIENCE")
	jwksURL := os.Getenv("JWT_JWKS_URL")
	if issuer == "" || audience == "" || jwksURL == "" {
		return JWTConfig{}, fmt.Errorf("missing required env vars: JWT_ISSUER, JWT_AUDIENCE, JWT_JWKS_URL")
	}

	var errs []error
	cfg := JWTConfig{
		Issuer:    issuer,
		Audience:  audience,
		JWKSURL:   jwksURL,
		ClockSkew: durationEnv("JWT_CLOCK_SKEW", 30*time.Second, &errs),
		// Periodic refresh picks up rotation even while an old key is still cached.
		JWKSRefreshInterval: durationEnv("JWT_JWKS_REFRESH_INTERVAL", 5*time.Minute, &errs),
		// Lower bound between refreshes triggered by unknown kids.
		JWKSMinRefreshInterval: durationEnv("JWT_JWKS_MIN_REFRESH_INTERVAL", 10*time.Second, &errs),
		HTTPTimeout:            durationEnv("JWT_HTTP_TIMEOUT", 5*time.Second, &errs),
	}
	if err := errors.Join(errs...); err != nil {
		return JWTConfig{}, err
	}
	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func durationEnv(k string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a duration (e.g. %s): %w", k, def, err))
		return def
	}
	if d < 0 {
		*errs = append(*errs, fmt.Errorf("%s must not be negative", k))
		return def
	}
	return d
}

func intEnv(k string, def int, errs *[]error) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		*errs = append(*errs, fmt.Errorf("%s must be a non-negative integer, got %q", k, v))
		return def
	}
	return n
}

func boolEnv(k string, def bool, errs *[]error) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a boolean, got %q", k, v))
		return def
	}
	return b
}

// listEnv splits a comma-separated value, dropping blanks.
func listEnv(k string, def []string) []string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
