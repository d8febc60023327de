package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// FailureMode controls what the admission limiter does when its shared
// backing store is unreachable.
type FailureMode string

const (
	FailOpen   FailureMode = "fail_open"
	FailClosed FailureMode = "fail_closed"
	FailLocal  FailureMode = "fail_local"
)

type Config struct {
	Env      string
	HTTPPort string

	DatabaseURL string

	JWTIssuer          string
	JWTAudience        string
	JWTSecret          string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	RefreshTokenPepper string
	BcryptCost         int

	CookieDomain       string
	CookieSecure       bool
	CookieSameSite     string
	CORSAllowedOrigins []string

	RedisAddr     string
	RedisPassword string

	LoginRateLimit           int
	LoginRateWindow          time.Duration
	RefreshRateLimit         int
	RefreshRateWindow        time.Duration
	APIRateLimit             int
	APIRateWindow            time.Duration
	RateLimitFailureMode     FailureMode
	RateLimitProbeBypass     bool
	RateLimitTrustedCIDRs    []string
	RateLimitTrustedSubjects []string

	TokenCleanupInterval time.Duration

	BootstrapAdminEmail        string
	BootstrapAdminPasswordHash string
	BootstrapAdminName         string

	LogLevel string

	OTELTracingEnabled       bool
	OTELExporterOTLPEndpoint string
	OTELExporterOTLPInsecure bool
	OTELServiceName          string
	OTELEnvironment          string
	OTELTraceSamplingRatio   float64
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:                        getEnv("APP_ENV", "development"),
		HTTPPort:                   getEnv("HTTP_PORT", "8080"),
		DatabaseURL:                os.Getenv("DATABASE_URL"),
		JWTIssuer:                  getEnv("JWT_ISSUER", "taskhub-api"),
		JWTAudience:                getEnv("JWT_AUDIENCE", "taskhub-web"),
		JWTSecret:                  os.Getenv("JWT_SECRET_KEY"),
		RefreshTokenPepper:         os.Getenv("REFRESH_TOKEN_PEPPER"),
		BcryptCost:                 getEnvInt("BCRYPT_COST", 12),
		CookieDomain:               os.Getenv("COOKIE_DOMAIN"),
		CookieSecure:               getEnvBool("COOKIE_SECURE", true),
		CookieSameSite:             strings.ToLower(getEnv("COOKIE_SAMESITE", "lax")),
		CORSAllowedOrigins:         splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		RedisAddr:                  os.Getenv("REDIS_ADDR"),
		RedisPassword:              os.Getenv("REDIS_PASSWORD"),
		LoginRateLimit:             getEnvInt("LOGIN_RATE_LIMIT", 10),
		RefreshRateLimit:           getEnvInt("REFRESH_RATE_LIMIT", 30),
		APIRateLimit:               getEnvInt("API_RATE_LIMIT", 120),
		RateLimitFailureMode:       FailureMode(strings.ToLower(getEnv("RATE_LIMIT_FAILURE_MODE", string(FailLocal)))),
		RateLimitProbeBypass:       getEnvBool("RATE_LIMIT_PROBE_BYPASS", true),
		RateLimitTrustedCIDRs:      splitCSV(os.Getenv("RATE_LIMIT_TRUSTED_CIDRS")),
		RateLimitTrustedSubjects:   splitCSV(os.Getenv("RATE_LIMIT_TRUSTED_SUBJECTS")),
		BootstrapAdminEmail:        strings.TrimSpace(strings.ToLower(os.Getenv("BOOTSTRAP_ADMIN_EMAIL"))),
		BootstrapAdminPasswordHash: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD_HASH"),
		BootstrapAdminName:         getEnv("BOOTSTRAP_ADMIN_NAME", "Administrator"),
		LogLevel:                   strings.ToLower(getEnv("LOG_LEVEL", "info")),
		OTELTracingEnabled:         getEnvBool("OTEL_TRACING_ENABLED", false),
		OTELExporterOTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		OTELExporterOTLPInsecure:   getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELServiceName:            getEnv("OTEL_SERVICE_NAME", "taskhub-api"),
		OTELEnvironment:            getEnv("OTEL_ENVIRONMENT", "development"),
		OTELTraceSamplingRatio:     getEnvFloat("OTEL_TRACE_SAMPLING_RATIO", 1.0),
	}

	var err error
	if cfg.AccessTokenTTL, err = parseDurationEnv("ACCESS_TOKEN_TTL", "15m"); err != nil {
		return nil, err
	}
	if cfg.RefreshTokenTTL, err = parseDurationEnv("REFRESH_TOKEN_TTL", "168h"); err != nil {
		return nil, err
	}
	if cfg.LoginRateWindow, err = parseDurationEnv("LOGIN_RATE_WINDOW", "1m"); err != nil {
		return nil, err
	}
	if cfg.RefreshRateWindow, err = parseDurationEnv("REFRESH_RATE_WINDOW", "1m"); err != nil {
		return nil, err
	}
	if cfg.APIRateWindow, err = parseDurationEnv("API_RATE_WINDOW", "1m"); err != nil {
		return nil, err
	}
	if cfg.TokenCleanupInterval, err = parseDurationEnv("TOKEN_CLEANUP_INTERVAL", "1h"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if len(c.JWTSecret) < 32 {
		errs = append(errs, "JWT_SECRET_KEY must be at least 32 chars")
	}
	if len(c.RefreshTokenPepper) < 16 {
		errs = append(errs, "REFRESH_TOKEN_PEPPER must be at least 16 chars")
	}
	if c.AccessTokenTTL <= 0 || c.AccessTokenTTL > 24*time.Hour {
		errs = append(errs, "ACCESS_TOKEN_TTL must be between 1s and 24h")
	}
	if c.RefreshTokenTTL <= 0 || c.RefreshTokenTTL > 30*24*time.Hour {
		errs = append(errs, "REFRESH_TOKEN_TTL must be between 1s and 30d")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Sprintf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.LoginRateLimit <= 0 {
		errs = append(errs, "LOGIN_RATE_LIMIT must be > 0")
	}
	if c.RefreshRateLimit <= 0 {
		errs = append(errs, "REFRESH_RATE_LIMIT must be > 0")
	}
	if c.APIRateLimit <= 0 {
		errs = append(errs, "API_RATE_LIMIT must be > 0")
	}
	switch c.RateLimitFailureMode {
	case FailOpen, FailClosed, FailLocal:
	default:
		errs = append(errs, "RATE_LIMIT_FAILURE_MODE must be fail_open, fail_closed, or fail_local")
	}
	if c.BootstrapAdminEmail != "" && c.BootstrapAdminPasswordHash == "" {
		errs = append(errs, "BOOTSTRAP_ADMIN_PASSWORD_HASH is required when BOOTSTRAP_ADMIN_EMAIL is set")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func parseDurationEnv(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, def))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trim := strings.TrimSpace(p)
		if trim != "" {
			out = append(out, trim)
		}
	}
	return out
}
