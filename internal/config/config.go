package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Platform      PlatformConfig
	ControlPlane  ControlPlaneConfig
	Verification  VerificationConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
	RateLimit     RateLimitConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PlatformConfig describes how the platform serves tenant pages at the edge.
type PlatformConfig struct {
	// BaseDomain is the shared domain tenant subdomains hang off (e.g. "shiplog.dev").
	BaseDomain string
	// EdgeCNAMETarget is the CNAME value custom domains must point at.
	EdgeCNAMETarget string
	// EdgeIPs are the A-record addresses of the platform edge, for apex domains.
	EdgeIPs []string
	// TenantPagePrefix is the internal route prefix public tenant pages are served under.
	TenantPagePrefix string
	// APIBackendOrigin, when set, is the origin API-prefixed requests are proxied to.
	// Empty means the API is served in-process.
	APIBackendOrigin string
	// TokenSecret keys the per-tenant DNS ownership token. Optional; an empty
	// secret falls back to an unkeyed derivation.
	TokenSecret string
}

// ControlPlaneConfig holds credentials for the external hosting control plane.
type ControlPlaneConfig struct {
	APIURL    string
	Token     string
	ProjectID string
	TeamID    string
	Timeout   time.Duration
}

// VerificationConfig holds DNS/TLS probe tuning.
type VerificationConfig struct {
	ProbeTimeout time.Duration
	CheckTimeout time.Duration
	PollInterval time.Duration
}

// AuthConfig holds settings for validating tokens issued by the external auth service.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	ServiceName    string
	ServiceVersion string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout: parseDuration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:  parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "shiplog"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "shiplog"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    parseInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    parseInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: parseDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		Platform: PlatformConfig{
			BaseDomain:       getEnv("PLATFORM_BASE_DOMAIN", "shiplog.dev"),
			EdgeCNAMETarget:  getEnv("PLATFORM_EDGE_CNAME", "edge.shiplog.dev"),
			EdgeIPs:          parseList("PLATFORM_EDGE_IPS", "76.76.21.21"),
			TenantPagePrefix: getEnv("PLATFORM_TENANT_PAGE_PREFIX", "/_sites"),
			APIBackendOrigin: getEnv("PLATFORM_API_BACKEND_ORIGIN", ""),
			TokenSecret:      getEnv("PLATFORM_DOMAIN_TOKEN_SECRET", ""),
		},
		ControlPlane: ControlPlaneConfig{
			APIURL:    getEnv("CONTROL_PLANE_API_URL", "https://api.vercel.com"),
			Token:     getEnv("CONTROL_PLANE_TOKEN", ""),
			ProjectID: getEnv("CONTROL_PLANE_PROJECT_ID", ""),
			TeamID:    getEnv("CONTROL_PLANE_TEAM_ID", ""),
			Timeout:   parseDuration("CONTROL_PLANE_TIMEOUT", "10s"),
		},
		Verification: VerificationConfig{
			ProbeTimeout: parseDuration("VERIFICATION_PROBE_TIMEOUT", "5s"),
			CheckTimeout: parseDuration("VERIFICATION_CHECK_TIMEOUT", "15s"),
			PollInterval: parseDuration("VERIFICATION_POLL_INTERVAL", "30s"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			Issuer:    getEnv("AUTH_JWT_ISSUER", "shiplog-auth"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "shiplog"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: float64(parseInt("RATELIMIT_RPS", 10)),
			Burst:             parseInt("RATELIMIT_BURST", 20),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
// A missing control-plane credential fails here, at startup; the lifecycle
// manager must not be allowed to silently no-op without one.
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.ControlPlane.Token == "" {
		return fmt.Errorf("CONTROL_PLANE_TOKEN is required")
	}
	if c.ControlPlane.ProjectID == "" {
		return fmt.Errorf("CONTROL_PLANE_PROJECT_ID is required")
	}
	if c.Platform.BaseDomain == "" {
		return fmt.Errorf("PLATFORM_BASE_DOMAIN is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		// Fallback to default
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}

func parseList(key string, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
