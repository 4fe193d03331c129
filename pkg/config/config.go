package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env           string
	HTTPAddr      string
	BasePublicURL string

	// OAuth bearer validation. JWKSURL defaults to <authority>/.well-known/jwks.json.
	OAuthAuthority string
	OAuthAudience  string
	JWKSURL        string
	ClockSkew      time.Duration

	// Static shared secret accepted by the SecureToken scheme.
	SecureToken string

	// Scheme selection. The default scheme is tried first, then the precedence list.
	AuthDefaultScheme    string
	AuthSchemePrecedence []string
	AuthUpstreamTimeout  time.Duration
	UserTokenCacheTTL    time.Duration

	PolicyFile string

	// Redis & Postgres
	RedisURL    string
	DatabaseURL string

	// Service discovery (self-registration)
	ServiceDiscoveryEnabled bool
	RegistryAddresses       []string
	RegistrySecureToken     string
	ServiceID               string
	ServiceType             string
	ServiceAddress          string
	RegistrationCron        string

	// OTLP trace export; empty disables tracing.
	OTLPEndpoint     string
	DebugDoubleWrite bool

	// Background jobs
	DefaultWorkers      int
	JobRetention        time.Duration
	DocumentsServiceURL string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:                     env("GATEHOUSE_ENV", "dev"),
		HTTPAddr:                env("GATEHOUSE_HTTP_ADDR", ":8080"),
		BasePublicURL:           env("BASE_PUBLIC_URL", "http://localhost:8080"),
		OAuthAuthority:          env("OAUTH_AUTHORITY", ""),
		OAuthAudience:           env("OAUTH_AUDIENCE", ""),
		JWKSURL:                 env("JWKS_URL", ""),
		ClockSkew:               envDur("CLOCK_SKEW_SEC", 60) * time.Second,
		SecureToken:             env("SECURE_TOKEN", ""),
		AuthDefaultScheme:       env("AUTH_DEFAULT_SCHEME", "SecureToken"),
		AuthSchemePrecedence:    envList("AUTH_SCHEME_PRECEDENCE", []string{"Bearer", "SecureToken", "UserToken"}),
		AuthUpstreamTimeout:     envDur("AUTH_UPSTREAM_TIMEOUT_MS", 3000) * time.Millisecond,
		UserTokenCacheTTL:       envDur("USER_TOKEN_CACHE_TTL_SEC", 60) * time.Second,
		PolicyFile:              env("POLICY_FILE", ""),
		RedisURL:                env("REDIS_URL", ""),
		DatabaseURL:             env("DATABASE_URL", ""),
		ServiceDiscoveryEnabled: envBool("SERVICE_DISCOVERY_ENABLED", true),
		RegistryAddresses:       envList("SERVICE_DISCOVERY_SERVER_ADDRESSES", nil),
		RegistrySecureToken:     env("SERVICE_DISCOVERY_SERVER_SECURE_TOKEN", ""),
		ServiceID:               env("SERVICE_ID", "gateway"),
		ServiceType:             env("SERVICE_TYPE", "gateway"),
		ServiceAddress:          env("SERVICE_ADDRESS", "http://localhost:8080"),
		RegistrationCron:        env("SERVICE_REGISTRATION_CRON", "* * * * *"),
		OTLPEndpoint:            firstEnv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"),
		DebugDoubleWrite:        envBool("DEBUG_DOUBLE_WRITE", false),
		DefaultWorkers:          envInt("JOBS_DEFAULT_WORKERS", 5),
		JobRetention:            envDur("JOB_RETENTION_SEC", 24*60*60) * time.Second,
		DocumentsServiceURL:     env("DOCUMENTS_SERVICE_URL", "http://localhost:8081"),
	}
	if cfg.JWKSURL == "" && cfg.OAuthAuthority != "" {
		cfg.JWKSURL = strings.TrimRight(cfg.OAuthAuthority, "/") + "/.well-known/jwks.json"
	}
	if cfg.SecureToken == "" {
		log.Println("[WARN] SECURE_TOKEN not set; SecureToken scheme will reject every token")
	}
	if cfg.ServiceDiscoveryEnabled && len(cfg.RegistryAddresses) == 0 {
		log.Println("[WARN] SERVICE_DISCOVERY_SERVER_ADDRESSES not set; registration ticks will fail until configured")
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
func envBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		b, _ := strconv.ParseBool(v)
		return b
	}
	return def
}
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return time.Duration(i)
	}
	return time.Duration(def)
}

// envList splits a comma separated value, dropping blanks.
func envList(k string, def []string) []string {
	v := os.Getenv(k)
	if strings.TrimSpace(v) == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
