package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OAUTH_AUTHORITY", "https://id.example.com/")
	t.Setenv("SECURE_TOKEN", "s3cret")

	cfg := Load()

	assert.Equal(t, "https://id.example.com/.well-known/jwks.json", cfg.JWKSURL)
	assert.Equal(t, "SecureToken", cfg.AuthDefaultScheme)
	assert.Equal(t, []string{"Bearer", "SecureToken", "UserToken"}, cfg.AuthSchemePrecedence)
	assert.Equal(t, 3*time.Second, cfg.AuthUpstreamTimeout)
	assert.Equal(t, 5, cfg.DefaultWorkers)
	assert.Equal(t, "* * * * *", cfg.RegistrationCron)
	assert.True(t, cfg.ServiceDiscoveryEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWKS_URL", "https://keys.example.com/jwks")
	t.Setenv("OAUTH_AUTHORITY", "https://id.example.com")
	t.Setenv("AUTH_SCHEME_PRECEDENCE", " UserToken , ,Bearer")
	t.Setenv("SERVICE_DISCOVERY_SERVER_ADDRESSES", "http://r1:5000,http://r2:5000")
	t.Setenv("SERVICE_DISCOVERY_ENABLED", "false")
	t.Setenv("JOBS_DEFAULT_WORKERS", "9")
	t.Setenv("AUTH_UPSTREAM_TIMEOUT_MS", "250")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318")
	t.Setenv("DEBUG_DOUBLE_WRITE", "true")

	cfg := Load()

	assert.Equal(t, "https://keys.example.com/jwks", cfg.JWKSURL)
	assert.Equal(t, []string{"UserToken", "Bearer"}, cfg.AuthSchemePrecedence)
	assert.Equal(t, []string{"http://r1:5000", "http://r2:5000"}, cfg.RegistryAddresses)
	assert.False(t, cfg.ServiceDiscoveryEnabled)
	assert.Equal(t, 9, cfg.DefaultWorkers)
	assert.Equal(t, 250*time.Millisecond, cfg.AuthUpstreamTimeout)
	assert.Equal(t, "http://collector:4318", cfg.OTLPEndpoint)
	assert.True(t, cfg.DebugDoubleWrite)
}
