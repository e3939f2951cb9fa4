package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitops/gatekeeper/internal/auth"
	"github.com/transitops/gatekeeper/internal/authz"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Defaults carry no secret; that comes from the environment.
	cfg.Auth.HMACSecret = []byte("test-secret")

	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.True(t, cfg.RateLimit.FailOpen)
	assert.NotEmpty(t, cfg.Rules)
}

func TestDefaultRules_Compile(t *testing.T) {
	// Every built-in rule must compile into a matcher.
	matcher, err := authz.NewMatcher(DefaultRules())
	require.NoError(t, err)

	// The narrow position rule precedes the broad bus-write rule.
	result := matcher.Match("PUT", "/buses/b1/position", auth.RoleOperator)
	require.True(t, result.Matched)
	assert.Equal(t, "report bus position", result.Rule.Description)
	assert.True(t, result.Allowed)

	// Admins do not hold the position rule's only role.
	result = matcher.Match("PUT", "/buses/b1/position", auth.RoleAdmin)
	require.True(t, result.Matched)
	assert.False(t, result.Allowed)

	// Unlisted endpoints stay deny-by-default.
	result = matcher.Match("PATCH", "/routes/r1", auth.RoleAdmin)
	assert.False(t, result.Matched)
}

func TestLoad_File(t *testing.T) {
	t.Setenv(EnvHMACSecret, "env-secret")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
server:
  listenAddr: ":9090"
  readTimeout: 5s
log:
  level: debug
rateLimit:
  failOpen: false
  tiers:
    PUBLIC:
      requests: 10
      window: 30s
      dailyQuota: 100
    OPERATOR:
      requests: 100
      window: 30s
    ADMIN:
      requests: 200
      window: 30s
redis:
  address: "redis:6379"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.RateLimit.FailOpen)
	assert.Equal(t, 10, cfg.RateLimit.Tiers["PUBLIC"].Requests)
	assert.Equal(t, "redis:6379", cfg.Redis.Address)
	assert.Equal(t, []byte("env-secret"), cfg.Auth.HMACSecret)
}

func TestLoad_Tracing(t *testing.T) {
	t.Setenv(EnvHMACSecret, "env-secret")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
tracing:
  enabled: true
  serviceName: gatekeeper-test
  otlpEndpoint: "collector:4317"
  samplingRate: 0.25
redis:
  address: "redis:6379"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "gatekeeper-test", cfg.Tracing.ServiceName)
	assert.Equal(t, "collector:4317", cfg.Tracing.OTLPEndpoint)
	assert.Equal(t, 0.25, cfg.Tracing.SamplingRate)

	// The endpoint can be overridden from the environment.
	t.Setenv(EnvOTLPEndpoint, "other:4317")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "other:4317", cfg.Tracing.OTLPEndpoint)

	// Defaults leave tracing off.
	assert.False(t, Default().Tracing.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvHMACSecret, "env-secret")
	t.Setenv(EnvListenAddr, ":7070")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvRedisAddr, "other:6379")
	t.Setenv(EnvRedisDB, "3")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.ListenAddr)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "other:6379", cfg.Redis.Address)
	assert.Equal(t, 3, cfg.Redis.DB)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv(EnvHMACSecret, "env-secret")

	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)

	t.Setenv(EnvRedisDB, "not-a-number")
	_, err = Load("")
	require.Error(t, err)
}

func TestLoad_MissingSecret(t *testing.T) {
	// Without a secret the HS256 validator config cannot validate.
	t.Setenv(EnvHMACSecret, "")

	_, err := Load("")
	require.Error(t, err)
}

func TestConfig_ValidateRules(t *testing.T) {
	cfg := Default()
	cfg.Auth.HMACSecret = []byte("test-secret")
	cfg.Rules = []authz.Rule{{Method: "GET"}}

	require.Error(t, cfg.Validate())

	cfg.Rules = nil
	require.Error(t, cfg.Validate())
}
