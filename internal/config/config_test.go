package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"DATABASE_URL", "HTTP_LISTEN_ADDR", "LOG_LEVEL", "WORKER_POOL_SIZE",
		"RECONCILE_INTERVAL", "CRON_WORKERS", "ACME_DIRECTORY_URL", "CORS_ORIGINS", "FIREWALL_APPLY", "SERVICE_CONFIG_FILES"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.HTTPListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 4, cfg.WorkerPoolSize)
	assert.Equal(t, 4, cfg.CronWorkers)
	assert.Equal(t, 10*time.Second, cfg.ReconcileInterval)
	assert.Equal(t, 24*time.Hour, cfg.RenewInterval)
	assert.Equal(t, LetsEncryptURL, cfg.ACMEDirectoryURL)
	assert.Nil(t, cfg.CORSOrigins)
	assert.False(t, cfg.FirewallApply)
	assert.True(t, cfg.ConfigFiles)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_AllEnvVars(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://panel:5432/panel")
	t.Setenv("HTTP_LISTEN_ADDR", ":7071")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("METRICS_LISTEN_ADDR", ":9100")
	t.Setenv("WORKER_POOL_SIZE", "8")
	t.Setenv("RECONCILE_INTERVAL", "30s")
	t.Setenv("CRON_WORKERS", "2")
	t.Setenv("ACME_EMAIL", "ops@example.com")
	t.Setenv("ACME_WEBROOT", "/srv/acme")
	t.Setenv("API_TOKEN", "s3cret")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com,")
	t.Setenv("FIREWALL_APPLY", "true")
	t.Setenv("SERVICE_CONFIG_FILES", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://panel:5432/panel", cfg.DatabaseURL)
	assert.Equal(t, ":7071", cfg.HTTPListenAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9100", cfg.MetricsListenAddr)
	assert.Equal(t, 8, cfg.WorkerPoolSize)
	assert.Equal(t, 30*time.Second, cfg.ReconcileInterval)
	assert.Equal(t, 2, cfg.CronWorkers)
	assert.Equal(t, "ops@example.com", cfg.ACMEEmail)
	assert.Equal(t, "/srv/acme", cfg.ACMEWebroot)
	assert.Equal(t, "s3cret", cfg.APIToken)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
	assert.True(t, cfg.FirewallApply)
	assert.False(t, cfg.ConfigFiles)
}

func TestLoad_MalformedValues(t *testing.T) {
	t.Setenv("WORKER_POOL_SIZE", "many")
	t.Setenv("RECONCILE_INTERVAL", "10")
	t.Setenv("FIREWALL_APPLY", "yes please")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WORKER_POOL_SIZE")
	assert.Contains(t, err.Error(), "RECONCILE_INTERVAL")
	assert.Contains(t, err.Error(), "FIREWALL_APPLY")
}

func TestValidate_MissingFields(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP_LISTEN_ADDR")
	assert.Contains(t, err.Error(), "ACME_DIRECTORY_URL")
	assert.Contains(t, err.Error(), "CERT_DIR")
	assert.Contains(t, err.Error(), "WORKER_POOL_SIZE")
	assert.Contains(t, err.Error(), "RECONCILE_INTERVAL")
}

func TestValidate_TLS_MismatchedCertKey(t *testing.T) {
	cfg := validConfig()
	cfg.TLSCert = "/path/to/cert.pem"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP_TLS_CERT and HTTP_TLS_KEY must both be set")
}

func TestValidate_AllPresent(t *testing.T) {
	cfg := validConfig()
	cfg.TLSCert = "/path/to/cert.pem"
	cfg.TLSKey = "/path/to/key.pem"
	assert.NoError(t, cfg.Validate())
}

func validConfig() *Config {
	return &Config{
		HTTPListenAddr:    ":8090",
		ACMEDirectoryURL:  LetsEncryptURL,
		CertDir:           "/etc/panel/ssl",
		WorkerPoolSize:    4,
		CronWorkers:       4,
		ReconcileInterval: 10 * time.Second,
		RenewInterval:     24 * time.Hour,
	}
}

func TestValidate_MetricsAddrCollision(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	cfg.MetricsListenAddr = cfg.HTTPListenAddr

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "METRICS_LISTEN_ADDR")
}

func TestValidate_SecretKey(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.SecretKey = strings.Repeat("ab", 32)
	assert.NoError(t, cfg.Validate())

	cfg.SecretKey = "abcd"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SECRET_KEY")
}
