package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/edvin/panel/internal/crypto"
)

// LetsEncryptURL is the production ACME directory.
const LetsEncryptURL = "https://acme-v02.api.letsencrypt.org/directory"

type Config struct {
	ServiceName    string
	HTTPListenAddr string
	// MetricsListenAddr starts a separate /metrics listener when set.
	MetricsListenAddr string
	LogLevel          string
	// DatabaseURL selects the Postgres store. Empty keeps state in memory.
	DatabaseURL string
	// SecretKey is a hex AES-256 key sealing private keys in the database.
	SecretKey string
	// DockerHost overrides DOCKER_HOST for the engine client.
	DockerHost  string
	CatalogFile string

	ACMEDirectoryURL string
	ACMEEmail        string
	// ACMEWebroot is served by the host web server; http-01 tokens are
	// written below it.
	ACMEWebroot   string
	CertDir       string
	RenewInterval time.Duration

	WorkerPoolSize    int
	ReconcileInterval time.Duration
	CronWorkers       int

	APIToken    string
	CORSOrigins []string
	// FirewallApply pushes rule changes to ufw.
	FirewallApply bool
	// ConfigFiles backs service config options by the files on disk.
	ConfigFiles bool

	TLSCert     string
	TLSKey      string
	TLSClientCA string
}

func Load() (*Config, error) {
	var errs []error
	cfg := &Config{
		ServiceName:       getEnv("SERVICE_NAME", "panel-api"),
		HTTPListenAddr:    getEnv("HTTP_LISTEN_ADDR", ":8090"),
		MetricsListenAddr: getEnv("METRICS_LISTEN_ADDR", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		SecretKey:         getEnv("SECRET_KEY", ""),
		DockerHost:        getEnv("DOCKER_HOST", ""),
		CatalogFile:       getEnv("CATALOG_FILE", ""),
		ACMEDirectoryURL:  getEnv("ACME_DIRECTORY_URL", LetsEncryptURL),
		ACMEEmail:         getEnv("ACME_EMAIL", ""),
		ACMEWebroot:       getEnv("ACME_WEBROOT", "/var/www/html"),
		CertDir:           getEnv("CERT_DIR", "/etc/panel/ssl"),
		RenewInterval:     getDuration("CERT_RENEW_INTERVAL", 24*time.Hour, &errs),
		WorkerPoolSize:    getInt("WORKER_POOL_SIZE", 4, &errs),
		ReconcileInterval: getDuration("RECONCILE_INTERVAL", 10*time.Second, &errs),
		CronWorkers:       getInt("CRON_WORKERS", 4, &errs),
		APIToken:          getEnv("API_TOKEN", ""),
		CORSOrigins:       splitList(getEnv("CORS_ORIGINS", "")),
		FirewallApply:     getBool("FIREWALL_APPLY", false, &errs),
		ConfigFiles:       getBool("SERVICE_CONFIG_FILES", true, &errs),
		TLSCert:           getEnv("HTTP_TLS_CERT", ""),
		TLSKey:            getEnv("HTTP_TLS_KEY", ""),
		TLSClientCA:       getEnv("HTTP_TLS_CLIENT_CA", ""),
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate checks the settings the API server needs before it starts.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTPListenAddr == "" {
		errs = append(errs, errors.New("HTTP_LISTEN_ADDR is required"))
	}
	if c.MetricsListenAddr != "" && c.MetricsListenAddr == c.HTTPListenAddr {
		errs = append(errs, errors.New("METRICS_LISTEN_ADDR must differ from HTTP_LISTEN_ADDR"))
	}
	if c.SecretKey != "" {
		if _, err := crypto.ParseKey(c.SecretKey); err != nil {
			errs = append(errs, fmt.Errorf("SECRET_KEY: %w", err))
		}
	}
	if c.ACMEDirectoryURL == "" {
		errs = append(errs, errors.New("ACME_DIRECTORY_URL is required"))
	}
	if c.CertDir == "" {
		errs = append(errs, errors.New("CERT_DIR is required"))
	}
	if c.WorkerPoolSize < 1 {
		errs = append(errs, errors.New("WORKER_POOL_SIZE must be at least 1"))
	}
	if c.CronWorkers < 1 {
		errs = append(errs, errors.New("CRON_WORKERS must be at least 1"))
	}
	if c.ReconcileInterval < time.Second {
		errs = append(errs, errors.New("RECONCILE_INTERVAL must be at least 1s"))
	}
	if c.RenewInterval < time.Minute {
		errs = append(errs, errors.New("CERT_RENEW_INTERVAL must be at least 1m"))
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		errs = append(errs, errors.New("HTTP_TLS_CERT and HTTP_TLS_KEY must both be set"))
	}
	if c.TLSClientCA != "" && c.TLSCert == "" {
		errs = append(errs, errors.New("HTTP_TLS_CLIENT_CA requires HTTP_TLS_CERT"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func getBool(key string, fallback bool, errs *[]error) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
