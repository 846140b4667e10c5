package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"factsync/pkg/apiclient"
)

const (
	DefaultPuppetDir = "/var/lib/puppet"
	defaultPerPage   = 10000
	defaultTimeout   = 30 * time.Second
	defaultListen    = ":8080"
	defaultInterval  = 15 * time.Minute
	defaultStream    = "FACTSYNC"
	defaultMaxAge    = 7 * 24 * time.Hour
)

// Load reads the optional YAML file at path, applies defaults and FACTSYNC_* environment
// overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.PuppetDB.URL = getEnv("FACTSYNC_PUPPETDB_URL", cfg.PuppetDB.URL)
	cfg.Foreman.URL = getEnv("FACTSYNC_FOREMAN_URL", cfg.Foreman.URL)
	cfg.Foreman.Username = getEnv("FACTSYNC_FOREMAN_USER", cfg.Foreman.Username)
	cfg.Foreman.Password = getEnv("FACTSYNC_FOREMAN_PASSWORD", cfg.Foreman.Password)
	cfg.Foreman.PerPage = getEnvInt("FACTSYNC_FOREMAN_PER_PAGE", cfg.Foreman.PerPage)

	cfg.TLS.PuppetDir = getEnv("FACTSYNC_PUPPET_DIR", cfg.TLS.PuppetDir)
	cfg.TLS.Hostname = getEnv("HOSTNAME", cfg.TLS.Hostname)
	cfg.TLS.Verify = getEnvBool("FACTSYNC_TLS_VERIFY", cfg.TLS.Verify)

	timeout, err := getEnvDuration("FACTSYNC_HTTP_TIMEOUT", cfg.HTTP.Timeout)
	if err != nil {
		return err
	}
	cfg.HTTP.Timeout = timeout

	cfg.Cleanup.ContinueOnUnmanageError = getEnvBool("FACTSYNC_CONTINUE_ON_UNMANAGE_ERROR", cfg.Cleanup.ContinueOnUnmanageError)
	cfg.Journal.DatabaseURL = getEnv("FACTSYNC_DATABASE_URL", cfg.Journal.DatabaseURL)
	cfg.Events.NATSURL = getEnv("FACTSYNC_NATS_URL", cfg.Events.NATSURL)
	cfg.Events.Stream = getEnv("FACTSYNC_NATS_STREAM", cfg.Events.Stream)
	maxAge, err := getEnvDuration("FACTSYNC_NATS_MAX_AGE", cfg.Events.MaxAge)
	if err != nil {
		return err
	}
	cfg.Events.MaxAge = maxAge
	cfg.Metrics.PushgatewayURL = getEnv("FACTSYNC_PUSHGATEWAY_URL", cfg.Metrics.PushgatewayURL)
	cfg.Archive.Bucket = getEnv("FACTSYNC_ARCHIVE_BUCKET", cfg.Archive.Bucket)
	cfg.Archive.AgeRecipient = getEnv("FACTSYNC_ARCHIVE_AGE_RECIPIENT", cfg.Archive.AgeRecipient)
	cfg.Daemon.Listen = getEnv("FACTSYNC_LISTEN", cfg.Daemon.Listen)

	interval, err := getEnvDuration("FACTSYNC_INTERVAL", cfg.Daemon.Interval)
	if err != nil {
		return err
	}
	cfg.Daemon.Interval = interval
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Foreman.PerPage <= 0 {
		cfg.Foreman.PerPage = defaultPerPage
	}
	if cfg.TLS.PuppetDir == "" {
		cfg.TLS.PuppetDir = DefaultPuppetDir
	}
	if cfg.TLS.Hostname == "" {
		if name, err := os.Hostname(); err == nil {
			cfg.TLS.Hostname = name
		}
	}
	if cfg.HTTP.Timeout <= 0 {
		cfg.HTTP.Timeout = defaultTimeout
	}
	if cfg.Daemon.Listen == "" {
		cfg.Daemon.Listen = defaultListen
	}
	if cfg.Daemon.Interval <= 0 {
		cfg.Daemon.Interval = defaultInterval
	}
	if cfg.Events.Stream == "" {
		cfg.Events.Stream = defaultStream
	}
	if cfg.Events.MaxAge <= 0 {
		cfg.Events.MaxAge = defaultMaxAge
	}
}

// Validate reports the first missing or malformed required setting.
func (c Config) Validate() error {
	if c.PuppetDB.URL == "" {
		return errors.New("puppetdb url is required (FACTSYNC_PUPPETDB_URL)")
	}
	if err := validateURL("puppetdb url", c.PuppetDB.URL); err != nil {
		return err
	}
	if c.Foreman.URL == "" {
		return errors.New("foreman url is required (FACTSYNC_FOREMAN_URL)")
	}
	if err := validateURL("foreman url", c.Foreman.URL); err != nil {
		return err
	}
	if c.Foreman.Username == "" || c.Foreman.Password == "" {
		return errors.New("foreman username and password are required (FACTSYNC_FOREMAN_USER, FACTSYNC_FOREMAN_PASSWORD)")
	}
	if c.UseClientCerts() && c.TLS.Hostname == "" {
		return errors.New("tls hostname is required when puppetdb uses https (HOSTNAME)")
	}
	return nil
}

// UseClientCerts reports whether requests present the local Puppet agent certificate, which
// PuppetDB requires whenever it is served over https.
func (c Config) UseClientCerts() bool {
	parsed, err := url.Parse(c.PuppetDB.URL)
	return err == nil && strings.EqualFold(parsed.Scheme, "https")
}

// ClientOptions converts the TLS and HTTP settings into options for the shared HTTP client.
func (c Config) ClientOptions() apiclient.Options {
	opts := apiclient.Options{
		Timeout: c.HTTP.Timeout,
		Verify:  c.TLS.Verify,
	}
	if c.UseClientCerts() {
		opts.ClientCerts = &apiclient.TLSFiles{
			CAFile:   filepath.Join(c.TLS.PuppetDir, "ssl", "certs", "ca.pem"),
			CertFile: filepath.Join(c.TLS.PuppetDir, "ssl", "certs", c.TLS.Hostname+".pem"),
			KeyFile:  filepath.Join(c.TLS.PuppetDir, "ssl", "private_keys", c.TLS.Hostname+".pem"),
		}
	}
	return opts
}

func validateURL(name, raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	switch parsed.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("%s must use http or https: %s", name, raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s has no host: %s", name, raw)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}
