package config

import "time"

type Config struct {
	PuppetDB PuppetDBConfig `yaml:"puppetdb"`
	Foreman  ForemanConfig  `yaml:"foreman"`
	TLS      TLSConfig      `yaml:"tls"`
	HTTP     HTTPConfig     `yaml:"http"`
	Cleanup  CleanupConfig  `yaml:"cleanup"`
	Journal  JournalConfig  `yaml:"journal"`
	Events   EventsConfig   `yaml:"events"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Daemon   DaemonConfig   `yaml:"daemon"`
}

type PuppetDBConfig struct {
	URL string `yaml:"url"`
}

type ForemanConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	PerPage  int    `yaml:"per_page"`
}

type TLSConfig struct {
	PuppetDir string `yaml:"puppet_dir"`
	Hostname  string `yaml:"hostname"`
	// Verify turns on peer and host name verification for both services. Off by default.
	Verify bool `yaml:"verify"`
}

type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type CleanupConfig struct {
	ContinueOnUnmanageError bool `yaml:"continue_on_unmanage_error"`
}

type JournalConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

type EventsConfig struct {
	NATSURL string        `yaml:"nats_url"`
	// Stream is created or updated at startup to capture every factsync.> subject.
	Stream  string        `yaml:"stream"`
	MaxAge  time.Duration `yaml:"max_age"`
}

type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
}

type ArchiveConfig struct {
	Bucket       string `yaml:"bucket"`
	AgeRecipient string `yaml:"age_recipient"`
}

type DaemonConfig struct {
	Listen   string        `yaml:"listen"`
	Interval time.Duration `yaml:"interval"`
}
