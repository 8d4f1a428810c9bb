package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Limits   LimitsConfig   `yaml:"limits"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Notify   NotifyConfig   `yaml:"notify"`
}

type ServerConfig struct {
	Addr         string     `yaml:"addr"`
	Cors         CorsConfig `yaml:"cors"`
	APIKey       string     `yaml:"apiKey"`
	APIKeyHeader string     `yaml:"apiKeyHeader"`
}

type CorsConfig struct {
	AllowOrigins     []string `yaml:"allowOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
}

type StorageConfig struct {
	SQLitePath string `yaml:"sqlitePath"`
}

type LimitsConfig struct {
	// MaxInFlight caps how many registrations run their network steps at
	// the same time. The pool is engine-wide: concurrently running tasks
	// share it rather than getting one each.
	MaxInFlight int     `yaml:"maxInFlight"`
	GlobalQPS   float64 `yaml:"globalQPS"`
	GlobalBurst int     `yaml:"globalBurst"`
}

type UpstreamConfig struct {
	BaseURL        string           `yaml:"baseURL"`
	TimeoutMs      int              `yaml:"timeoutMs"`
	ProbeURL       string           `yaml:"probeURL"`
	ProbeTimeoutMs int              `yaml:"probeTimeoutMs"`
	Retry          UpstreamRetryCfg `yaml:"retry"`
	MailDomain     string           `yaml:"mailDomain"`
}

type UpstreamRetryCfg struct {
	Count     int `yaml:"count"`
	WaitMs    int `yaml:"waitMs"`
	MaxWaitMs int `yaml:"maxWaitMs"`
}

type NotifyConfig struct {
	Enabled  bool   `yaml:"enabled"`
	SMTPHost string `yaml:"smtpHost"`
	SMTPPort int    `yaml:"smtpPort"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

func (c UpstreamConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c UpstreamConfig) ProbeTimeout() time.Duration {
	if c.ProbeTimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ProbeTimeoutMs) * time.Millisecond
}

func (c UpstreamRetryCfg) Wait() time.Duration {
	if c.WaitMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.WaitMs) * time.Millisecond
}

func (c UpstreamRetryCfg) MaxWait() time.Duration {
	if c.MaxWaitMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.MaxWaitMs) * time.Millisecond
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8090"
	}
	if c.Server.APIKeyHeader == "" {
		c.Server.APIKeyHeader = "X-API-Key"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "./data/ethermail_farm.db"
	}
	if c.Limits.MaxInFlight <= 0 {
		c.Limits.MaxInFlight = 10
	}
	if c.Limits.GlobalQPS <= 0 {
		c.Limits.GlobalQPS = 5
	}
	if c.Limits.GlobalBurst <= 0 {
		c.Limits.GlobalBurst = 10
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = "https://ethermail.io/api"
	}
	if c.Upstream.ProbeURL == "" {
		c.Upstream.ProbeURL = "http://ip-api.com/json/"
	}
	if c.Upstream.MailDomain == "" {
		c.Upstream.MailDomain = "ethermail.io"
	}
	if c.Upstream.Retry.Count < 0 {
		c.Upstream.Retry.Count = 0
	}
	if c.Notify.SMTPPort <= 0 {
		c.Notify.SMTPPort = 465
	}
}

func (c Config) validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.APIKey == "" {
		return errors.New("server.apiKey is required")
	}
	if c.Upstream.BaseURL == "" {
		return errors.New("upstream.baseURL is required")
	}
	if c.Notify.Enabled {
		if c.Notify.SMTPHost == "" || c.Notify.From == "" || c.Notify.To == "" {
			return errors.New("notify.smtpHost, notify.from and notify.to are required when notify is enabled")
		}
	}
	return nil
}
