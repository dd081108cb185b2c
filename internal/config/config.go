// Package config loads the daemon configuration from TOML with EXTBOX_
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/loykin/extbox/internal/access"
	"github.com/loykin/extbox/internal/logger"
)

// EnvPrefix prefixes environment overrides, e.g. EXTBOX_STORE_DSN.
const EnvPrefix = "EXTBOX"

// Config represents the top-level TOML structure.
type Config struct {
	Store     StoreConfig     `toml:"store" mapstructure:"store"`
	History   HistoryConfig   `toml:"history" mapstructure:"history"`
	Scheduler SchedulerConfig `toml:"scheduler" mapstructure:"scheduler"`
	Server    ServerConfig    `toml:"server" mapstructure:"server"`
	Metrics   MetricsConfig   `toml:"metrics" mapstructure:"metrics"`
	Log       LogConfig       `toml:"log" mapstructure:"log"`
	Workers   WorkersConfig   `toml:"workers" mapstructure:"workers"`
	Notifier  NotifierConfig  `toml:"notifier" mapstructure:"notifier"`
	Summary   SummaryConfig   `toml:"summary" mapstructure:"summary"`
	Access    access.Config   `toml:"access" mapstructure:"access"`
	// Defaults seeds preferences that are not yet stored.
	Defaults map[string]any `toml:"defaults" mapstructure:"defaults"`
}

type StoreConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	DSN     string `toml:"dsn" mapstructure:"dsn"`
	// ExtraDSNs receive the same events as DSN.
	ExtraDSNs     []string      `toml:"extra_dsns" mapstructure:"extra_dsns"`
	Retention     time.Duration `toml:"retention" mapstructure:"retention"`
	PurgeSchedule string        `toml:"purge_schedule" mapstructure:"purge_schedule"`
	Snapshots     bool          `toml:"snapshots" mapstructure:"snapshots"`
}

// DSNs lists every configured sink.
func (h HistoryConfig) DSNs() []string {
	var out []string
	if h.DSN != "" {
		out = append(out, h.DSN)
	}
	for _, d := range h.ExtraDSNs {
		if strings.TrimSpace(d) != "" {
			out = append(out, d)
		}
	}
	return out
}

type SchedulerConfig struct {
	MinDelay  time.Duration `toml:"min_delay" mapstructure:"min_delay"`
	MaxDelay  time.Duration `toml:"max_delay" mapstructure:"max_delay"`
	IdleDelay time.Duration `toml:"idle_delay" mapstructure:"idle_delay"`
}

type ServerConfig struct {
	Enabled       bool       `toml:"enabled" mapstructure:"enabled"`
	Listen        string     `toml:"listen" mapstructure:"listen"`
	BasePath      string     `toml:"base_path" mapstructure:"base_path"`
	PidFile       string     `toml:"pidfile" mapstructure:"pidfile"`
	LogFile       string     `toml:"logfile" mapstructure:"logfile"`
	TLS           *TLSConfig `toml:"tls" mapstructure:"tls"`
	TLSMinVersion string     `toml:"tls_min_version" mapstructure:"tls_min_version"`
	TLSMaxVersion string     `toml:"tls_max_version" mapstructure:"tls_max_version"`
}

type TLSConfig struct {
	Enabled      bool        `toml:"enabled" mapstructure:"enabled"`
	CertFile     string      `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string      `toml:"key_file" mapstructure:"key_file"`
	Dir          string      `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool        `toml:"auto_generate" mapstructure:"auto_generate"`
	AutoGen      *AutoGenTLS `toml:"auto_gen" mapstructure:"auto_gen"`
}

type AutoGenTLS struct {
	CommonName   string   `toml:"common_name" mapstructure:"common_name"`
	Organization string   `toml:"organization" mapstructure:"organization"`
	DNSNames     []string `toml:"dns_names" mapstructure:"dns_names"`
	IPAddresses  []string `toml:"ip_addresses" mapstructure:"ip_addresses"`
	ValidDays    int      `toml:"valid_days" mapstructure:"valid_days"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// Logger converts to the logger package's configuration.
func (l LogConfig) Logger() logger.Config {
	return logger.Config{
		Level:  l.Level,
		Format: l.Format,
		File: logger.FileConfig{
			Path:       l.File,
			MaxSizeMB:  l.MaxSizeMB,
			MaxBackups: l.MaxBackups,
			MaxAgeDays: l.MaxAgeDays,
			Compress:   l.Compress,
		},
	}
}

type WorkersConfig struct {
	Size int `toml:"size" mapstructure:"size"`
}

type NotifierConfig struct {
	WebhookURL string        `toml:"webhook_url" mapstructure:"webhook_url"`
	Timeout    time.Duration `toml:"timeout" mapstructure:"timeout"`
	// Every and Burst shape the alert token bucket.
	Every time.Duration `toml:"every" mapstructure:"every"`
	Burst int           `toml:"burst" mapstructure:"burst"`
}

type SummaryConfig struct {
	Enabled  bool   `toml:"enabled" mapstructure:"enabled"`
	Schedule string `toml:"schedule" mapstructure:"schedule"`
	TimeZone string `toml:"timezone" mapstructure:"timezone"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.dsn", "sqlite://extbox.db")

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.dsn", "")
	v.SetDefault("history.extra_dsns", []string{})
	v.SetDefault("history.retention", 30*24*time.Hour)
	v.SetDefault("history.purge_schedule", "@every 1h")
	v.SetDefault("history.snapshots", true)

	v.SetDefault("scheduler.min_delay", time.Second)
	v.SetDefault("scheduler.max_delay", time.Minute)
	v.SetDefault("scheduler.idle_delay", 5*time.Second)

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.listen", "127.0.0.1:8484")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.pidfile", "")
	v.SetDefault("server.logfile", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9464")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "color")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)

	v.SetDefault("workers.size", 4)

	v.SetDefault("notifier.webhook_url", "")
	v.SetDefault("notifier.timeout", 5*time.Second)
	v.SetDefault("notifier.every", 10*time.Second)
	v.SetDefault("notifier.burst", 5)

	v.SetDefault("summary.enabled", true)
	v.SetDefault("summary.schedule", "0 23 * * *")
	v.SetDefault("summary.timezone", "")

	v.SetDefault("access.sys_root", "/sys")
	v.SetDefault("access.proc_root", "/proc")
	v.SetDefault("access.storage_path", "/")
	v.SetDefault("access.step_sensor", false)
	st := access.DefaultSpeedTest()
	v.SetDefault("access.speedtest.download_urls", st.DownloadURLs)
	v.SetDefault("access.speedtest.upload_url", st.UploadURL)
	v.SetDefault("access.speedtest.ping_addr", st.PingAddr)
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
	}
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load reads path, or only defaults and environment when path is empty.
func Load(path string) (*Config, error) {
	v := newViper(path)
	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return decode(v)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	s := c.Scheduler
	if s.MinDelay <= 0 || s.MaxDelay <= 0 || s.IdleDelay <= 0 {
		errs = append(errs, errors.New("scheduler delays must be positive"))
	} else if s.MinDelay > s.MaxDelay {
		errs = append(errs, fmt.Errorf("scheduler min_delay %s exceeds max_delay %s", s.MinDelay, s.MaxDelay))
	}
	if strings.TrimSpace(c.Store.DSN) == "" {
		errs = append(errs, errors.New("store dsn is required"))
	}
	if c.History.Enabled && len(c.History.DSNs()) == 0 {
		errs = append(errs, errors.New("history enabled but no dsn configured"))
	}
	if c.Server.Enabled && c.Server.Listen == "" {
		errs = append(errs, errors.New("server listen address is required"))
	}
	if t := c.Server.TLS; t != nil && t.Enabled {
		if (t.CertFile == "") != (t.KeyFile == "") {
			errs = append(errs, errors.New("tls cert_file and key_file must be set together"))
		}
		if t.CertFile == "" && t.Dir == "" {
			errs = append(errs, errors.New("tls enabled but neither cert_file nor dir is set"))
		}
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, errors.New("metrics listen address is required"))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Summary.TimeZone != "" {
		if _, err := time.LoadLocation(c.Summary.TimeZone); err != nil {
			errs = append(errs, fmt.Errorf("summary timezone: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Location resolves the summary time zone, local time when unset.
func (s SummaryConfig) Location() *time.Location {
	if s.TimeZone == "" {
		return time.Local
	}
	if loc, err := time.LoadLocation(s.TimeZone); err == nil {
		return loc
	}
	return time.Local
}

// DefaultPrefs renders [defaults] as preference strings.
func (c *Config) DefaultPrefs() map[string]string {
	out := make(map[string]string, len(c.Defaults))
	for k, v := range c.Defaults {
		out[k] = fmt.Sprint(v)
	}
	return out
}

// DefaultKeys lists the [defaults] keys in order.
func (c *Config) DefaultKeys() []string {
	keys := make([]string, 0, len(c.Defaults))
	for k := range c.Defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Watch re-reads path whenever it changes and passes every valid result
// to fn. Invalid edits are logged and skipped.
func Watch(path string, log *slog.Logger, fn func(*Config)) error {
	if path == "" {
		return errors.New("watch requires a config file")
	}
	if log == nil {
		log = slog.Default()
	}
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		c, err := decode(v)
		if err != nil {
			log.Warn("config reload rejected", "path", e.Name, "error", err)
			return
		}
		log.Info("config reloaded", "path", e.Name)
		fn(c)
	})
	v.WatchConfig()
	return nil
}
