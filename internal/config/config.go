package config

import (
	"encoding/json"
	"net"
	"os"
	"strings"
	"time"

	"github.com/warent/proxycop/internal/errors"
)

const (
	// ConfigFileName is the default configuration file name.
	ConfigFileName = "proxycop.json"

	// DefaultProxyAddr is the default proxy listen address.
	DefaultProxyAddr = ":8080"

	// DefaultUIAddr is the default listen address of the standalone UI.
	DefaultUIAddr = ":8081"

	// DefaultUIHost is the virtual host that serves the UI through the proxy.
	DefaultUIHost = "proxy.cop"

	// DefaultStorePath is the default buntdb file.
	DefaultStorePath = "data.db"

	// DefaultLiveInterval is the default live status push interval.
	DefaultLiveInterval = time.Second

	// DefaultVisitGrace is how long the requests that make up one page
	// load pass a freshly started cooldown.
	DefaultVisitGrace = 30 * time.Second
)

// DefaultBlacklist is seeded into an empty store.
var DefaultBlacklist = []string{"www.reddit.com", "reddit.com", "www.facebook.com", "facebook.com"}

// DefaultCooldowns maps hosts to cooldown minutes seeded into an empty store.
var DefaultCooldowns = map[string]int{"news.ycombinator.com": 1}

// Config represents the complete proxycop.json configuration.
type Config struct {
	// Proxy contains forward proxy settings.
	Proxy ProxyConfig `json:"proxy"`

	// UI contains web interface settings.
	UI UIConfig `json:"ui"`

	// Store contains persistence settings.
	Store StoreConfig `json:"store"`

	// Seed contains values written to a fresh store.
	Seed SeedConfig `json:"seed"`

	// Log contains logging settings.
	Log LogConfig `json:"log"`

	// Metrics contains Prometheus settings.
	Metrics MetricsConfig `json:"metrics"`

	// Backup contains S3 snapshot settings.
	Backup BackupConfig `json:"backup"`

	configPath string
}

// ProxyConfig contains forward proxy settings.
type ProxyConfig struct {
	// Addr is the proxy listen address.
	Addr string `json:"addr,omitempty"`

	// UIHost is the host name under which the proxy serves the UI.
	UIHost string `json:"uiHost,omitempty"`

	// VisitGrace lets requests through for this long after a visit
	// started a cooldown (e.g. "30s", "0s" to disable).
	VisitGrace string `json:"visitGrace,omitempty"`

	// Verbose enables goproxy's own request logging.
	Verbose bool `json:"verbose,omitempty"`
}

// UIConfig contains web interface settings.
type UIConfig struct {
	// Addr is the listen address of the standalone UI server. Empty
	// disables it; the UI stays reachable through the proxy.
	Addr string `json:"addr,omitempty"`

	// Base is the path prefix of the application routes.
	Base string `json:"base,omitempty"`

	// LiveInterval is how often live status snapshots are pushed (e.g. "1s").
	LiveInterval string `json:"liveInterval,omitempty"`
}

// StoreConfig contains persistence settings.
type StoreConfig struct {
	// Path is the buntdb file, or ":memory:".
	Path string `json:"path,omitempty"`
}

// SeedConfig contains values written to keys that do not exist yet.
type SeedConfig struct {
	// Blacklist is the initial list of forbidden hosts.
	Blacklist []string `json:"blacklist,omitempty"`

	// Cooldowns maps hosts to cooldown minutes.
	Cooldowns map[string]int `json:"cooldowns,omitempty"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Enabled exposes the metrics endpoint.
	Enabled bool `json:"enabled"`

	// Path is the metrics endpoint path.
	Path string `json:"path,omitempty"`

	// Namespace prefixes every metric name.
	Namespace string `json:"namespace,omitempty"`
}

// BackupConfig contains S3 snapshot settings.
type BackupConfig struct {
	// Bucket is the destination bucket.
	Bucket string `json:"bucket,omitempty"`

	// Prefix is prepended to snapshot keys.
	Prefix string `json:"prefix,omitempty"`

	// Region is the AWS region.
	Region string `json:"region,omitempty"`

	// Endpoint overrides the S3 endpoint for S3-compatible stores.
	Endpoint string `json:"endpoint,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	cooldowns := make(map[string]int, len(DefaultCooldowns))
	for host, minutes := range DefaultCooldowns {
		cooldowns[host] = minutes
	}

	return &Config{
		Proxy: ProxyConfig{
			Addr:       DefaultProxyAddr,
			UIHost:     DefaultUIHost,
			VisitGrace: DefaultVisitGrace.String(),
		},
		UI: UIConfig{
			Addr:         DefaultUIAddr,
			LiveInterval: DefaultLiveInterval.String(),
		},
		Store: StoreConfig{
			Path: DefaultStorePath,
		},
		Seed: SeedConfig{
			Blacklist: append([]string(nil), DefaultBlacklist...),
			Cooldowns: cooldowns,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "proxycop",
		},
		Backup: BackupConfig{
			Prefix: "snapshots/",
			Region: "us-east-1",
		},
	}
}

// Load reads the configuration at path and applies environment overrides.
// An empty path, or the default file name when it does not exist, yields
// the defaults.
func Load(path string) (*Config, error) {
	var cfg *Config
	switch {
	case path == "":
		cfg = New()
	case path == ConfigFileName && !fileExists(path):
		cfg = New()
	default:
		var err error
		cfg, err = LoadFile(path)
		if err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CodeConfigLoad).
				WithDetail("No configuration file at %s", path).
				WithSuggestion("Run 'proxycop config init' or omit --config to use defaults").
				Wrap(err)
		}
		return nil, errors.New(errors.CodeConfigLoad).Wrap(err)
	}

	cfg := New()
	// A cooldowns object in the file replaces the defaults instead of
	// merging into them.
	cfg.Seed.Cooldowns = nil
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New(errors.CodeConfigLoad).
			WithDetail("Failed to parse %s: %s", path, err.Error()).
			WithSuggestion("Check that the file is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New(errors.CodeConfigLoad).Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New(errors.CodeConfigLoad).Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for fields a file left empty.
func (c *Config) applyDefaults() {
	if c.Proxy.Addr == "" {
		c.Proxy.Addr = DefaultProxyAddr
	}
	if c.Proxy.UIHost == "" {
		c.Proxy.UIHost = DefaultUIHost
	}
	if c.Proxy.VisitGrace == "" {
		c.Proxy.VisitGrace = DefaultVisitGrace.String()
	}
	if c.UI.LiveInterval == "" {
		c.UI.LiveInterval = DefaultLiveInterval.String()
	}
	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
	if c.Seed.Cooldowns == nil {
		c.Seed.Cooldowns = make(map[string]int, len(DefaultCooldowns))
		for host, minutes := range DefaultCooldowns {
			c.Seed.Cooldowns[host] = minutes
		}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "proxycop"
	}
}

// ApplyEnv overrides deployment settings from PROXYCOP_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	set("PROXYCOP_PROXY_ADDR", &c.Proxy.Addr)
	set("PROXYCOP_UI_ADDR", &c.UI.Addr)
	set("PROXYCOP_UI_HOST", &c.Proxy.UIHost)
	set("PROXYCOP_STORE_PATH", &c.Store.Path)
	set("PROXYCOP_LOG_LEVEL", &c.Log.Level)
	set("PROXYCOP_BACKUP_BUCKET", &c.Backup.Bucket)
	set("PROXYCOP_BACKUP_ENDPOINT", &c.Backup.Endpoint)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) *errors.Error {
		return errors.New(errors.CodeConfigInvalid).WithDetail(format, args...)
	}

	if _, _, err := net.SplitHostPort(c.Proxy.Addr); err != nil {
		return invalid("proxy.addr %q is not a listen address", c.Proxy.Addr).
			WithSuggestion("Use host:port, e.g. :8080").
			Wrap(err)
	}
	if c.UI.Addr != "" {
		if _, _, err := net.SplitHostPort(c.UI.Addr); err != nil {
			return invalid("ui.addr %q is not a listen address", c.UI.Addr).Wrap(err)
		}
	}
	if c.Proxy.UIHost == "" {
		return invalid("proxy.uiHost must not be empty")
	}
	if c.UI.Base != "" && !strings.HasPrefix(c.UI.Base, "/") {
		return invalid("ui.base %q must start with /", c.UI.Base)
	}
	if d, err := time.ParseDuration(c.Proxy.VisitGrace); err != nil || d < 0 {
		return invalid("proxy.visitGrace %q must be a non-negative duration", c.Proxy.VisitGrace)
	}
	if d, err := time.ParseDuration(c.UI.LiveInterval); err != nil || d <= 0 {
		return invalid("ui.liveInterval %q must be a positive duration", c.UI.LiveInterval)
	}
	if c.Store.Path == "" {
		return invalid("store.path must not be empty")
	}
	for host, minutes := range c.Seed.Cooldowns {
		if minutes < 0 {
			return invalid("seed.cooldowns[%q] must not be negative", host)
		}
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return invalid("log.level: %v", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return invalid("log.format %q must be text or json", c.Log.Format)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return invalid("metrics.path %q must start with /", c.Metrics.Path)
	}
	return nil
}

// VisitGrace returns the parsed visit grace period.
func (c *Config) VisitGrace() time.Duration {
	d, err := time.ParseDuration(c.Proxy.VisitGrace)
	if err != nil || d < 0 {
		return DefaultVisitGrace
	}
	return d
}

// LiveInterval returns the parsed live status interval.
func (c *Config) LiveInterval() time.Duration {
	d, err := time.ParseDuration(c.UI.LiveInterval)
	if err != nil || d <= 0 {
		return DefaultLiveInterval
	}
	return d
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
