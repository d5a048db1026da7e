// Package config loads the client configuration from a YAML file overlaid by
// COMMENTHUB_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"commenthub/pkg/logger"
)

// EnvPrefix is prepended to every environment override, e.g. COMMENTHUB_API_BASE_URL
const EnvPrefix = "COMMENTHUB"

// Live reply ordering policies
const (
	SortArrival   = "arrival"
	SortCreatedAt = "created_at"
)

// Config holds all client configuration
type Config struct {
	API     APIConfig     `yaml:"api" mapstructure:"api"`
	WS      WSConfig      `yaml:"ws" mapstructure:"ws"`
	Captcha CaptchaConfig `yaml:"captcha" mapstructure:"captcha"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Live    LiveConfig    `yaml:"live" mapstructure:"live"`
	Log     logger.Config `yaml:"log" mapstructure:"log"`

	path string
}

// APIConfig for the REST service
type APIConfig struct {
	BaseURL   string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RateLimit float64       `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	Burst     int           `yaml:"burst" mapstructure:"burst"`
}

// WSConfig for the live channel
type WSConfig struct {
	Host   string `yaml:"host" mapstructure:"host"` // host[:port], defaults to the API host
	Secure bool   `yaml:"secure" mapstructure:"secure"`
}

// CaptchaConfig
type CaptchaConfig struct {
	SiteKey string `yaml:"site_key" mapstructure:"site_key"`
}

// StoreConfig selects where the session is persisted
type StoreConfig struct {
	Driver    string `yaml:"driver" mapstructure:"driver"` // file, sqlite, redis, memory
	Path      string `yaml:"path" mapstructure:"path"`
	RedisAddr string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisDB   int    `yaml:"redis_db" mapstructure:"redis_db"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
}

// LiveConfig
type LiveConfig struct {
	Sort string `yaml:"sort" mapstructure:"sort"` // arrival or created_at
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 30 * time.Second,
			Burst:   1,
		},
		Store: StoreConfig{
			Driver:    "file",
			Namespace: "commenthub",
		},
		Live: LiveConfig{Sort: SortArrival},
		Log:  logger.Config{Level: "warn", Format: "text", Output: "stderr"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("api.rate_limit", d.API.RateLimit)
	v.SetDefault("api.burst", d.API.Burst)
	v.SetDefault("ws.host", "")
	v.SetDefault("ws.secure", false)
	v.SetDefault("captcha.site_key", "")
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.path", "")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.namespace", d.Store.Namespace)
	v.SetDefault("live.sort", d.Live.Sort)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output", d.Log.Output)
	v.SetDefault("log.time_format", "")
}

// Load reads configPath, or the first config file found in the standard
// locations, applies environment overrides, and validates the result.
// A missing file is not an error when no path was given.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath == "" {
		configPath = findConfigFile()
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.path = configPath

	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}
	return &cfg, nil
}

// resolve validates the loaded values and fills in derived ones
func (c *Config) resolve() error {
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	base, err := url.Parse(c.API.BaseURL)
	if err != nil || base.Host == "" {
		return fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL)
	}

	if c.WS.Host == "" {
		c.WS.Host = base.Host
	}
	if base.Scheme == "https" {
		c.WS.Secure = true
	}

	switch c.Live.Sort {
	case "":
		c.Live.Sort = SortArrival
	case SortArrival, SortCreatedAt:
	default:
		return fmt.Errorf("live.sort must be %q or %q, got %q", SortArrival, SortCreatedAt, c.Live.Sort)
	}

	if c.Store.Path == "" {
		c.Store.Path = defaultStorePath(c.Store.Driver)
	}
	return nil
}

// Warnings lists settings that are missing but not required
func (c *Config) Warnings() []string {
	var out []string
	if strings.TrimSpace(c.Captcha.SiteKey) == "" {
		out = append(out, "captcha.site_key is not set; posting comments will be rejected by the service")
	}
	return out
}

// Path returns the file the configuration was loaded from, or ""
func (c *Config) Path() string {
	return c.path
}

// Save saves configuration to file
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// DefaultPath is where Save writes when no config file was loaded
func DefaultPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "commenthub")
}

func defaultStorePath(driver string) string {
	switch driver {
	case "sqlite":
		return filepath.Join(configDir(), "session.db")
	case "", "file":
		return filepath.Join(configDir(), "session.yaml")
	default:
		return ""
	}
}

// findConfigFile searches for config in standard locations
func findConfigFile() string {
	locations := []string{
		"./commenthub.yaml",
		DefaultPath(),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}
