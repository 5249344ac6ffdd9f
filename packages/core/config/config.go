package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"
	// DefaultRequestTimeout applies to calls against the system under test.
	DefaultRequestTimeout = 30 * time.Second
	// DefaultConcurrency keeps execution sequential.
	DefaultConcurrency = 1
)

// Config is the root configuration for bitrunner.
type Config struct {
	LogLevel string       `yaml:"log_level"`
	Lark     LarkConfig   `yaml:"lark"`
	API      APIConfig    `yaml:"api"`
	Runner   RunnerConfig `yaml:"runner"`
}

// LarkConfig locates and authenticates against the table backend.
type LarkConfig struct {
	Domain        string  `yaml:"domain"`
	AppToken      string  `yaml:"app_token"`
	PersonalToken string  `yaml:"personal_token"`
	TableID       string  `yaml:"table_id"`
	RatePerSec    float64 `yaml:"rate_per_sec"`
	Burst         int     `yaml:"burst"`
}

// APIConfig describes how to reach the system under test.
type APIConfig struct {
	BaseURL        string            `yaml:"base_url"`
	Timeout        time.Duration     `yaml:"timeout"`
	NetworkRetries int               `yaml:"network_retries"`
	DefaultHeaders map[string]string `yaml:"default_headers"`
}

// RunnerConfig tunes execution behavior.
type RunnerConfig struct {
	Concurrency  int           `yaml:"concurrency"`
	RequestDelay time.Duration `yaml:"request_delay"`
}

// Load reads the YAML file (optional), applies environment-variable
// overrides, then defaults. The env names match the ones the original
// operators already export in CI.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"LARK_PERSONAL_TOKEN": &c.Lark.PersonalToken,
		"LARK_APP_TOKEN":      &c.Lark.AppToken,
		"LARK_TABLE_ID":       &c.Lark.TableID,
		"LARK_DOMAIN":         &c.Lark.Domain,
		"API_BASE_URL":        &c.API.BaseURL,
		"LOG_LEVEL":           &c.LogLevel,
	}
	for name, target := range overrides {
		if v := os.Getenv(name); v != "" {
			*target = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = DefaultRequestTimeout
	}
	if c.Runner.Concurrency <= 0 {
		c.Runner.Concurrency = DefaultConcurrency
	}
}

// Validate checks everything a run needs before any network call.
func (c *Config) Validate() error {
	var missing []string
	if c.Lark.PersonalToken == "" {
		missing = append(missing, "lark.personal_token")
	}
	if c.Lark.AppToken == "" {
		missing = append(missing, "lark.app_token")
	}
	if c.Lark.TableID == "" {
		missing = append(missing, "lark.table_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	if !strings.HasPrefix(c.Lark.PersonalToken, "pt-") {
		return fmt.Errorf("lark.personal_token must start with %q", "pt-")
	}

	if c.Lark.Domain != "" {
		u, err := url.Parse(c.Lark.Domain)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid lark.domain: %q", c.Lark.Domain)
		}
	}
	if c.API.BaseURL != "" {
		u, err := url.Parse(c.API.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid api.base_url: %q", c.API.BaseURL)
		}
	}
	return nil
}
