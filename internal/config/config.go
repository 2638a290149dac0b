package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kartoza/soc-estimator/internal/form"
	"github.com/kartoza/soc-estimator/internal/predictor"
)

// AppName names the per-user configuration directory
const AppName = "soc-estimator"

// Config holds the application configuration
type Config struct {
	Port        int          `yaml:"port"`
	Endpoint    string       `yaml:"endpoint"`
	Timeout     string       `yaml:"timeout"`
	ProfilePath string       `yaml:"profile_path"`
	MaxSessions int          `yaml:"max_sessions"`
	SessionTTL  string       `yaml:"session_ttl"`
	LogLevel    string       `yaml:"log_level"`
	Policies    PolicyConfig `yaml:"policies"`

	// Version is stamped at build time, never read from disk
	Version string `yaml:"-"`
	// Path is the settings file this config was loaded from
	Path string `yaml:"-"`
}

// PolicyConfig selects the form behaviour for invalid input, failed
// requests and overlapping submits.
type PolicyConfig struct {
	Input       string `json:"input" yaml:"input"`             // permissive, strict
	Failure     string `json:"failure" yaml:"failure"`         // keep, clear
	Concurrency string `json:"concurrency" yaml:"concurrency"` // single-flight, latest-request, last-response
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	def := form.DefaultOptions()
	return &Config{
		Port:        8080,
		Endpoint:    predictor.DefaultEndpoint,
		Timeout:     predictor.DefaultTimeout.String(),
		MaxSessions: 256,
		SessionTTL:  "2h",
		LogLevel:    "info",
		Policies: PolicyConfig{
			Input:       string(def.Input),
			Failure:     string(def.Failure),
			Concurrency: string(def.Concurrency),
		},
		Version: "dev",
	}
}

// ConfigDir returns the per-user directory holding settings and profiles
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not determine config directory: %w", err)
	}
	return filepath.Join(base, AppName), nil
}

// DefaultPath returns the settings file location
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings.yaml"), nil
}

// Load loads configuration from a YAML file. A missing file yields defaults.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// LoadFile loads the YAML file over the defaults without environment
// overrides. This is the form to edit and Save back.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.Path = path
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SOC_ENDPOINT"); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv("SOC_TIMEOUT"); v != "" {
		c.Timeout = v
	}
	if v := os.Getenv("SOC_PROFILE"); v != "" {
		c.ProfilePath = v
	}
	if v := os.Getenv("SOC_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("SOC_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
}

// GetTimeout returns the prediction timeout. Zero means no timeout.
func (c *Config) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return predictor.DefaultTimeout
	}
	return d
}

// GetSessionTTL returns how long an unused browser session is kept.
func (c *Config) GetSessionTTL() time.Duration {
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil || d <= 0 {
		return 2 * time.Hour
	}
	return d
}

// FormOptions converts the policy names into form options.
func (c *Config) FormOptions() (form.Options, error) {
	in, err := form.ParseInputPolicy(c.Policies.Input)
	if err != nil {
		return form.Options{}, err
	}
	fail, err := form.ParseFailurePolicy(c.Policies.Failure)
	if err != nil {
		return form.Options{}, err
	}
	conc, err := form.ParseConcurrencyPolicy(c.Policies.Concurrency)
	if err != nil {
		return form.Options{}, err
	}
	return form.Options{Input: in, Failure: fail, Concurrency: conc}, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid prediction endpoint %q: must be an absolute http(s) URL", c.Endpoint)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if d, err := time.ParseDuration(c.Timeout); err != nil || d < 0 {
		return fmt.Errorf("invalid timeout %q: must be a duration such as 30s, or 0 for none", c.Timeout)
	}
	if d, err := time.ParseDuration(c.SessionTTL); err != nil || d <= 0 {
		return fmt.Errorf("invalid session_ttl %q: must be a positive duration", c.SessionTTL)
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("max_sessions must be positive, got %d", c.MaxSessions)
	}
	if _, err := c.FormOptions(); err != nil {
		return err
	}
	return nil
}
