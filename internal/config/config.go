// Package config loads hookcatch settings from defaults, a YAML file and
// HOOKCATCH_* environment variables. Command-line flags are applied on top
// by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rsclarke/hookcatch/internal/filter"
)

const envPrefix = "HOOKCATCH_"

type Config struct {
	LogDir   string `yaml:"log_dir"`
	DBPath   string `yaml:"db"`
	Prefix   string `yaml:"prefix"`
	Timezone string `yaml:"timezone"`

	HTTPPort  int `yaml:"http_port"`
	HTTPSPort int `yaml:"https_port"`
	APIPort   int `yaml:"api_port"`

	TLS       TLSConfig       `yaml:"tls"`
	ACME      ACMEConfig      `yaml:"acme"`
	Capture   CaptureConfig   `yaml:"capture"`
	Store     StoreConfig     `yaml:"store"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Log       LogConfig       `yaml:"log"`
}

type TLSConfig struct {
	CertFile string `yaml:"cert"`
	KeyFile  string `yaml:"key"`
}

type ACMEConfig struct {
	Enabled bool   `yaml:"enabled"`
	Domain  string `yaml:"domain"`
	Email   string `yaml:"email"`
	Staging bool   `yaml:"staging"`
}

type CaptureConfig struct {
	// MaxBodyBytes truncates captured bodies. Zero means unlimited.
	MaxBodyBytes      int64  `yaml:"max_body_bytes"`
	UploadDir         string `yaml:"upload_dir"`
	TrustProxyHeaders bool   `yaml:"trust_proxy_headers"`
}

type StoreConfig struct {
	// Lock serialises appends to the same day file within the process.
	Lock bool `yaml:"lock"`
}

type DashboardConfig struct {
	Username      string        `yaml:"username"`
	PasswordHash  string        `yaml:"password_hash"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	SecureCookies bool          `yaml:"secure_cookies"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		LogDir:    "log",
		DBPath:    "hookcatch.db",
		Prefix:    filter.DefaultPrefix,
		Timezone:  "Local",
		HTTPPort:  8080,
		HTTPSPort: 8443,
		APIPort:   8081,
		Capture: CaptureConfig{
			MaxBodyBytes: 10 << 20,
		},
		Dashboard: DashboardConfig{
			SessionTTL: 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (skipped
// when path is empty) and then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path. Keys absent from the file keep
// their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays HOOKCATCH_* variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	e := envReader{getenv: getenv}

	e.setString("LOG_DIR", &c.LogDir)
	e.setString("DB", &c.DBPath)
	e.setString("PREFIX", &c.Prefix)
	e.setString("TIMEZONE", &c.Timezone)
	e.setInt("HTTP_PORT", &c.HTTPPort)
	e.setInt("HTTPS_PORT", &c.HTTPSPort)
	e.setInt("API_PORT", &c.APIPort)
	e.setString("TLS_CERT", &c.TLS.CertFile)
	e.setString("TLS_KEY", &c.TLS.KeyFile)
	e.setBool("ACME", &c.ACME.Enabled)
	e.setString("ACME_DOMAIN", &c.ACME.Domain)
	e.setString("ACME_EMAIL", &c.ACME.Email)
	e.setBool("ACME_STAGING", &c.ACME.Staging)
	e.setInt64("MAX_BODY_BYTES", &c.Capture.MaxBodyBytes)
	e.setString("UPLOAD_DIR", &c.Capture.UploadDir)
	e.setBool("TRUST_PROXY_HEADERS", &c.Capture.TrustProxyHeaders)
	e.setBool("STORE_LOCK", &c.Store.Lock)
	e.setString("DASHBOARD_USER", &c.Dashboard.Username)
	e.setString("DASHBOARD_PASSWORD_HASH", &c.Dashboard.PasswordHash)
	e.setDuration("SESSION_TTL", &c.Dashboard.SessionTTL)
	e.setBool("SECURE_COOKIES", &c.Dashboard.SecureCookies)
	e.setString("LOG_LEVEL", &c.Log.Level)
	e.setString("LOG_FORMAT", &c.Log.Format)

	return errors.Join(e.errs...)
}

// Validate checks the settings that would otherwise fail late at startup.
func (c *Config) Validate() error {
	var errs []error

	if !validPort(c.HTTPPort) {
		errs = append(errs, fmt.Errorf("http_port %d out of range", c.HTTPPort))
	}
	if !validPort(c.APIPort) {
		errs = append(errs, fmt.Errorf("api_port %d out of range", c.APIPort))
	}
	if c.HTTPSEnabled() && !validPort(c.HTTPSPort) {
		errs = append(errs, fmt.Errorf("https_port %d out of range", c.HTTPSPort))
	}
	if c.HTTPPort == c.APIPort {
		errs = append(errs, fmt.Errorf("http_port and api_port must differ (both %d)", c.HTTPPort))
	}
	if strings.TrimSpace(c.Prefix) == "" {
		errs = append(errs, errors.New("prefix must not be empty"))
	}
	if c.LogDir == "" {
		errs = append(errs, errors.New("log_dir must not be empty"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, errors.New("tls cert and key must be set together"))
	}
	if c.ACME.Enabled && c.ACME.Domain == "" {
		errs = append(errs, errors.New("acme.domain is required when acme is enabled"))
	}
	if c.Capture.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("capture.max_body_bytes must not be negative"))
	}
	if c.Dashboard.Username != "" && c.Dashboard.PasswordHash == "" {
		errs = append(errs, errors.New("dashboard.password_hash is required when dashboard.username is set"))
	}

	return errors.Join(errs...)
}

// Location resolves Timezone. An empty value means the local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ManualTLS reports whether a certificate and key are configured.
func (c *Config) ManualTLS() bool {
	return c.TLS.CertFile != "" && c.TLS.KeyFile != ""
}

// HTTPSEnabled reports whether the HTTPS capture listener should start.
func (c *Config) HTTPSEnabled() bool {
	return c.ManualTLS() || c.ACME.Enabled
}

// DashboardEnabled reports whether password login is configured.
func (c *Config) DashboardEnabled() bool {
	return c.Dashboard.Username != "" && c.Dashboard.PasswordHash != ""
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

type envReader struct {
	getenv func(string) string
	errs   []error
}

func (e *envReader) lookup(key string) (string, bool) {
	v := e.getenv(envPrefix + key)
	return v, v != ""
}

func (e *envReader) setString(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) setInt(key string, dst *int) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) setInt64(key string, dst *int64) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) setBool(key string, dst *bool) {
	if v, ok := e.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
			return
		}
		*dst = b
	}
}

func (e *envReader) setDuration(key string, dst *time.Duration) {
	if v, ok := e.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
			return
		}
		*dst = d
	}
}
