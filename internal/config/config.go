// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads reviewdesk settings from a YAML file, an optional
// .env file and REVIEWDESK_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tombee/reviewdesk/internal/credentials"
	"github.com/tombee/reviewdesk/internal/errlog"
	"github.com/tombee/reviewdesk/internal/log"
	"github.com/tombee/reviewdesk/internal/tracing"
	rderrors "github.com/tombee/reviewdesk/pkg/errors"
	"github.com/tombee/reviewdesk/pkg/httpclient"
)

// Config is the complete reviewdesk configuration.
type Config struct {
	// Version is the settings file format version.
	Version int `yaml:"version,omitempty"`

	API         APIConfig         `yaml:"api"`
	Retry       RetryConfig       `yaml:"retry"`
	Auth        AuthConfig        `yaml:"auth"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Log         LogConfig         `yaml:"log"`
	ErrLog      ErrLogConfig      `yaml:"errlog"`
	Tracing     TracingConfig     `yaml:"tracing"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// APIConfig configures the admin API connection.
type APIConfig struct {
	// BaseURL is the admin API root, e.g. https://admin.example.com.
	BaseURL string `yaml:"base_url"`

	// AttemptTimeout bounds each physical attempt.
	// Default: 30s
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`

	UserAgent string `yaml:"user_agent,omitempty"`

	// RequestsPerSecond limits outgoing attempts. Zero disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
	Burst             int     `yaml:"burst,omitempty"`
}

// RetryConfig configures retry of transient failures.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	// Default: 3. Zero disables retries.
	MaxRetries int `yaml:"max_retries"`

	// BaseDelay is the first backoff delay, doubled per retry.
	// Default: 1s
	BaseDelay time.Duration `yaml:"base_delay"`

	// MaxDelay caps any single delay.
	// Default: 30s
	MaxDelay time.Duration `yaml:"max_delay"`

	// ResetAfterRefresh restores the full retry budget after a successful
	// token refresh.
	// Default: true
	ResetAfterRefresh bool `yaml:"reset_after_refresh"`
}

// AuthConfig configures login and token refresh.
type AuthConfig struct {
	LoginPath   string `yaml:"login_path"`
	RefreshPath string `yaml:"refresh_path"`

	// LoginRoute is the route on which a failed refresh does not void the
	// session.
	LoginRoute string `yaml:"login_route"`

	// RefreshTimeout bounds one token exchange.
	// Default: 30s
	RefreshTimeout time.Duration `yaml:"refresh_timeout"`
}

// CredentialsConfig selects where tokens are stored.
type CredentialsConfig struct {
	// Backend is keychain, file or memory.
	// Default: keychain
	Backend string `yaml:"backend"`

	// File is the encrypted credentials file for the file backend.
	File string `yaml:"file,omitempty"`
}

// LogConfig configures diagnostic logging.
type LogConfig struct {
	// Level is trace, debug, info, warn or error.
	// Default: warn
	Level string `yaml:"level"`

	// Format is text or json.
	// Default: text
	Format string `yaml:"format"`

	AddSource bool `yaml:"add_source,omitempty"`
}

// ErrLogConfig configures the persistent error log.
type ErrLogConfig struct {
	// Enabled turns the SQLite error log on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the database file. Empty uses the config directory.
	Path string `yaml:"path,omitempty"`

	// MaxEntries bounds the log.
	// Default: 100
	MaxEntries int `yaml:"max_entries"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	// Exporter is none, console or otlp.
	// Default: none
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP/HTTP collector as host:port.
	Endpoint string `yaml:"endpoint,omitempty"`

	Insecure bool `yaml:"insecure,omitempty"`

	// SampleRate is the fraction of requests traced.
	// Default: 1.0
	SampleRate float64 `yaml:"sample_rate"`
}

// MetricsConfig configures metric output.
type MetricsConfig struct {
	// Textfile receives the process metrics in the Prometheus text format
	// when a command exits, for node_exporter's textfile collector.
	Textfile string `yaml:"textfile,omitempty"`
}

// Default returns a Config with default values. BaseURL has no default.
func Default() *Config {
	retry := httpclient.DefaultPolicy()
	return &Config{
		Version: 1,
		API: APIConfig{
			AttemptTimeout: 30 * time.Second,
			UserAgent:      "reviewdesk/1.0",
			Burst:          1,
		},
		Retry: RetryConfig{
			MaxRetries:        retry.MaxRetries,
			BaseDelay:         retry.BaseDelay,
			MaxDelay:          retry.MaxDelay,
			ResetAfterRefresh: true,
		},
		Auth: AuthConfig{
			LoginPath:      "/api/auth/token/",
			RefreshPath:    "/api/auth/token/refresh/",
			LoginRoute:     "/login",
			RefreshTimeout: 30 * time.Second,
		},
		Credentials: CredentialsConfig{
			Backend: credentials.BackendKeychain,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: string(log.FormatText),
		},
		ErrLog: ErrLogConfig{
			Enabled:    true,
			MaxEntries: errlog.DefaultMaxEntries,
		},
		Tracing: TracingConfig{
			Exporter:   tracing.ExporterNone,
			SampleRate: 1.0,
		},
	}
}

// Load loads configuration. A missing file at the default path is not an
// error; a missing file named explicitly is. Environment variables take
// precedence over the file, and a .env file in the working directory is
// read first without overriding variables already set.
func Load(configPath string) (*Config, error) {
	cfg, err := load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadLocal is Load for commands that never contact the API: the api
// section is not required.
func LoadLocal(configPath string) (*Config, error) {
	cfg, err := load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateLocal(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &rderrors.ConfigError{Key: ".env", Reason: "failed to load .env file", Cause: err}
	}

	cfg := Default()

	explicit := configPath != ""
	if !explicit {
		if p, err := ConfigPath(); err == nil {
			configPath = p
		}
	}
	if configPath != "" {
		err := cfg.loadFromFile(configPath)
		switch {
		case err == nil:
		case !explicit && errors.Is(err, fs.ErrNotExist):
		default:
			return nil, &rderrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()
	return cfg, nil
}

// applyDefaults fills zero values that have no meaningful zero setting.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.API.AttemptTimeout == 0 {
		c.API.AttemptTimeout = defaults.API.AttemptTimeout
	}
	if c.API.UserAgent == "" {
		c.API.UserAgent = defaults.API.UserAgent
	}
	if c.API.Burst == 0 {
		c.API.Burst = defaults.API.Burst
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = defaults.Retry.BaseDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = defaults.Retry.MaxDelay
	}
	if c.Auth.LoginPath == "" {
		c.Auth.LoginPath = defaults.Auth.LoginPath
	}
	if c.Auth.RefreshPath == "" {
		c.Auth.RefreshPath = defaults.Auth.RefreshPath
	}
	if c.Auth.LoginRoute == "" {
		c.Auth.LoginRoute = defaults.Auth.LoginRoute
	}
	if c.Auth.RefreshTimeout == 0 {
		c.Auth.RefreshTimeout = defaults.Auth.RefreshTimeout
	}
	if c.Credentials.Backend == "" {
		c.Credentials.Backend = defaults.Credentials.Backend
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	if c.ErrLog.MaxEntries == 0 {
		c.ErrLog.MaxEntries = defaults.ErrLog.MaxEntries
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = defaults.Tracing.Exporter
	}
}

// loadFromFile loads configuration from a YAML file over the current
// values.
func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// loadFromEnv applies REVIEWDESK_* overrides. Unparseable values are
// ignored.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("REVIEWDESK_API_URL"); val != "" {
		c.API.BaseURL = val
	}
	if val := os.Getenv("REVIEWDESK_ATTEMPT_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.API.AttemptTimeout = d
		}
	}
	if val := os.Getenv("REVIEWDESK_MAX_RETRIES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Retry.MaxRetries = n
		}
	}
	if val := os.Getenv("REVIEWDESK_REFRESH_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Auth.RefreshTimeout = d
		}
	}
	if val := os.Getenv("REVIEWDESK_CREDENTIALS_BACKEND"); val != "" {
		c.Credentials.Backend = strings.ToLower(val)
	}
	if val := os.Getenv("REVIEWDESK_CREDENTIALS_FILE"); val != "" {
		c.Credentials.File = val
	}
	if val := os.Getenv("REVIEWDESK_ERRLOG_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			c.ErrLog.Enabled = b
		}
	}
	if val := os.Getenv("REVIEWDESK_ERRLOG_PATH"); val != "" {
		c.ErrLog.Path = val
	}
	if val := os.Getenv("REVIEWDESK_TRACE_EXPORTER"); val != "" {
		c.Tracing.Exporter = strings.ToLower(val)
	}
	if val := os.Getenv("REVIEWDESK_TRACE_ENDPOINT"); val != "" {
		c.Tracing.Endpoint = val
	}
	if val := os.Getenv("REVIEWDESK_METRICS_FILE"); val != "" {
		c.Metrics.Textfile = val
	}
}

// Validate checks that the configuration is usable. All problems are
// reported together.
func (c *Config) Validate() error {
	return c.validate(true)
}

// ValidateLocal is Validate without the api.base_url requirement.
func (c *Config) ValidateLocal() error {
	return c.validate(false)
}

func (c *Config) validate(requireAPI bool) error {
	var errs []string
	firstKey := ""
	add := func(key, msg string) {
		if firstKey == "" {
			firstKey = key
		}
		errs = append(errs, msg)
	}

	if c.API.BaseURL == "" {
		if requireAPI {
			add("api.base_url", "api.base_url is required (set it in the config file or REVIEWDESK_API_URL)")
		}
	} else if u, err := url.Parse(c.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("api.base_url", fmt.Sprintf("api.base_url must be an http(s) URL, got %q", c.API.BaseURL))
	}
	if c.API.AttemptTimeout <= 0 {
		add("api.attempt_timeout", fmt.Sprintf("api.attempt_timeout must be positive, got %v", c.API.AttemptTimeout))
	}
	if c.API.RequestsPerSecond < 0 {
		add("api.requests_per_second", "api.requests_per_second must not be negative")
	}
	if c.Retry.MaxRetries < 0 || c.Retry.MaxRetries > 10 {
		add("retry.max_retries", fmt.Sprintf("retry.max_retries must be between 0 and 10, got %d", c.Retry.MaxRetries))
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		add("retry.max_delay", "retry.max_delay must not be less than retry.base_delay")
	}
	if c.Auth.RefreshTimeout <= 0 {
		add("auth.refresh_timeout", "auth.refresh_timeout must be positive")
	}

	switch c.Credentials.Backend {
	case credentials.BackendKeychain, credentials.BackendFile, credentials.BackendMemory:
	default:
		add("credentials.backend", fmt.Sprintf("credentials.backend must be one of [keychain, file, memory], got %q", c.Credentials.Backend))
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		add("log.level", fmt.Sprintf("log.level must be one of [trace, debug, info, warn, error], got %q", c.Log.Level))
	}
	if c.Log.Format != string(log.FormatJSON) && c.Log.Format != string(log.FormatText) {
		add("log.format", fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}
	if c.ErrLog.MaxEntries < 1 {
		add("errlog.max_entries", "errlog.max_entries must be at least 1")
	}

	switch c.Tracing.Exporter {
	case tracing.ExporterNone, tracing.ExporterConsole:
	case tracing.ExporterOTLP:
		if c.Tracing.Endpoint == "" {
			add("tracing.endpoint", "tracing.endpoint is required for the otlp exporter")
		}
	default:
		add("tracing.exporter", fmt.Sprintf("tracing.exporter must be one of [none, console, otlp], got %q", c.Tracing.Exporter))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		add("tracing.sample_rate", fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %v", c.Tracing.SampleRate))
	}

	if len(errs) == 0 {
		return nil
	}
	return &rderrors.ConfigError{Key: firstKey, Reason: strings.Join(errs, "; ")}
}

// HTTPClient returns the request pipeline configuration.
func (c *Config) HTTPClient() httpclient.Config {
	return httpclient.Config{
		BaseURL:                 c.API.BaseURL,
		AttemptTimeout:          c.API.AttemptTimeout,
		UserAgent:               c.API.UserAgent,
		RequestsPerSecond:       c.API.RequestsPerSecond,
		Burst:                   c.API.Burst,
		ResetBudgetAfterRefresh: c.Retry.ResetAfterRefresh,
		Retry: httpclient.Policy{
			MaxRetries: c.Retry.MaxRetries,
			BaseDelay:  c.Retry.BaseDelay,
			MaxDelay:   c.Retry.MaxDelay,
		},
	}
}

// CredentialOptions returns the credential store options.
func (c *Config) CredentialOptions() credentials.Options {
	opts := credentials.Options{Backend: c.Credentials.Backend, Path: c.Credentials.File}
	if opts.Path == "" {
		opts.Path, _ = DataPath("credentials.enc")
	}
	return opts
}

// Logger returns the logging configuration with environment overrides
// applied.
func (c *Config) Logger() *log.Config {
	cfg := log.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Format = log.Format(c.Log.Format)
	cfg.AddSource = c.Log.AddSource
	log.ApplyEnv(cfg)
	return cfg
}

// ErrorLog returns the error log store configuration.
func (c *Config) ErrorLog() errlog.Config {
	cfg := errlog.Config{Path: c.ErrLog.Path, MaxEntries: c.ErrLog.MaxEntries}
	if cfg.Path == "" {
		cfg.Path, _ = DataPath("errors.db")
	}
	return cfg
}

// TraceExport returns the span export configuration. Console output goes
// to console.
func (c *Config) TraceExport(console io.Writer) tracing.ExportConfig {
	return tracing.ExportConfig{
		Exporter:   c.Tracing.Exporter,
		Endpoint:   c.Tracing.Endpoint,
		Insecure:   c.Tracing.Insecure,
		SampleRate: c.Tracing.SampleRate,
		Console:    console,
	}
}
