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

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrLockTimeout is returned when file lock acquisition times out.
	ErrLockTimeout = errors.New("configuration locked by another process")

	// ErrUnknownKey is returned by Set for keys that are not settable.
	ErrUnknownKey = errors.New("unknown configuration key")
)

const (
	// lockTimeout is the maximum duration to wait for lock acquisition.
	lockTimeout = 5 * time.Second
)

// SettingsFile manages the config file with file locking for concurrent
// access protection.
type SettingsFile struct {
	path     string
	lockFile *os.File
}

// NewSettingsFile creates a new SettingsFile instance for the given path.
// If path is empty, uses the default config path.
func NewSettingsFile(path string) (*SettingsFile, error) {
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
	}
	return &SettingsFile{path: path}, nil
}

// Path returns the file location.
func (s *SettingsFile) Path() string {
	return s.path
}

// Lock acquires an exclusive lock on the settings file.
// Returns ErrLockTimeout if the lock cannot be acquired within the timeout period.
func (s *SettingsFile) Lock() error {
	lockPath := s.path + ".lock"

	if err := os.MkdirAll(filepath.Dir(lockPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	deadline := time.Now().Add(lockTimeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			s.lockFile = lockFile
			return nil
		}
		if time.Now().After(deadline) {
			lockFile.Close()
			return ErrLockTimeout
		}
		<-ticker.C
	}
}

// Unlock releases the file lock.
func (s *SettingsFile) Unlock() error {
	if s.lockFile == nil {
		return nil
	}
	defer func() { s.lockFile = nil }()

	if err := syscall.Flock(int(s.lockFile.Fd()), syscall.LOCK_UN); err != nil {
		s.lockFile.Close()
		return fmt.Errorf("failed to unlock: %w", err)
	}
	if err := s.lockFile.Close(); err != nil {
		return fmt.Errorf("failed to close lock file: %w", err)
	}
	return nil
}

// Load reads the file over the defaults. A missing file yields the
// defaults. The file must be locked before calling this method.
func (s *SettingsFile) Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse settings YAML: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the configuration atomically.
// The file must be locked before calling this method.
func (s *SettingsFile) Save(cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

// WithLock executes a function while holding the file lock.
func (s *SettingsFile) WithLock(fn func() error) error {
	if err := s.Lock(); err != nil {
		return err
	}
	defer s.Unlock()

	return fn()
}

// Update loads the file, applies fn and saves the result under the lock.
func (s *SettingsFile) Update(fn func(*Config) error) error {
	return s.WithLock(func() error {
		cfg, err := s.Load()
		if err != nil {
			return err
		}
		if err := fn(cfg); err != nil {
			return err
		}
		return s.Save(cfg)
	})
}

// setters maps settable dotted keys to their parsers.
var setters = map[string]func(c *Config, v string) error{
	"api.base_url":              func(c *Config, v string) error { c.API.BaseURL = v; return nil },
	"api.attempt_timeout":       durationSetter(func(c *Config) *time.Duration { return &c.API.AttemptTimeout }),
	"api.user_agent":            func(c *Config, v string) error { c.API.UserAgent = v; return nil },
	"retry.max_retries":         intSetter(func(c *Config) *int { return &c.Retry.MaxRetries }),
	"retry.base_delay":          durationSetter(func(c *Config) *time.Duration { return &c.Retry.BaseDelay }),
	"retry.max_delay":           durationSetter(func(c *Config) *time.Duration { return &c.Retry.MaxDelay }),
	"retry.reset_after_refresh": boolSetter(func(c *Config) *bool { return &c.Retry.ResetAfterRefresh }),
	"auth.refresh_timeout":      durationSetter(func(c *Config) *time.Duration { return &c.Auth.RefreshTimeout }),
	"credentials.backend":       func(c *Config, v string) error { c.Credentials.Backend = strings.ToLower(v); return nil },
	"credentials.file":          func(c *Config, v string) error { c.Credentials.File = v; return nil },
	"log.level":                 func(c *Config, v string) error { c.Log.Level = strings.ToLower(v); return nil },
	"log.format":                func(c *Config, v string) error { c.Log.Format = strings.ToLower(v); return nil },
	"errlog.enabled":            boolSetter(func(c *Config) *bool { return &c.ErrLog.Enabled }),
	"errlog.max_entries":        intSetter(func(c *Config) *int { return &c.ErrLog.MaxEntries }),
	"tracing.exporter":          func(c *Config, v string) error { c.Tracing.Exporter = strings.ToLower(v); return nil },
	"tracing.endpoint":          func(c *Config, v string) error { c.Tracing.Endpoint = v; return nil },
	"tracing.insecure":          boolSetter(func(c *Config) *bool { return &c.Tracing.Insecure }),
	"metrics.textfile":          func(c *Config, v string) error { c.Metrics.Textfile = v; return nil },
	"tracing.sample_rate": func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.Tracing.SampleRate = f
		return nil
	},
}

// SettableKeys lists the keys accepted by Set, sorted.
func SettableKeys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set assigns a value by dotted key.
func (c *Config) Set(key, value string) error {
	set, ok := setters[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if err := set(c, value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

func durationSetter(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

func intSetter(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func boolSetter(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}
