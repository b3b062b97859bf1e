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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsFile_UpdateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	sf, err := NewSettingsFile(path)
	require.NoError(t, err)

	err = sf.Update(func(c *Config) error {
		if err := c.Set("api.base_url", "https://admin.example.com"); err != nil {
			return err
		}
		return c.Set("retry.base_delay", "500ms")
	})
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	var cfg *Config
	require.NoError(t, sf.WithLock(func() error {
		var lerr error
		cfg, lerr = sf.Load()
		return lerr
	}))
	assert.Equal(t, "https://admin.example.com", cfg.API.BaseURL)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)

	// The saved file is loadable by Load.
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, loaded.Retry.BaseDelay)
}

func TestSettingsFile_LoadMissingReturnsDefaults(t *testing.T) {
	sf, err := NewSettingsFile(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)

	cfg, err := sf.Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSettingsFile_LockExcludes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	first, _ := NewSettingsFile(path)
	require.NoError(t, first.Lock())
	defer first.Unlock()

	// Both handles share the lock file, so a second flock must wait.
	second, _ := NewSettingsFile(path)
	done := make(chan error, 1)
	go func() { done <- second.Lock() }()

	select {
	case err := <-done:
		t.Fatalf("second Lock() returned early: %v", err)
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, first.Unlock())
	require.NoError(t, <-done)
	require.NoError(t, second.Unlock())
}

func TestConfig_Set(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("errlog.enabled", "false"))
	assert.False(t, cfg.ErrLog.Enabled)
	require.NoError(t, cfg.Set("log.level", "DEBUG"))
	assert.Equal(t, "debug", cfg.Log.Level)

	err := cfg.Set("api.nope", "x")
	assert.True(t, errors.Is(err, ErrUnknownKey))

	assert.Error(t, cfg.Set("retry.max_retries", "many"))
	assert.Error(t, cfg.Set("api.attempt_timeout", "soon"))
	require.NoError(t, cfg.Set("tracing.sample_rate", "0.5"))
	assert.Equal(t, 0.5, cfg.Tracing.SampleRate)
	assert.Error(t, cfg.Set("tracing.sample_rate", "half"))

	assert.Contains(t, SettableKeys(), "api.base_url")
}
