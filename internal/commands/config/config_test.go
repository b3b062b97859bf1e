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
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tombee/reviewdesk/internal/commands/shared"
	"github.com/tombee/reviewdesk/internal/config"
	"github.com/tombee/reviewdesk/internal/testing/clitest"
)

func run(t *testing.T, args ...string) clitest.Result {
	t.Helper()
	return clitest.Run(t, "", []*cobra.Command{NewConfigCommand()}, args...)
}

func TestConfigPath(t *testing.T) {
	env := clitest.Setup(t)

	res := run(t, "config", "path")
	require.NoError(t, res.Err)
	assert.Equal(t, filepath.Join(env.ConfigDir, "reviewdesk", "config.yaml")+"\n", res.Stdout)
}

func TestConfigShow_AppliesEnvironment(t *testing.T) {
	env := clitest.Setup(t)

	res := run(t, "config")
	require.NoError(t, res.Err)

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(res.Stdout), &cfg), res.Stdout)
	assert.Equal(t, env.Server.URL, cfg.API.BaseURL)
	assert.Equal(t, 0, cfg.Retry.MaxRetries)
	assert.False(t, cfg.ErrLog.Enabled)
}

func TestConfigShow_WithoutBaseURL(t *testing.T) {
	clitest.Setup(t)
	t.Setenv("REVIEWDESK_API_URL", "")

	res := run(t, "config", "show")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "base_url")
}

func TestConfigSet(t *testing.T) {
	env := clitest.Setup(t)

	res := run(t, "config", "set", "retry.max_retries", "5")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "retry.max_retries = 5")

	res = run(t, "config", "set", "log.level", "debug")
	require.NoError(t, res.Err)

	data, err := os.ReadFile(filepath.Join(env.ConfigDir, "reviewdesk", "config.yaml"))
	require.NoError(t, err)

	var saved config.Config
	require.NoError(t, yaml.Unmarshal(data, &saved))
	assert.Equal(t, 5, saved.Retry.MaxRetries)
	assert.Equal(t, "debug", saved.Log.Level)
}

func TestConfigSet_UnknownKey(t *testing.T) {
	clitest.Setup(t)

	res := run(t, "config", "set", "api.password", "x")
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, config.ErrUnknownKey)
	assert.Equal(t, shared.ExitValidation, shared.ExitCodeFor(res.Err))
}

func TestConfigSet_RejectsInvalidValue(t *testing.T) {
	env := clitest.Setup(t)

	res := run(t, "config", "set", "log.level", "loud")
	require.Error(t, res.Err)

	res = run(t, "config", "set", "retry.max_retries", "99")
	require.Error(t, res.Err)

	_, err := os.Stat(filepath.Join(env.ConfigDir, "reviewdesk", "config.yaml"))
	assert.True(t, os.IsNotExist(err), "invalid values must not be written")
}
