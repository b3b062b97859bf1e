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

package login

import (
	"context"
	"net/http"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/reviewdesk/internal/commands/shared"
	"github.com/tombee/reviewdesk/internal/credentials"
	"github.com/tombee/reviewdesk/internal/testing/adminfake"
	"github.com/tombee/reviewdesk/internal/testing/clitest"
)

func commands() []*cobra.Command {
	return []*cobra.Command{NewLoginCommand(), NewLogoutCommand(), NewWhoamiCommand()}
}

func TestLogin_PasswordFromStdin(t *testing.T) {
	env := clitest.Setup(t)

	res := clitest.Run(t, adminfake.Password+"\n", commands(), "login", "-u", adminfake.Username, "--password-stdin")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "Logged in as Rita")

	tok, err := env.Store.Get(context.Background(), credentials.KeyAccessToken)
	require.NoError(t, err)
	assert.NotEmpty(t, tok)

	res = clitest.Run(t, "", commands(), "whoami")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "Rita")
	assert.Contains(t, res.Stdout, "42")
	assert.Contains(t, res.Stdout, "reviewer@example.com")
}

func TestLogin_WrongPassword(t *testing.T) {
	env := clitest.Setup(t)

	res := clitest.Run(t, "nope\n", commands(), "login", "-u", adminfake.Username, "--password-stdin")
	require.Error(t, res.Err)
	assert.Equal(t, shared.ExitAuth, shared.ExitCodeFor(res.Err))
	assert.NotContains(t, res.Stderr, shared.SessionExpiredMessage)
	assert.Zero(t, env.Server.Count(http.MethodPost, "/api/auth/token/refresh/"))

	_, err := env.Store.Get(context.Background(), credentials.KeyAccessToken)
	assert.ErrorIs(t, err, credentials.ErrNotFound)
}

func TestLogin_NonInteractiveNeedsUsername(t *testing.T) {
	env := clitest.Setup(t)

	res := clitest.Run(t, "", commands(), "login")
	require.Error(t, res.Err)
	assert.Equal(t, shared.ExitValidation, shared.ExitCodeFor(res.Err))
	assert.Empty(t, env.Server.Requests())
}

func TestLogout(t *testing.T) {
	env := clitest.Setup(t)
	env.SignIn(t)

	res := clitest.Run(t, "", commands(), "logout")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "Logged out")

	res = clitest.Run(t, "", commands(), "whoami")
	require.Error(t, res.Err)
	assert.Equal(t, shared.ExitAuth, shared.ExitCodeFor(res.Err))
}

func TestWhoami_JSON(t *testing.T) {
	clitest.Setup(t)

	res := clitest.Run(t, adminfake.Password, commands(), "login", "-u", adminfake.Username, "--password-stdin")
	require.NoError(t, res.Err)

	res = clitest.Run(t, "", commands(), "--json", "whoami")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, `"command": "whoami"`)
	assert.Contains(t, res.Stdout, `"expires_at"`)
}
