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

// Package clitest runs reviewdesk commands against an adminfake server
// with an isolated config directory and an in-memory credential store.
package clitest

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/tombee/reviewdesk/internal/cli"
	"github.com/tombee/reviewdesk/internal/commands/shared"
	"github.com/tombee/reviewdesk/internal/credentials"
	"github.com/tombee/reviewdesk/internal/testing/adminfake"
	"github.com/tombee/reviewdesk/pkg/auth"
)

// Env is an isolated command environment.
type Env struct {
	Server    *adminfake.Server
	Store     *credentials.MemoryStore
	ConfigDir string
}

// Result is the outcome of one command run.
type Result struct {
	Stdout string
	Stderr string
	Err    error
}

// Setup points configuration at a fresh fake server. The error log is
// off and retries are disabled unless a test sets them again.
func Setup(t *testing.T) *Env {
	t.Helper()
	env := &Env{
		Server:    adminfake.New(t),
		Store:     credentials.NewMemoryStore(),
		ConfigDir: t.TempDir(),
	}

	t.Setenv("XDG_CONFIG_HOME", env.ConfigDir)
	t.Setenv("REVIEWDESK_API_URL", env.Server.URL)
	t.Setenv("REVIEWDESK_ERRLOG_ENABLED", "false")
	t.Setenv("REVIEWDESK_MAX_RETRIES", "0")
	t.Setenv("REVIEWDESK_NON_INTERACTIVE", "true")
	t.Setenv("NO_COLOR", "1")

	t.Cleanup(shared.SetStoreForTest(env.Store))
	return env
}

// SignIn stores a token pair issued by the server.
func (e *Env) SignIn(t *testing.T) {
	t.Helper()
	access, refresh := e.Server.Issue()
	session := auth.NewSession(e.Store)
	if err := session.Save(context.Background(), &oauth2.Token{AccessToken: access, RefreshToken: refresh}, nil); err != nil {
		t.Fatalf("failed to store session: %v", err)
	}
}

// Run executes args under a fresh root command holding cmds.
func Run(t *testing.T, stdin string, cmds []*cobra.Command, args ...string) Result {
	t.Helper()
	root := cli.NewRootCommand()
	for _, c := range cmds {
		root.AddCommand(c)
	}

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err := root.Execute()
	return Result{Stdout: stdout.String(), Stderr: stderr.String(), Err: err}
}
