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

package main

import (
	"github.com/tombee/reviewdesk/internal/cli"
	"github.com/tombee/reviewdesk/internal/commands/clients"
	"github.com/tombee/reviewdesk/internal/commands/completion"
	"github.com/tombee/reviewdesk/internal/commands/config"
	"github.com/tombee/reviewdesk/internal/commands/dashboard"
	"github.com/tombee/reviewdesk/internal/commands/diagnostics"
	"github.com/tombee/reviewdesk/internal/commands/documents"
	errorscmd "github.com/tombee/reviewdesk/internal/commands/errors"
	"github.com/tombee/reviewdesk/internal/commands/login"
	versioncmd "github.com/tombee/reviewdesk/internal/commands/version"
	"github.com/tombee/reviewdesk/internal/commands/workers"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildDate)

	rootCmd := cli.NewRootCommand()

	// Session
	rootCmd.AddCommand(login.NewLoginCommand())
	rootCmd.AddCommand(login.NewLogoutCommand())
	rootCmd.AddCommand(login.NewWhoamiCommand())

	// Review
	rootCmd.AddCommand(documents.NewCommand())
	rootCmd.AddCommand(workers.NewCommand())
	rootCmd.AddCommand(clients.NewCommand())
	rootCmd.AddCommand(dashboard.NewCommand())

	// Local state
	rootCmd.AddCommand(errorscmd.NewCommand())
	rootCmd.AddCommand(config.NewConfigCommand())
	rootCmd.AddCommand(diagnostics.NewDoctorCommand())
	rootCmd.AddCommand(completion.NewCommand())
	rootCmd.AddCommand(versioncmd.NewVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		cli.HandleExitError(err)
	}
}
