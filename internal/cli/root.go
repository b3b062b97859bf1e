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

package cli

import (
	"github.com/spf13/cobra"

	"github.com/tombee/reviewdesk/internal/commands/shared"
)

// SetVersion records build information for the version command.
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root command with the global flags.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reviewdesk",
		Short: "Reviewdesk - worker verification from the terminal",
		Long: `Reviewdesk reviews the documents workers submit for verification:
list pending documents, approve or reject them, and record the final
verification decision.

Run 'reviewdesk login' to get started.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	verbose, quiet, json, config := shared.RegisterFlagPointers()

	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/reviewdesk/config.yaml)")

	return cmd
}

func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError reports err and exits with the matching code.
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
