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

// Package config implements the config command group.
package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tombee/reviewdesk/internal/commands/completion"
	"github.com/tombee/reviewdesk/internal/commands/shared"
	"github.com/tombee/reviewdesk/internal/config"
)

// NewConfigCommand creates the config command with subcommands.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and manage configuration",
		Long: `View and manage reviewdesk configuration.

Subcommands:
  show - Display the effective configuration
  set  - Change a setting in the config file
  path - Show config file location`,
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigSetCommand())
	cmd.AddCommand(newConfigPathCommand())

	// If no subcommand provided, default to 'show'
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runConfigShow(cmd, args)
	}

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long: `Display the configuration after defaults, the config file, .env and
REVIEWDESK_* environment variables have been applied.`,
		Args: cobra.NoArgs,
		RunE: runConfigShow,
	}
}

func newConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change a setting in the config file",
		Long: `Change a setting in the config file. The file is created when missing
and written atomically under a lock.

Keys:
  ` + strings.Join(config.SettableKeys(), "\n  "),
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completion.CompleteConfigKeys,
		RunE:              runConfigSet,
	}
}

func newConfigPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show config file location",
		Args:  cobra.NoArgs,
		RunE:  runConfigPath,
	}
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadLocal(shared.GetConfigPath())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if shared.GetJSON() {
		return shared.EmitResult(out, "config show", cfg)
	}
	return outputConfigYAML(out, cfg)
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	sf, err := config.NewSettingsFile(shared.GetConfigPath())
	if err != nil {
		return err
	}
	err = sf.Update(func(cfg *config.Config) error {
		if err := cfg.Set(key, value); err != nil {
			return err
		}
		return cfg.ValidateLocal()
	})
	if err != nil {
		return err
	}

	if !shared.GetQuiet() && !shared.GetJSON() {
		fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("%s = %s", key, value)))
	}
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	cfgPath := shared.GetConfigPath()
	if cfgPath == "" {
		var err error
		cfgPath, err = config.ConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), cfgPath)
	return nil
}

func outputConfigYAML(w io.Writer, cfg *config.Config) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)

	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return encoder.Close()
}
