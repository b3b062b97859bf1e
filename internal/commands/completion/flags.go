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

package completion

import (
	"github.com/spf13/cobra"

	"github.com/tombee/reviewdesk/internal/config"
)

// SafeCompletionWrapper wraps a completion function with panic recovery.
// Returns empty completion list on panic or error.
func SafeCompletionWrapper(fn func() ([]string, cobra.ShellCompDirective)) (results []string, directive cobra.ShellCompDirective) {
	results = []string{}
	directive = cobra.ShellCompDirectiveNoFileComp

	defer func() {
		if r := recover(); r != nil {
			results = []string{}
			directive = cobra.ShellCompDirectiveNoFileComp
		}
	}()

	results, directive = fn()
	if results == nil {
		return []string{}, cobra.ShellCompDirectiveNoFileComp
	}
	return results, directive
}

// AtPosition completes only the positional argument at index pos.
func AtPosition(pos int, values ...string) cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
			if len(args) != pos {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			return values, cobra.ShellCompDirectiveNoFileComp
		})
	}
}

// Categories are the document category aliases accepted on the command line.
var Categories = []string{
	"cv\tCurriculum vitae",
	"background\tBackground check certificate",
	"degree\tDegree or diploma",
	"letter\tRecommendation letter",
}

// Decisions are the verification outcomes for workers verify.
var Decisions = []string{
	"approve\tMark the worker verified",
	"reject\tReject the worker's verification",
}

// CompleteCredentialsBackend provides completion for credentials.backend values.
func CompleteCredentialsBackend(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		return []string{
			"keychain\tSystem keychain",
			"file\tEncrypted file storage",
			"memory\tProcess memory only",
		}, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteConfigKeys completes the key argument of config set.
func CompleteConfigKeys(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		switch len(args) {
		case 0:
			return config.SettableKeys(), cobra.ShellCompDirectiveNoFileComp
		case 1:
			switch args[0] {
			case "credentials.backend":
				return CompleteCredentialsBackend(cmd, args, toComplete)
			case "log.level":
				return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
			case "log.format":
				return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
			case "tracing.exporter":
				return []string{"none", "console", "otlp"}, cobra.ShellCompDirectiveNoFileComp
			}
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	})
}
