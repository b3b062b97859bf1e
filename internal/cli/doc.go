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

/*
Package cli provides the root command for the reviewdesk CLI.

It owns the global flags, version information and exit handling. The
commands themselves live in the internal/commands subpackages.

# Command Tree

	reviewdesk
	├── login         Sign in and store the session
	├── logout        Remove the stored session
	├── whoami        Show the signed-in reviewer
	├── documents     Review worker documents
	├── workers       Browse workers and record verification
	├── clients       Browse client accounts
	├── dashboard     Show platform statistics
	├── errors        Inspect the persistent error log
	├── config        Show and change settings
	└── version       Show version

# Usage

From main.go:

	cli.SetVersion(version, commit, buildDate)
	root := cli.NewRootCommand()
	root.AddCommand(...)
	if err := root.Execute(); err != nil {
		cli.HandleExitError(err)
	}
*/
package cli
