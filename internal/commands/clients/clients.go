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

// Package clients implements the clients command group.
package clients

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tombee/reviewdesk/internal/commands/shared"
)

// NewCommand creates the clients command with subcommands.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Browse client accounts",
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newCountCommand())
	return cmd
}

func newListCommand() *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := shared.OpenApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			page, err := app.API.Clients.List(shared.CommandContext(cmd), search)
			if err != nil {
				return err
			}
			return app.Output("clients list", page, func(w io.Writer) {
				if len(page.Items) == 0 {
					fmt.Fprintln(w, "No clients found.")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tPHONE")
				for _, c := range page.Items {
					fmt.Fprintf(tw, "%s\t%s %s\t%s\t%s\n", c.ID, c.Name, c.LastName, c.Email, c.Phone)
				}
				tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "Search by name or email")
	return cmd
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <client-id>",
		Short: "Show a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := shared.OpenApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			c, err := app.API.Clients.Get(shared.CommandContext(cmd), args[0])
			if err != nil {
				return err
			}
			return app.Output("clients get", c, func(w io.Writer) {
				fmt.Fprintln(w, shared.Header.Render(c.Name+" "+c.LastName))
				fmt.Fprintf(w, "%s %s\n", shared.RenderLabel("id:   "), c.ID)
				fmt.Fprintf(w, "%s %s\n", shared.RenderLabel("email:"), c.Email)
				if c.Phone != "" {
					fmt.Fprintf(w, "%s %s\n", shared.RenderLabel("phone:"), c.Phone)
				}
			})
		},
	}
}

func newCountCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Show the number of clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := shared.OpenApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			n, err := app.API.Clients.Count(shared.CommandContext(cmd))
			if err != nil {
				return err
			}
			return app.Output("clients count", map[string]int{"count": n}, func(w io.Writer) {
				fmt.Fprintln(w, n)
			})
		},
	}
}
