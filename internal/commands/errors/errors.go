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

// Package errors implements the errors command group over the persistent
// error log.
package errors

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/reviewdesk/internal/commands/shared"
	"github.com/tombee/reviewdesk/internal/errlog"
	"github.com/tombee/reviewdesk/pkg/notify"
)

// NewCommand creates the errors command with subcommands.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Inspect the persistent error log",
		Long: `Inspect the API errors recorded by previous commands. Each entry keeps
the classification, the request and the command that raised it.`,
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newSummaryCommand())
	cmd.AddCommand(newClearCommand())
	return cmd
}

// open returns the app and its error log, failing when the log is off.
func open(cmd *cobra.Command) (*shared.App, *errlog.Store, error) {
	app, err := shared.OpenApp(cmd, true)
	if err != nil {
		return nil, nil, err
	}
	if app.ErrLog == nil {
		app.Close()
		return nil, nil, fmt.Errorf("error log is disabled (set errlog.enabled: true)")
	}
	return app, app.ErrLog, nil
}

func newListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded errors, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, store, err := open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return app.Output("errors list", entries, func(w io.Writer) {
				writeEntries(w, entries)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to show (0 for all)")
	return cmd
}

func newSummaryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Summarize recorded errors by code, severity and category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, store, err := open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			summary, err := store.Summary(cmd.Context())
			if err != nil {
				return err
			}
			return app.Output("errors summary", summary, func(w io.Writer) {
				writeSummary(w, summary)
			})
		},
	}
}

func newClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every recorded error",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, store, err := open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := store.Clear(cmd.Context()); err != nil {
				return err
			}
			app.Infof("%s", shared.RenderOK("Error log cleared"))
			return nil
		},
	}
}

func writeEntries(w io.Writer, entries []notify.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No errors recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCODE\tSEVERITY\tREQUEST\tCOMMAND\tMESSAGE")
	for _, e := range entries {
		req := e.Method + " " + e.Endpoint
		if e.Method == "" {
			req = "-"
		}
		route := e.Route
		if route == "" {
			route = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime), e.Code, e.Severity, req, route, e.UserMessage)
	}
	tw.Flush()
}

func writeSummary(w io.Writer, s notify.Summary) {
	fmt.Fprintf(w, "%d errors recorded\n", s.Total)
	if s.Total == 0 {
		return
	}
	for _, group := range []struct {
		title  string
		counts map[string]int
	}{
		{"By code", s.ByCode},
		{"By severity", s.BySeverity},
		{"By category", s.ByCategory},
	} {
		fmt.Fprintln(w, "\n"+shared.Header.Render(group.title))
		keys := make([]string, 0, len(group.counts))
		for k := range group.counts {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if group.counts[keys[i]] != group.counts[keys[j]] {
				return group.counts[keys[i]] > group.counts[keys[j]]
			}
			return keys[i] < keys[j]
		})
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, k := range keys {
			fmt.Fprintf(tw, "  %s\t%d\n", k, group.counts[k])
		}
		tw.Flush()
	}
}
