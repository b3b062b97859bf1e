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

// Package dashboard implements the dashboard command.
package dashboard

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tombee/reviewdesk/internal/commands/shared"
	"github.com/tombee/reviewdesk/internal/commands/workers"
	"github.com/tombee/reviewdesk/pkg/adminapi"
)

// NewCommand creates the dashboard command.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show platform statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := shared.OpenApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			stats, err := app.API.Dashboard.Stats(shared.CommandContext(cmd))
			if err != nil {
				return err
			}
			return app.Output("dashboard", stats, func(w io.Writer) {
				write(w, stats)
			})
		},
	}
}

func write(w io.Writer, s *adminapi.DashboardStats) {
	fmt.Fprintln(w, shared.Header.Render("Workers"))
	fmt.Fprintf(w, "total %d, available %d, online %d, verified %d\n",
		s.Workers.Total, s.Workers.Available, s.Workers.Online, s.Workers.Verified)
	workers.WriteCounts(w, s.Workers.ByCategory)

	fmt.Fprintln(w, "\n"+shared.Header.Render("Clients"))
	fmt.Fprintf(w, "total %d\n", s.Clients.Total)

	d := s.Documents
	fmt.Fprintln(w, "\n"+shared.Header.Render("Documents"))
	fmt.Fprintf(w, "total %d, pending %d, approved %d, rejected %d\n", d.Total, d.Pending, d.Approved, d.Rejected)
	fmt.Fprintf(w, "pending by type: cv %d, background %d, degrees %d, letters %d\n",
		d.PendingByType.CV, d.PendingByType.BackgroundCheck, d.PendingByType.Degrees, d.PendingByType.Letters)

	if a := s.Activity; a != nil {
		fmt.Fprintln(w, "\n"+shared.Header.Render("Activity"))
		fmt.Fprintf(w, "active workers: %d (24h), %d (7d), %d (30d)\n", a.Workers.Active24h, a.Workers.Active7d, a.Workers.Active30d)
		fmt.Fprintf(w, "documents processed: %d (24h), %d (7d), %d (30d)\n", a.Documents.Processed24h, a.Documents.Processed7d, a.Documents.Processed30d)
		fmt.Fprintf(w, "documents uploaded: %d (24h), %d (7d), %d (30d)\n", a.Documents.Uploaded24h, a.Documents.Uploaded7d, a.Documents.Uploaded30d)
	}
}
