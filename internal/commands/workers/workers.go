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

// Package workers implements the workers command group.
package workers

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tombee/reviewdesk/internal/commands/completion"
	"github.com/tombee/reviewdesk/internal/commands/shared"
	"github.com/tombee/reviewdesk/pkg/adminapi"
	pkgerrors "github.com/tombee/reviewdesk/pkg/errors"
	"github.com/tombee/reviewdesk/pkg/review"
)

// NewCommand creates the workers command with subcommands.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "Manage workers and record verification",
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newStatsCommand())
	cmd.AddCommand(newVerifyCommand())
	cmd.AddCommand(newCreateCommand())
	cmd.AddCommand(newUpdateCommand())
	cmd.AddCommand(newDeleteCommand())
	return cmd
}

func newListCommand() *cobra.Command {
	var (
		filters   adminapi.WorkerFilters
		available string
		online    string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if filters.Available, err = optionalBool("available", available); err != nil {
				return err
			}
			if filters.Online, err = optionalBool("online", online); err != nil {
				return err
			}

			app, err := shared.OpenApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			page, err := app.API.Workers.List(shared.CommandContext(cmd), filters)
			if err != nil {
				return err
			}
			return app.Output("workers list", page, func(w io.Writer) {
				if len(page.Items) == 0 {
					fmt.Fprintln(w, "No workers found.")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tWORK\tAVAILABLE\tRATING\tVERIFICATION")
				for _, wk := range page.Items {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%.1f\t%s\n",
						wk.ID, wk.FullName(), wk.Work, wk.IsAvailable, wk.Rating, verification(&wk))
				}
				tw.Flush()
				if page.HasNext {
					fmt.Fprintf(w, "\nshowing %d of %d\n", len(page.Items), page.Count)
				}
			})
		},
	}

	cmd.Flags().StringVar(&filters.Category, "category", "", "Filter by work category")
	cmd.Flags().StringVar(&filters.Search, "search", "", "Search by name or email")
	cmd.Flags().StringVar(&available, "available", "", "Filter by availability (true|false)")
	cmd.Flags().StringVar(&online, "online", "", "Filter by online state (true|false)")
	return cmd
}

func optionalBool(name, v string) (*bool, error) {
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, &pkgerrors.ValidationError{Field: name, Message: fmt.Sprintf("must be true or false, got %q", v)}
	}
	return &b, nil
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <worker-id>",
		Short: "Show a worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := shared.OpenApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			wk, err := app.API.Workers.Get(shared.CommandContext(cmd), args[0])
			if err != nil {
				return err
			}
			return app.Output("workers get", wk, func(w io.Writer) {
				fmt.Fprintln(w, shared.Header.Render(wk.FullName()))
				row := func(k, v string) {
					if v != "" {
						fmt.Fprintf(w, "%s %s\n", shared.RenderLabel(fmt.Sprintf("%-13s", k+":")), v)
					}
				}
				row("id", wk.ID)
				row("email", wk.Email)
				row("phone", wk.Phone)
				row("work", wk.Work)
				row("experience", wk.Experience)
				row("rating", fmt.Sprintf("%.1f (%d ratings)", wk.Rating, wk.TotalRatings))
				row("available", strconv.FormatBool(wk.IsAvailable))
				row("online", strconv.FormatBool(wk.IsOnline))
				row("verification", verification(wk))
			})
		},
	}
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show worker statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := shared.OpenApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			stats, err := app.API.Workers.Statistics(shared.CommandContext(cmd))
			if err != nil {
				return err
			}
			return app.Output("workers stats", stats, func(w io.Writer) {
				fmt.Fprintf(w, "total %d, available %d, online %d, verified %d\n",
					stats.Total, stats.Available, stats.Online, stats.Verified)
				WriteCounts(w, stats.ByCategory)
			})
		},
	}
}

// WriteCounts prints a category breakdown sorted by name.
func WriteCounts(w io.Writer, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(tw, "  %s\t%d\n", k, counts[k])
	}
	tw.Flush()
}

func newVerifyCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "verify <worker-id> approve|reject",
		Short: "Record the final verification decision",
		Long: `Record the final verification decision for a worker.

Approval requires every document to be reviewed and the minimum set
(curriculum vitae, background check, and a degree or two recommendation
letters) to be present. Use --force to approve anyway.`,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completion.AtPosition(1, completion.Decisions...),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := shared.OpenApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			decision := review.Decision(args[1])
			err = app.Run("Recording decision", func() error {
				return app.Review.Finalize(shared.CommandContext(cmd), args[0], decision, force)
			})
			if err != nil {
				return err
			}
			app.Infof("%s", shared.RenderOK(fmt.Sprintf("Worker %s: %s", args[0], decision)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Approve even when documents are pending or missing")
	return cmd
}

func newCreateCommand() *cobra.Command {
	var (
		in                       adminapi.WorkerInput
		latitude, longitude, pph float64
	)

	cmd := &cobra.Command{
		Use:   "create <worker-id>",
		Short: "Register a worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.ID = args[0]
			flags := cmd.Flags()
			if flags.Changed("latitude") {
				in.Latitude = &latitude
			}
			if flags.Changed("longitude") {
				in.Longitude = &longitude
			}
			if flags.Changed("price-per-hour") {
				in.PricePerHour = &pph
			}

			app, err := shared.OpenApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			var wk *adminapi.Worker
			err = app.Run("Creating worker", func() error {
				wk, err = app.API.Workers.Create(shared.CommandContext(cmd), in)
				return err
			})
			if err != nil {
				return err
			}
			return app.Output("workers create", wk, func(w io.Writer) {
				fmt.Fprintln(w, shared.RenderOK(fmt.Sprintf("Created worker %s (%s)", wk.ID, wk.FullName())))
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.Name, "name", "", "First name (required)")
	f.StringVar(&in.LastName, "last-name", "", "Last name (required)")
	f.StringVar(&in.Email, "email", "", "Email address (required)")
	f.StringVar(&in.Work, "work", "", "Work category (required)")
	f.StringVar(&in.Phone, "phone", "", "Phone number")
	f.StringVar(&in.Description, "description", "", "Profile description")
	f.StringVar(&in.Experience, "experience", "", "Experience summary")
	f.Float64Var(&latitude, "latitude", 0, "Latitude")
	f.Float64Var(&longitude, "longitude", 0, "Longitude")
	f.Float64Var(&pph, "price-per-hour", 0, "Hourly rate")
	return cmd
}

func newUpdateCommand() *cobra.Command {
	var (
		name, lastName, email, work, phone, description, experience string
		latitude, longitude, pph                                    float64
		available, online                                           string
	)

	cmd := &cobra.Command{
		Use:   "update <worker-id>",
		Short: "Change worker details",
		Long: `Change worker details. Only the flags given are sent.

--available and --online are recorded through their own endpoints.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			var patch adminapi.WorkerPatch
			strs := []struct {
				flag string
				val  *string
				dst  **string
			}{
				{"name", &name, &patch.Name},
				{"last-name", &lastName, &patch.LastName},
				{"email", &email, &patch.Email},
				{"work", &work, &patch.Work},
				{"phone", &phone, &patch.Phone},
				{"description", &description, &patch.Description},
				{"experience", &experience, &patch.Experience},
			}
			for _, s := range strs {
				if flags.Changed(s.flag) {
					*s.dst = s.val
				}
			}
			if flags.Changed("latitude") {
				patch.Latitude = &latitude
			}
			if flags.Changed("longitude") {
				patch.Longitude = &longitude
			}
			if flags.Changed("price-per-hour") {
				patch.PricePerHour = &pph
			}

			isAvailable, err := optionalBool("available", available)
			if err != nil {
				return err
			}
			isOnline, err := optionalBool("online", online)
			if err != nil {
				return err
			}
			if patch.IsEmpty() && isAvailable == nil && isOnline == nil {
				return &pkgerrors.ValidationError{Message: "no fields to update", Hint: "pass at least one flag, see --help"}
			}

			app, err := shared.OpenApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := shared.CommandContext(cmd)
			id := args[0]
			err = app.Run("Updating worker", func() error {
				if !patch.IsEmpty() {
					if err := app.API.Workers.Patch(ctx, id, patch); err != nil {
						return err
					}
				}
				if isAvailable != nil {
					if err := app.API.Workers.SetAvailability(ctx, id, *isAvailable); err != nil {
						return err
					}
				}
				if isOnline != nil {
					return app.API.Workers.SetOnline(ctx, id, *isOnline)
				}
				return nil
			})
			if err != nil {
				return err
			}
			app.Infof("%s", shared.RenderOK("Updated worker "+id))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&name, "name", "", "First name")
	f.StringVar(&lastName, "last-name", "", "Last name")
	f.StringVar(&email, "email", "", "Email address")
	f.StringVar(&work, "work", "", "Work category")
	f.StringVar(&phone, "phone", "", "Phone number")
	f.StringVar(&description, "description", "", "Profile description")
	f.StringVar(&experience, "experience", "", "Experience summary")
	f.Float64Var(&latitude, "latitude", 0, "Latitude")
	f.Float64Var(&longitude, "longitude", 0, "Longitude")
	f.Float64Var(&pph, "price-per-hour", 0, "Hourly rate")
	f.StringVar(&available, "available", "", "Mark as taking jobs (true|false)")
	f.StringVar(&online, "online", "", "Mark as online (true|false)")
	return cmd
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <worker-id>",
		Short: "Delete a worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := shared.OpenApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.API.Workers.Delete(shared.CommandContext(cmd), args[0]); err != nil {
				return err
			}
			app.Infof("%s", shared.RenderOK("Deleted worker "+args[0]))
			return nil
		},
	}
}

func verification(w *adminapi.Worker) string {
	if w.Verification == nil || w.Verification.Status == "" {
		return "-"
	}
	return string(w.Verification.Status)
}
