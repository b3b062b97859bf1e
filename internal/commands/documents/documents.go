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

// Package documents implements the documents command group.
package documents

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/reviewdesk/internal/commands/completion"
	"github.com/tombee/reviewdesk/internal/commands/shared"
	"github.com/tombee/reviewdesk/pkg/adminapi"
	"github.com/tombee/reviewdesk/pkg/review"
)

// NewCommand creates the documents command with subcommands.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs"},
		Short:   "Review worker documents",
		Long: `Review the documents workers upload for verification.

Categories are given as cv, background, degree or letter.`,
	}

	cmd.AddCommand(newPendingCommand())
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newStatusCommand())
	cmd.AddCommand(newRequirementsCommand())
	cmd.AddCommand(newApproveCommand())
	cmd.AddCommand(newRejectCommand())
	cmd.AddCommand(newDeleteCommand())
	cmd.AddCommand(newURLCommand())
	return cmd
}

func newPendingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List documents awaiting review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := shared.OpenApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			page, err := app.API.Documents.Pending(shared.CommandContext(cmd))
			if err != nil {
				return err
			}
			return app.Output("documents pending", page, func(w io.Writer) {
				if len(page.Items) == 0 {
					fmt.Fprintln(w, "No documents awaiting review.")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "WORKER\tCATEGORY\tDOCUMENT\tFILE\tUPLOADED")
				for _, d := range page.Items {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.WorkerID, label(&d), d.ID, d.FileName, formatTime(d.UploadedAt))
				}
				tw.Flush()
				fmt.Fprintf(w, "\n%d pending\n", page.Count)
			})
		},
	}
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list <worker-id>",
		Short: "List a worker's documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := shared.OpenApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			c, err := app.API.Documents.ForWorkerOrEmpty(shared.CommandContext(cmd), args[0])
			if err != nil {
				return err
			}
			return app.Output("documents list", c, func(w io.Writer) {
				writeDocuments(w, c.All())
			})
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <worker-id>",
		Short: "Show review progress and the suggested decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := shared.OpenApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			var r *review.Report
			err = app.Run("Loading documents", func() error {
				r, err = app.Review.Report(shared.CommandContext(cmd), args[0])
				return err
			})
			if err != nil {
				return err
			}
			return app.Output("documents status", r, func(w io.Writer) {
				writeReport(w, r)
			})
		},
	}
}

func newRequirementsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "requirements <worker-id>",
		Short: "Check the worker's minimum document set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := shared.OpenApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			reqs, err := app.API.Documents.Requirements(shared.CommandContext(cmd), args[0])
			if err != nil {
				return err
			}
			return app.Output("documents requirements", reqs, func(w io.Writer) {
				fmt.Fprintln(w, check(reqs.HasCV, "curriculum vitae"))
				fmt.Fprintln(w, check(reqs.HasBackgroundCheck, "background check"))
				fmt.Fprintln(w, check(reqs.HasDegree, "degree"))
				fmt.Fprintln(w, check(reqs.HasMinimumLetters, fmt.Sprintf("recommendation letters (%d)", reqs.LetterCount)))
				if reqs.Complete {
					fmt.Fprintln(w, "\n"+shared.RenderOK("requirements met"))
				} else {
					fmt.Fprintln(w, "\n"+shared.RenderWarn("requirements not met"))
				}
			})
		},
	}
}

func newApproveCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "approve <worker-id> <category> <document-id>",
		Short:             "Approve a document",
		Args:              cobra.ExactArgs(3),
		ValidArgsFunction: completion.AtPosition(1, completion.Categories...),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args)
			if err != nil {
				return err
			}
			app, err := shared.OpenApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.API.Documents.Approve(shared.CommandContext(cmd), ref); err != nil {
				return err
			}
			app.Infof("%s", shared.RenderOK("Approved "+ref.DocumentID))
			return nil
		},
	}
}

func newRejectCommand() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:               "reject <worker-id> <category> <document-id>",
		Short:             "Reject a document with a reason",
		Args:              cobra.ExactArgs(3),
		ValidArgsFunction: completion.AtPosition(1, completion.Categories...),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args)
			if err != nil {
				return err
			}
			app, err := shared.OpenApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.API.Documents.Reject(shared.CommandContext(cmd), ref, reason); err != nil {
				return err
			}
			app.Infof("%s", shared.RenderOK("Rejected "+ref.DocumentID))
			return nil
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Why the document was rejected (required)")
	return cmd
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "delete <worker-id> <category> <document-id>",
		Short:             "Delete a document",
		Args:              cobra.ExactArgs(3),
		ValidArgsFunction: completion.AtPosition(1, completion.Categories...),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args)
			if err != nil {
				return err
			}
			app, err := shared.OpenApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.API.Documents.Delete(shared.CommandContext(cmd), ref); err != nil {
				return err
			}
			app.Infof("%s", shared.RenderOK("Deleted "+ref.DocumentID))
			return nil
		},
	}
}

func newURLCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "url <worker-id> <category> <filename>",
		Short:             "Print a download URL for a document file",
		Args:              cobra.ExactArgs(3),
		ValidArgsFunction: completion.AtPosition(1, completion.Categories...),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, sub, err := adminapi.ParseCategory(args[1])
			if err != nil {
				return err
			}
			app, err := shared.OpenApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			u, err := app.API.Documents.FileURL(shared.CommandContext(cmd), args[0], category, sub, args[2])
			if err != nil {
				return err
			}
			return app.Output("documents url", map[string]string{"url": u}, func(w io.Writer) {
				fmt.Fprintln(w, u)
			})
		},
	}
}

func parseRef(args []string) (adminapi.DocumentRef, error) {
	category, sub, err := adminapi.ParseCategory(args[1])
	if err != nil {
		return adminapi.DocumentRef{}, err
	}
	return adminapi.DocumentRef{WorkerID: args[0], Category: category, Subcategory: sub, DocumentID: args[2]}, nil
}

func writeDocuments(w io.Writer, docs []*adminapi.Document) {
	if len(docs) == 0 {
		fmt.Fprintln(w, "Worker has not uploaded any documents.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tDOCUMENT\tSTATUS\tFILE\tUPLOADED\tREVIEWED")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			label(d), d.ID, shared.RenderDocumentStatus(d.Status), d.FileName,
			formatTime(d.UploadedAt), formatTime(d.ReviewedAt))
	}
	tw.Flush()

	for _, d := range docs {
		if d.Status == adminapi.StatusRejected && d.RejectionReason != "" {
			fmt.Fprintf(w, "%s %s: %s\n", shared.StatusError.Render(shared.SymbolError), d.ID, d.RejectionReason)
		}
	}
}

func writeReport(w io.Writer, r *review.Report) {
	s := r.Status
	fmt.Fprintln(w, shared.Header.Render("Worker "+r.WorkerID))
	fmt.Fprintln(w, s.Message)
	if !s.HasDocuments {
		return
	}

	fmt.Fprintf(w, "\n%s %d total, %d reviewed, %d pending, %d approved, %d rejected\n",
		shared.RenderLabel("documents:"), s.Total, s.Reviewed, s.Pending, s.Approved, s.Rejected)
	if !s.LastReviewedAt.IsZero() {
		by := s.LastReviewedBy
		if by == "" {
			by = "unknown"
		}
		fmt.Fprintf(w, "%s %s by %s\n", shared.RenderLabel("last review:"), s.LastReviewedAt.Local().Format(time.DateTime), by)
	}
	if len(s.NewSinceReview) > 0 {
		ids := make([]string, 0, len(s.NewSinceReview))
		for _, d := range s.NewSinceReview {
			ids = append(ids, d.ID)
		}
		fmt.Fprintf(w, "%s %s\n", shared.RenderLabel("new since review:"), strings.Join(ids, ", "))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, check(r.Checklist.HasCV, "curriculum vitae"))
	fmt.Fprintln(w, check(r.Checklist.HasBackgroundCheck, "background check"))
	fmt.Fprintln(w, check(r.Checklist.Degrees > 0 || r.Checklist.Letters >= review.MinLetters,
		fmt.Sprintf("degree (%d) or %d+ letters (%d)", r.Checklist.Degrees, review.MinLetters, r.Checklist.Letters)))

	fmt.Fprintf(w, "\n%s %s\n", shared.RenderLabel("suggested decision:"), shared.Bold.Render(string(r.Suggested)))
}

func check(ok bool, label string) string {
	if ok {
		return shared.RenderOK(label)
	}
	return shared.RenderError(label)
}

func label(d *adminapi.Document) string {
	if d.Subcategory != "" {
		return string(d.Subcategory)
	}
	return string(d.Category)
}

func formatTime(ts adminapi.Timestamp) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Time().Local().Format(time.DateTime)
}
