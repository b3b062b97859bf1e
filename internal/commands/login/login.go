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

// Package login implements the login, logout and whoami commands.
package login

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/reviewdesk/internal/commands/shared"
	"github.com/tombee/reviewdesk/pkg/adminapi"
	"github.com/tombee/reviewdesk/pkg/auth"
	pkgerrors "github.com/tombee/reviewdesk/pkg/errors"
)

// NewLoginCommand creates the login command.
func NewLoginCommand() *cobra.Command {
	var (
		username      string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Long: `Sign in to the admin API. The access and refresh tokens are stored in
the configured credential backend (the system keychain by default).

In scripts, pass --username and pipe the password with --password-stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := shared.OpenApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			if username == "" {
				if shared.IsNonInteractive() {
					return &pkgerrors.ValidationError{Field: "username", Message: "is required", Hint: "Pass --username."}
				}
				if username, err = shared.PromptLine(cmd.InOrStdin(), cmd.ErrOrStderr(), "Username: "); err != nil {
					return err
				}
			}

			password, err := readPassword(cmd, passwordStdin)
			if err != nil {
				return err
			}

			ctx := adminapi.WithRoute(cmd.Context(), app.Config.Auth.LoginRoute)
			var identity *auth.Identity
			err = app.Run("Signing in", func() error {
				identity, err = app.API.Auth.Login(ctx, username, password)
				return err
			})
			if err != nil {
				return err
			}

			return app.Output("login", identity, func(w io.Writer) {
				fmt.Fprintln(w, shared.RenderOK("Logged in as "+identity.DisplayName()))
			})
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	return cmd
}

func readPassword(cmd *cobra.Command, fromStdin bool) (string, error) {
	if fromStdin {
		raw, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 4096))
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimRight(string(raw), "\r\n"), nil
	}
	if shared.IsNonInteractive() {
		return "", &pkgerrors.ValidationError{Field: "password", Message: "is required", Hint: "Pipe it with --password-stdin."}
	}
	return shared.PromptPassword(cmd.ErrOrStderr(), "Password: ")
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := shared.OpenApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.API.Auth.Logout(cmd.Context()); err != nil {
				return fmt.Errorf("failed to clear session: %w", err)
			}
			app.Infof("%s", shared.RenderOK("Logged out"))
			return nil
		},
	}
}

// whoami is the JSON shape of the whoami command.
type whoami struct {
	*auth.Identity
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// NewWhoamiCommand creates the whoami command.
func NewWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in reviewer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := shared.OpenApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			if err := app.RequireSession(ctx); err != nil {
				return err
			}
			out, err := describe(ctx, app)
			if err != nil {
				return err
			}

			return app.Output("whoami", out, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s\n", shared.RenderLabel("user:    "), out.DisplayName())
				fmt.Fprintf(w, "%s %s\n", shared.RenderLabel("id:      "), out.ID)
				if out.Email != "" {
					fmt.Fprintf(w, "%s %s\n", shared.RenderLabel("email:   "), out.Email)
				}
				if out.ExpiresAt != nil {
					state := "valid"
					if time.Now().After(*out.ExpiresAt) {
						state = "expired, refreshed on next request"
					}
					fmt.Fprintf(w, "%s %s (%s)\n", shared.RenderLabel("expires: "), out.ExpiresAt.Local().Format(time.RFC1123), state)
				}
			})
		},
	}
}

func describe(ctx context.Context, app *shared.App) (*whoami, error) {
	identity, err := app.API.Auth.Current(ctx)
	if err != nil {
		return nil, shared.NewAuthError("no stored identity, run `reviewdesk login`", err)
	}
	out := &whoami{Identity: identity}
	if tok, err := app.Session.Token(ctx); err == nil && !tok.Expiry.IsZero() {
		out.ExpiresAt = &tok.Expiry
	}
	return out, nil
}
