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

// Package diagnostics implements the doctor command.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/reviewdesk/internal/commands/shared"
	"github.com/tombee/reviewdesk/internal/config"
	"github.com/tombee/reviewdesk/internal/errlog"
	"github.com/tombee/reviewdesk/internal/log"
	"github.com/tombee/reviewdesk/pkg/auth"
	pkgerrors "github.com/tombee/reviewdesk/pkg/errors"
	"github.com/tombee/reviewdesk/pkg/httpclient"
)

// CheckStatus is the outcome of one check.
type CheckStatus string

const (
	StatusOK   CheckStatus = "ok"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// Check is one doctor check.
type Check struct {
	Name           string      `json:"name"`
	Status         CheckStatus `json:"status"`
	Detail         string      `json:"detail"`
	Recommendation string      `json:"recommendation,omitempty"`
}

// DoctorResult contains the overall health check results
type DoctorResult struct {
	ConfigPath     string  `json:"config_path"`
	Checks         []Check `json:"checks"`
	OverallHealthy bool    `json:"overall_healthy"`
}

func (r *DoctorResult) add(c Check) {
	r.Checks = append(r.Checks, c)
	if c.Status == StatusFail {
		r.OverallHealthy = false
	}
}

// NewDoctorCommand creates the doctor command
func NewDoctorCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, credentials and API connectivity",
		Long: `Perform a health check of the reviewdesk setup.

This command checks:
  - Config file is valid and the API base URL is set
  - The credential backend is usable
  - The admin API answers
  - A session is stored and when its access token expires
  - The error log can be opened

Exits non-zero when any check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			result := runDoctor(ctx)
			if shared.GetJSON() {
				if err := shared.EmitResult(cmd.OutOrStdout(), "doctor", result); err != nil {
					return err
				}
			} else {
				writeDoctor(cmd.OutOrStdout(), result)
			}

			if !result.OverallHealthy {
				return &shared.ExitError{Code: shared.ExitFailure, Message: "health check failed"}
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "Overall time limit for the checks")
	return cmd
}

func runDoctor(ctx context.Context) *DoctorResult {
	result := &DoctorResult{OverallHealthy: true}

	result.ConfigPath = shared.GetConfigPath()
	if result.ConfigPath == "" {
		if p, err := config.ConfigPath(); err == nil {
			result.ConfigPath = p
		}
	}

	cfg, err := config.LoadLocal(shared.GetConfigPath())
	if err != nil {
		result.add(Check{
			Name:           "config",
			Status:         StatusFail,
			Detail:         err.Error(),
			Recommendation: "Fix the value with 'reviewdesk config set <key> <value>'.",
		})
		return result
	}
	result.add(checkConfigFile(result.ConfigPath))

	if cfg.API.BaseURL == "" {
		result.add(Check{
			Name:           "api",
			Status:         StatusFail,
			Detail:         "api.base_url is not set",
			Recommendation: "Run 'reviewdesk config set api.base_url https://admin.example.com' or set REVIEWDESK_API_URL.",
		})
	} else {
		result.add(checkAPI(ctx, cfg))
	}

	store, err := shared.OpenStore(cfg)
	if err != nil {
		result.add(Check{
			Name:           "credentials",
			Status:         StatusFail,
			Detail:         err.Error(),
			Recommendation: "Switch backend with 'reviewdesk config set credentials.backend file' and set REVIEWDESK_MASTER_KEY.",
		})
	} else {
		result.add(Check{Name: "credentials", Status: StatusOK, Detail: "backend " + cfg.Credentials.Backend})
		result.add(checkSession(ctx, auth.NewSession(store)))
	}

	result.add(checkErrorLog(ctx, cfg))
	return result
}

func checkConfigFile(path string) Check {
	c := Check{Name: "config", Status: StatusOK, Detail: path}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		c.Detail = "no config file, using defaults and environment"
	}
	return c
}

// checkAPI issues one unauthenticated GET against the base URL. Any HTTP
// answer means the server is reachable.
func checkAPI(ctx context.Context, cfg *config.Config) Check {
	c := Check{Name: "api"}
	client := httpclient.NewClient(cfg.HTTPClient(), log.WithComponent(log.New(cfg.Logger()), "doctor"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.API.BaseURL, nil)
	if err != nil {
		c.Status, c.Detail = StatusFail, err.Error()
		return c
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		c.Status, c.Detail = StatusFail, err.Error()
		c.Recommendation = "Check api.base_url and your network connection."
		return c
	}
	resp.Body.Close()

	latency := time.Since(start).Round(time.Millisecond)
	c.Detail = fmt.Sprintf("%s answered %d in %s", cfg.API.BaseURL, resp.StatusCode, latency)
	c.Status = StatusOK
	if resp.StatusCode >= 500 {
		c.Status = StatusWarn
		c.Recommendation = "The server is reachable but reporting errors."
	}
	return c
}

func checkSession(ctx context.Context, session *auth.Session) Check {
	c := Check{Name: "session"}
	tok, err := session.Token(ctx)
	var nf *pkgerrors.NotFoundError
	switch {
	case errors.As(err, &nf):
		c.Status, c.Detail = StatusWarn, "not logged in"
		c.Recommendation = "Run 'reviewdesk login'."
		return c
	case err != nil:
		c.Status, c.Detail = StatusFail, err.Error()
		return c
	}

	c.Status = StatusOK
	switch {
	case tok.Expiry.IsZero():
		c.Detail = "logged in"
	case time.Now().Before(tok.Expiry):
		c.Detail = "logged in, access token expires " + tok.Expiry.Local().Format(time.RFC1123)
	case tok.RefreshToken != "":
		c.Detail = "logged in, access token expired and will be refreshed on the next request"
	default:
		c.Status, c.Detail = StatusWarn, "access token expired and no refresh token is stored"
		c.Recommendation = "Run 'reviewdesk login'."
	}
	return c
}

func checkErrorLog(ctx context.Context, cfg *config.Config) Check {
	c := Check{Name: "errlog"}
	if !cfg.ErrLog.Enabled {
		c.Status, c.Detail = StatusOK, "disabled"
		return c
	}

	elCfg := cfg.ErrorLog()
	elCfg.Logger = log.New(cfg.Logger())
	store, err := errlog.Open(elCfg)
	if err != nil {
		c.Status, c.Detail = StatusWarn, err.Error()
		c.Recommendation = "Set errlog.path to a writable location or disable it with 'reviewdesk config set errlog.enabled false'."
		return c
	}
	defer store.Close()

	summary, err := store.Summary(ctx)
	if err != nil {
		c.Status, c.Detail = StatusWarn, err.Error()
		return c
	}
	c.Status = StatusOK
	c.Detail = fmt.Sprintf("%d errors recorded", summary.Total)
	return c
}

func writeDoctor(w io.Writer, result *DoctorResult) {
	fmt.Fprintln(w, shared.Header.Render("reviewdesk health check"))
	fmt.Fprintln(w, strings.Repeat("=", 40))

	var recommendations []string
	for _, c := range result.Checks {
		line := fmt.Sprintf("%-12s %s", c.Name, c.Detail)
		switch c.Status {
		case StatusOK:
			fmt.Fprintln(w, shared.RenderOK(line))
		case StatusWarn:
			fmt.Fprintln(w, shared.RenderWarn(line))
		default:
			fmt.Fprintln(w, shared.RenderError(line))
		}
		if c.Recommendation != "" {
			recommendations = append(recommendations, c.Recommendation)
		}
	}

	if len(recommendations) > 0 {
		fmt.Fprintln(w, "\nRecommendations:")
		for _, rec := range recommendations {
			fmt.Fprintf(w, "  - %s\n", rec)
		}
	}
}
