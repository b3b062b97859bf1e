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

package shared

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tombee/reviewdesk/internal/config"
	"github.com/tombee/reviewdesk/internal/credentials"
	"github.com/tombee/reviewdesk/internal/errlog"
	"github.com/tombee/reviewdesk/internal/log"
	"github.com/tombee/reviewdesk/internal/tracing"
	"github.com/tombee/reviewdesk/pkg/adminapi"
	"github.com/tombee/reviewdesk/pkg/auth"
	"github.com/tombee/reviewdesk/pkg/httpclient"
	"github.com/tombee/reviewdesk/pkg/notify"
	"github.com/tombee/reviewdesk/pkg/review"
)

// SessionExpiredMessage is printed when a token refresh fails outside the
// login flow.
const SessionExpiredMessage = "session expired, run `reviewdesk login`"

// App is the wiring shared by every command: configuration, logging, the
// credential-backed session, the request pipeline and its sinks.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Session *auth.Session
	API     *adminapi.Client
	Review  *review.Service
	History *notify.History
	// ErrLog is nil when the persistent error log is disabled or could
	// not be opened.
	ErrLog *errlog.Store

	Stdout  io.Writer
	Stderr  io.Writer
	spinner *Spinner
	tracer  *tracing.Provider
}

// AppOptions adjusts NewApp for tests and local-only commands.
type AppOptions struct {
	// Local skips the API section requirement and the pipeline.
	Local bool
	// Store overrides the configured credential backend.
	Store credentials.Store
	// Stdout and Stderr default to the process streams.
	Stdout io.Writer
	Stderr io.Writer
}

// storeOverride replaces the configured credential backend in tests.
var storeOverride credentials.Store

// SetStoreForTest makes every App use store and returns a restore func.
func SetStoreForTest(store credentials.Store) func() {
	prev := storeOverride
	storeOverride = store
	return func() { storeOverride = prev }
}

// OpenStore returns the test override or the configured backend.
func OpenStore(cfg *config.Config) (credentials.Store, error) {
	if storeOverride != nil {
		return storeOverride, nil
	}
	return credentials.Open(cfg.CredentialOptions())
}

// OpenApp builds the App for cmd, writing to the command's streams.
func OpenApp(cmd *cobra.Command, local bool) (*App, error) {
	return NewApp(AppOptions{
		Local:  local,
		Store:  storeOverride,
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
	})
}

// CommandContext tags the command's context with its path so errors
// record which command raised them.
func CommandContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return adminapi.WithRoute(ctx, cmd.CommandPath())
}

// NewApp loads configuration and builds the runtime.
func NewApp(opts AppOptions) (*App, error) {
	load := config.Load
	if opts.Local {
		load = config.LoadLocal
	}
	cfg, err := load(GetConfigPath())
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Stdout:  opts.Stdout,
		Stderr:  opts.Stderr,
		History: notify.NewHistory(notify.DefaultHistorySize),
		spinner: NewSpinner(),
	}
	if a.Stdout == nil {
		a.Stdout = os.Stdout
	}
	if a.Stderr == nil {
		a.Stderr = os.Stderr
	}

	logCfg := cfg.Logger()
	if GetVerbose() {
		logCfg.Level = "debug"
	}
	a.Logger = log.New(logCfg)

	if cfg.ErrLog.Enabled {
		elCfg := cfg.ErrorLog()
		elCfg.Logger = log.WithComponent(a.Logger, "errlog")
		store, err := errlog.Open(elCfg)
		if err != nil {
			// The error log is a diagnostic aid; commands still run without it.
			a.Logger.Warn("error log unavailable", log.Error(err))
		} else {
			a.ErrLog = store
		}
	}

	if opts.Local {
		return a, nil
	}

	store := opts.Store
	if store == nil {
		store, err = OpenStore(cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	a.Session = auth.NewSession(store)

	v, _, _ := GetVersion()
	traceOpts, err := tracing.ProviderOptions(context.Background(), cfg.TraceExport(a.Stderr))
	if err != nil {
		a.Logger.Warn("span export disabled", log.Error(err))
	}
	if a.tracer, err = tracing.NewProvider("reviewdesk", v, traceOpts...); err != nil {
		a.Logger.Debug("tracing disabled", log.Error(err))
	}

	httpCfg := cfg.HTTPClient()
	exchanger := auth.NewHTTPExchanger(httpCfg, cfg.Auth.RefreshPath, log.WithComponent(a.Logger, "auth"))
	coordinator := auth.NewCoordinator(a.Session, exchanger,
		auth.WithRefreshTimeout(cfg.Auth.RefreshTimeout),
		auth.WithLoginRoute(cfg.Auth.LoginRoute),
		auth.WithCoordinatorLogger(log.WithComponent(a.Logger, "auth")),
		auth.WithSessionHandler(auth.SessionHandlerFunc(func() {
			a.spinner.Stop()
			fmt.Fprintln(a.Stderr, RenderWarn(SessionExpiredMessage))
		})),
	)

	pipeline, err := httpclient.New(httpCfg,
		httpclient.WithTokenSource(a.Session),
		httpclient.WithRefresher(coordinator),
		httpclient.WithSink(a.sinks()),
		httpclient.WithLogger(log.WithComponent(a.Logger, "http")),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.API = adminapi.New(pipeline, a.Session, adminapi.Options{
		LoginPath:  cfg.Auth.LoginPath,
		LoginRoute: cfg.Auth.LoginRoute,
	})
	a.Review = review.NewService(a.API.Documents, a.API.Workers, log.WithComponent(a.Logger, "review"))
	return a, nil
}

// sinks fans terminal errors out to every consumer. The console is left
// out in JSON mode, where the error is part of the output.
func (a *App) sinks() notify.Sink {
	fan := notify.NewFanout(
		notify.NewLogSink(log.WithComponent(a.Logger, "notify")),
		notify.MetricsSink{},
		a.History,
	).WithLogger(a.Logger)

	if !GetJSON() {
		console := notify.NewConsole(a.Stderr)
		fan.Add(notify.SinkFunc(func(ctx context.Context, ev notify.Event) {
			a.spinner.Stop()
			console.Notify(ctx, ev)
		}))
	}
	if a.ErrLog != nil {
		fan.Add(a.ErrLog)
	}
	return fan
}

// Run calls fn with a progress spinner showing message.
func (a *App) Run(message string, fn func() error) error {
	a.spinner.Start(message)
	defer a.spinner.Stop()
	return fn()
}

// Output writes data as JSON in --json mode or calls human otherwise.
func (a *App) Output(command string, data any, human func(w io.Writer)) error {
	if GetJSON() {
		return EmitResult(a.Stdout, command, data)
	}
	human(a.Stdout)
	return nil
}

// Infof prints a status line unless --quiet or --json is set.
func (a *App) Infof(format string, args ...any) {
	if GetQuiet() || GetJSON() {
		return
	}
	fmt.Fprintf(a.Stdout, format+"\n", args...)
}

// RequireSession fails with an auth error when no token is stored.
func (a *App) RequireSession(ctx context.Context) error {
	ok, err := a.API.Auth.IsAuthenticated(ctx)
	if err != nil {
		return NewAuthError("cannot read stored session", err)
	}
	if !ok {
		return NewAuthError("not logged in, run `reviewdesk login`", nil)
	}
	return nil
}

// Close flushes the error log, tracer and metrics textfile.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if a.ErrLog != nil {
		errs = append(errs, a.ErrLog.Close())
	}
	if a.tracer != nil {
		errs = append(errs, a.tracer.Shutdown(ctx))
	}
	if path := a.Config.Metrics.Textfile; path != "" {
		if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
			a.Logger.Warn("metrics textfile not written", "path", path, log.Error(err))
			errs = append(errs, fmt.Errorf("failed to write metrics to %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}
