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

package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/tombee/reviewdesk/internal/tracing"
	"github.com/tombee/reviewdesk/pkg/apierror"
	"github.com/tombee/reviewdesk/pkg/notify"
)

// maxResponseBody caps how much of a response is read into memory.
const maxResponseBody = 10 << 20

// TokenSource supplies the current access token. An empty token with a nil
// error means no session is stored.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Refresher obtains a new access token after an unauthorized response.
// Concurrent callers share a single refresh. On failure it returns the
// cause it was given, or the context error if ctx ended first.
type Refresher interface {
	Await(ctx context.Context, cause *apierror.Error, origin string) (string, error)
}

// Request is one logical API call.
type Request struct {
	Method string
	// Path is joined to the configured base URL.
	Path  string
	Query url.Values
	// Body is JSON-encoded when non-nil.
	Body   any
	Header http.Header

	// SkipAuth sends the request without a bearer token.
	SkipAuth bool
	// SkipRefresh makes an unauthorized response terminal. Login and the
	// refresh exchange itself set it.
	SkipRefresh bool

	// Route and Action describe the caller for notifications and for the
	// session-void rule on failed refreshes.
	Route  string
	Action string
	// Handled lists codes the caller recovers from. They are still
	// notified, but display sinks skip them.
	Handled []apierror.Code
}

// Response is a successful (2xx) response with its body fully read.
type Response struct {
	StatusCode    int
	Header        http.Header
	Body          []byte
	CorrelationID string
	// Attempts counts physical attempts, including replays.
	Attempts int
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("empty response body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Pipeline issues logical requests with token attachment, silent refresh
// on expiry, bounded retry of transient failures and exactly one
// notification per terminal failure.
type Pipeline struct {
	cfg       Config
	base      *url.URL
	client    *http.Client
	tokens    TokenSource
	refresher Refresher
	sink      notify.Sink
	limiter   *rate.Limiter
	logger    *slog.Logger
	tracer    trace.Tracer
	sleep     func(ctx context.Context, d time.Duration) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithHTTPClient replaces the default client built from the Config.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Pipeline) { p.client = c }
}

// WithTokenSource sets where access tokens are read from.
func WithTokenSource(ts TokenSource) Option {
	return func(p *Pipeline) { p.tokens = ts }
}

// WithRefresher enables silent token refresh.
func WithRefresher(r Refresher) Option {
	return func(p *Pipeline) { p.refresher = r }
}

// WithSink sets the terminal-error sink.
func WithSink(s notify.Sink) Option {
	return func(p *Pipeline) { p.sink = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithTracer sets the tracer. Defaults to the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

// WithSleeper replaces the backoff wait, for tests.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pipeline) { p.sleep = fn }
}

// New creates a pipeline. Returns an error if the configuration is invalid.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("base_url is invalid: %w", err)
	}

	p := &Pipeline{
		cfg:    cfg,
		base:   base,
		sink:   notify.Discard,
		logger: slog.Default(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.client == nil {
		p.client = NewClient(cfg, p.logger)
	}
	if p.tracer == nil {
		p.tracer = tracing.Tracer()
	}
	if p.sink == nil {
		p.sink = notify.Discard
	}
	if cfg.RequestsPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	return p, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// DoJSON issues the request and decodes a successful body into out. A nil
// out discards the body, and an empty body leaves out untouched.
func (p *Pipeline) DoJSON(ctx context.Context, req *Request, out any) error {
	resp, err := p.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	return resp.Decode(out)
}

// Do issues a logical request. Failures are returned as *apierror.Error
// after being delivered to the sink once.
func (p *Pipeline) Do(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	ctx, corrID := tracing.Ensure(ctx)

	ctx, span := p.tracer.Start(ctx, "api.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.Path),
			attribute.String("correlation_id", corrID.String()),
		),
	)
	defer span.End()

	body, err := encodeBody(req.Body)
	if err != nil {
		eerr := &apierror.EncodeError{Method: req.Method, Endpoint: req.Path, Err: err}
		return nil, p.fail(ctx, span, req, start, 0, apierror.Classify(eerr, corrID.String()))
	}

	logger := p.logger.With("method", req.Method, "path", req.Path, "correlation_id", corrID.String())

	var (
		attempt     int
		physical    int
		authRetried bool
		token       string
	)

	for {
		physical++
		resp, cerr := p.send(ctx, req, body, corrID.String(), token)
		if cerr == nil {
			resp.Attempts = physical
			span.SetAttributes(attribute.Int("http.attempts", physical), attribute.Int("http.response.status_code", resp.StatusCode))
			recordDuration(req.Method, "ok", time.Since(start).Seconds())
			return resp, nil
		}

		if cerr.Code() == apierror.CodeUnauthorized && !req.SkipRefresh && !authRetried && p.refresher != nil {
			authRetried = true
			span.AddEvent("token_refresh")
			logger.Debug("access token rejected, awaiting refresh")

			fresh, rerr := p.refresher.Await(ctx, cerr, req.Route)
			if rerr != nil {
				recordReplay("failed")
				werr := &apierror.RequestError{Method: req.Method, Endpoint: req.Path, Err: rerr}
				return nil, p.fail(ctx, span, req, start, physical, apierror.Classify(werr, corrID.String()))
			}
			recordReplay("replayed")
			token = fresh
			if p.cfg.ResetBudgetAfterRefresh {
				attempt = 0
			}
			continue
		}

		if !p.cfg.Retry.ShouldRetry(cerr, attempt) {
			return nil, p.fail(ctx, span, req, start, physical, cerr)
		}

		attempt++
		delay := p.cfg.Retry.Backoff(cerr, attempt)
		recordRetry(string(cerr.Code()))
		span.AddEvent("retry", trace.WithAttributes(
			attribute.Int("retry.attempt", attempt),
			attribute.String("retry.code", string(cerr.Code())),
			attribute.Int64("retry.delay_ms", delay.Milliseconds()),
		))
		logger.Debug("retrying request",
			"attempt", attempt,
			"code", string(cerr.Code()),
			"delay_ms", delay.Milliseconds(),
		)

		if err := p.sleep(ctx, delay); err != nil {
			werr := &apierror.RequestError{Method: req.Method, Endpoint: req.Path, Err: err}
			return nil, p.fail(ctx, span, req, start, physical, apierror.Classify(werr, corrID.String()))
		}
	}
}

// fail records a terminal error and delivers it to the sink exactly once.
func (p *Pipeline) fail(ctx context.Context, span trace.Span, req *Request, start time.Time, physical int, cerr *apierror.Error) error {
	span.SetAttributes(attribute.Int("http.attempts", physical))
	if cerr.HTTPStatus() != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", cerr.HTTPStatus()))
	}
	span.RecordError(cerr)
	span.SetStatus(codes.Error, string(cerr.Code()))
	recordDuration(req.Method, string(cerr.Code()), time.Since(start).Seconds())

	p.notify(context.WithoutCancel(ctx), notify.Event{
		Err:     cerr,
		Context: notify.Context{Route: req.Route, Action: req.Action, Handled: req.Handled},
	})
	return cerr
}

// notify delivers ev to the sink. A panicking sink is logged and does not
// reach the caller.
func (p *Pipeline) notify(ctx context.Context, ev notify.Event) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("notification sink panicked",
				"panic", fmt.Sprint(r),
				"code", string(ev.Err.Code()),
			)
		}
	}()
	p.sink.Notify(ctx, ev)
}

// send performs one physical attempt under its own timeout.
func (p *Pipeline) send(ctx context.Context, req *Request, body []byte, corrID, token string) (*Response, *apierror.Error) {
	transportErr := func(err error) *apierror.Error {
		recordAttempt(req.Method, "transport_error")
		return apierror.Classify(&apierror.RequestError{Method: req.Method, Endpoint: req.Path, Err: err}, corrID)
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			return nil, transportErr(err)
		}
	}

	actx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(actx, req.Method, p.resolve(req), reader)
	if err != nil {
		return nil, transportErr(err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set(tracing.HeaderCorrelationID, corrID)

	if !req.SkipAuth {
		if token == "" && p.tokens != nil {
			token, err = p.tokens.AccessToken(ctx)
			if err != nil {
				p.logger.Warn("failed to read access token", "error", err)
			}
		}
		if token != "" {
			(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(httpReq)
		}
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, transportErr(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, transportErr(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		cerr := apierror.Classify(&apierror.ResponseError{
			Method:     req.Method,
			Endpoint:   req.Path,
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       data,
		}, corrID)
		recordAttempt(req.Method, string(cerr.Code()))
		return nil, cerr
	}

	recordAttempt(req.Method, "ok")
	return &Response{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header,
		Body:          data,
		CorrelationID: corrID,
	}, nil
}

// resolve joins the request path and query onto the base URL.
func (p *Pipeline) resolve(req *Request) string {
	u := *p.base
	u.Path = u.Path + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}
	return u.String()
}

func encodeBody(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}
