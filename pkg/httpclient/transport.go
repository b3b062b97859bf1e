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
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tombee/reviewdesk/internal/tracing"
)

// NewClient creates a plain HTTP client with secure transport defaults and
// request logging. It does no retries and no token handling; the Pipeline
// adds those on top. The auth package uses it directly for token exchange.
//
// No client-level timeout is set: callers bound each attempt through the
// request context.
func NewClient(cfg Config, logger *slog.Logger) *http.Client {
	return &http.Client{Transport: NewTransport(cfg, logger)}
}

// NewTransport returns the base transport wrapped with logging.
func NewTransport(cfg Config, logger *slog.Logger) http.RoundTripper {
	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,

		// TLS configuration: 1.2 minimum, 1.3 preferred
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			MaxVersion: tls.VersionTLS13,
		},

		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,

		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.AttemptTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return newLoggingTransport(base, cfg.UserAgent, logger)
}

// loggingTransport sets the User-Agent, propagates the correlation ID from
// the request context and logs each physical attempt with a sanitized URL.
type loggingTransport struct {
	base      http.RoundTripper
	userAgent string
	logger    *slog.Logger
}

func newLoggingTransport(base http.RoundTripper, userAgent string, logger *slog.Logger) *loggingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingTransport{base: base, userAgent: userAgent, logger: logger}
}

// RoundTrip implements http.RoundTripper.
func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	if req.Header.Get("User-Agent") == "" && t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if req.Header.Get(tracing.HeaderCorrelationID) == "" {
		tracing.InjectIntoRequest(req.Context(), req)
	}

	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start).Milliseconds()

	attrs := []any{
		"method", req.Method,
		"url", sanitizeURL(req.URL),
		"duration_ms", duration,
	}
	if id := req.Header.Get(tracing.HeaderCorrelationID); id != "" {
		attrs = append(attrs, "correlation_id", id)
	}

	if err != nil {
		t.logger.Debug("http attempt failed", append(attrs, "error", err.Error())...)
		return nil, err
	}

	t.logger.Debug("http attempt", append(attrs, "status", resp.StatusCode)...)
	return resp, nil
}

// sensitiveParams are redacted from logged URLs, matched case-insensitively
// as substrings of the parameter name.
var sensitiveParams = []string{
	"token",
	"password",
	"secret",
	"key",
	"auth",
	"signature",
	"credential",
}

// sanitizeURL redacts sensitive query parameters. Signed file URLs returned
// by the document service carry credentials in their query string.
func sanitizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	if u.RawQuery == "" {
		return u.String()
	}

	q := u.Query()
	for param := range q {
		lower := strings.ToLower(param)
		for _, s := range sensitiveParams {
			if strings.Contains(lower, s) {
				q.Set(param, "[REDACTED]")
				break
			}
		}
	}

	safe := *u
	safe.User = nil
	safe.RawQuery = q.Encode()
	return safe.String()
}
