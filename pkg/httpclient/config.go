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
	"fmt"
	"net/url"
	"time"
)

// Config configures the request pipeline and its transport.
type Config struct {
	// BaseURL is the API origin, e.g. https://admin.example.com.
	// Required.
	BaseURL string

	// AttemptTimeout bounds each physical attempt, not the logical request.
	// Default: 30s. Must be > 0.
	AttemptTimeout time.Duration

	// UserAgent is the User-Agent header value.
	// Required. Must be non-empty.
	UserAgent string

	// RequestsPerSecond enables a client-side rate limit on physical
	// attempts. 0 disables limiting.
	RequestsPerSecond float64

	// Burst is the limiter bucket size. Must be >= 1 when limiting is on.
	Burst int

	// Retry is the transient-failure retry policy.
	Retry Policy

	// ResetBudgetAfterRefresh gives a request replayed after a token
	// refresh a fresh retry budget.
	// Default: true.
	ResetBudgetAfterRefresh bool
}

// DefaultConfig returns a Config with sensible defaults. BaseURL is left
// empty and must be set.
func DefaultConfig() Config {
	return Config{
		AttemptTimeout:          30 * time.Second,
		UserAgent:               "reviewdesk/1.0",
		Burst:                   1,
		Retry:                   DefaultPolicy(),
		ResetBudgetAfterRefresh: true,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("base_url must include a host")
	}

	if c.AttemptTimeout <= 0 {
		return fmt.Errorf("attempt_timeout must be > 0, got %v", c.AttemptTimeout)
	}

	if c.UserAgent == "" {
		return fmt.Errorf("user_agent is required and must be non-empty")
	}

	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must be >= 0, got %v", c.RequestsPerSecond)
	}
	if c.RequestsPerSecond > 0 && c.Burst < 1 {
		return fmt.Errorf("burst must be >= 1 when requests_per_second is set, got %d", c.Burst)
	}

	return c.Retry.Validate()
}
