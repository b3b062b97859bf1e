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
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tombee/reviewdesk/pkg/apierror"
)

func statusErr(status int, header http.Header) *apierror.Error {
	if header == nil {
		header = http.Header{}
	}
	return apierror.Classify(&apierror.ResponseError{Method: "GET", Endpoint: "/x", StatusCode: status, Header: header}, "")
}

func TestPolicy_Delay(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, 1*time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 16*time.Second, p.Delay(5))
	assert.Equal(t, 30*time.Second, p.Delay(6))
	assert.Equal(t, 30*time.Second, p.Delay(60))
	assert.Equal(t, 1*time.Second, p.Delay(0))
}

func TestPolicy_DelayIsMonotonic(t *testing.T) {
	p := Policy{MaxRetries: 10, BaseDelay: 300 * time.Millisecond, MaxDelay: 10 * time.Second}
	prev := time.Duration(0)
	for attempt := 1; attempt <= 20; attempt++ {
		d := p.Delay(attempt)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		assert.LessOrEqual(t, d, p.MaxDelay, "attempt %d", attempt)
		prev = d
	}
}

func TestPolicy_ShouldRetry(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name    string
		err     *apierror.Error
		attempt int
		want    bool
	}{
		{"service unavailable first", statusErr(503, nil), 0, true},
		{"service unavailable last allowed", statusErr(503, nil), 2, true},
		{"budget exhausted", statusErr(503, nil), 3, false},
		{"internal server error", statusErr(500, nil), 0, true},
		{"rate limit", statusErr(429, nil), 1, true},
		{"unauthorized never", statusErr(401, nil), 0, false},
		{"forbidden never", statusErr(403, nil), 0, false},
		{"validation never", statusErr(422, nil), 0, false},
		{"not found never", statusErr(404, nil), 0, false},
		{"unknown never", statusErr(418, nil), 0, false},
		{"nil error", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ShouldRetry(tt.err, tt.attempt))
		})
	}
}

func TestPolicy_BackoffHonoursRetryAfter(t *testing.T) {
	p := DefaultPolicy()

	h := http.Header{}
	h.Set("Retry-After", "5")
	limited := statusErr(429, h)
	assert.Equal(t, 5*time.Second, p.Backoff(limited, 1))
	assert.Equal(t, 8*time.Second, p.Backoff(limited, 4))

	// Default Retry-After of 60s is capped.
	assert.Equal(t, 30*time.Second, p.Backoff(statusErr(429, nil), 1))

	assert.Equal(t, 2*time.Second, p.Backoff(statusErr(503, nil), 2))
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.NoError(t, Policy{}.Validate())
	assert.Error(t, Policy{MaxRetries: -1}.Validate())
	assert.Error(t, Policy{MaxRetries: 1}.Validate())
	assert.Error(t, Policy{MaxRetries: 1, BaseDelay: time.Second, MaxDelay: time.Millisecond}.Validate())
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, sleepContext(ctx, 0), context.Canceled)
}

func TestConfig_Validate(t *testing.T) {
	valid := DefaultConfig()
	valid.BaseURL = "https://admin.example.com"
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"missing base url", func(c *Config) { c.BaseURL = "" }, "base_url is required"},
		{"bad scheme", func(c *Config) { c.BaseURL = "ftp://x" }, "http or https"},
		{"no host", func(c *Config) { c.BaseURL = "https://" }, "host"},
		{"zero timeout", func(c *Config) { c.AttemptTimeout = 0 }, "attempt_timeout"},
		{"empty agent", func(c *Config) { c.UserAgent = "" }, "user_agent"},
		{"negative rate", func(c *Config) { c.RequestsPerSecond = -1 }, "requests_per_second"},
		{"no burst", func(c *Config) { c.RequestsPerSecond = 5; c.Burst = 0 }, "burst"},
		{"bad retry", func(c *Config) { c.Retry.MaxRetries = -2 }, "max_retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.errMsg)
			}
		})
	}
}
