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
	"fmt"
	"time"

	"github.com/tombee/reviewdesk/pkg/apierror"
)

// Policy decides whether a classified failure is re-attempted and how long
// to wait first. It is stateless; the attempt counter lives in the caller.
type Policy struct {
	// MaxRetries is the number of re-attempts after the first try.
	// Default: 3. Must be >= 0.
	MaxRetries int

	// BaseDelay is the wait before the first retry.
	// Default: 1s. Must be > 0 if MaxRetries > 0.
	BaseDelay time.Duration

	// MaxDelay caps every wait, including server-requested ones.
	// Default: 30s. Must be >= BaseDelay.
	MaxDelay time.Duration
}

// DefaultPolicy returns three retries at 1s, 2s and 4s.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// Validate checks if the policy is valid.
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", p.MaxRetries)
	}
	if p.MaxRetries > 0 {
		if p.BaseDelay <= 0 {
			return fmt.Errorf("base_delay must be > 0 when max_retries > 0, got %v", p.BaseDelay)
		}
		if p.MaxDelay < p.BaseDelay {
			return fmt.Errorf("max_delay (%v) must be >= base_delay (%v)", p.MaxDelay, p.BaseDelay)
		}
	}
	return nil
}

// ShouldRetry reports whether a request that has already been retried
// attempt times may be re-issued after err.
func (p Policy) ShouldRetry(err *apierror.Error, attempt int) bool {
	return err != nil && err.Retryable() && attempt < p.MaxRetries
}

// Delay returns BaseDelay * 2^(attempt-1), capped at MaxDelay. attempt is
// 1 for the first retry. No jitter is applied.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Backoff is Delay extended by the server's Retry-After: the larger of the
// two, still capped at MaxDelay.
func (p Policy) Backoff(err *apierror.Error, attempt int) time.Duration {
	d := p.Delay(attempt)
	if err != nil && err.RetryAfter() > d {
		d = err.RetryAfter()
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
