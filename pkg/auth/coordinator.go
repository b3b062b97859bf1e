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

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tombee/reviewdesk/pkg/apierror"
)

// DefaultRefreshTimeout bounds a single token exchange.
const DefaultRefreshTimeout = 30 * time.Second

// ErrNoRefreshToken is returned by a refresh when nothing is stored to
// exchange.
var ErrNoRefreshToken = errors.New("no refresh token stored")

// Continuation receives the outcome of a refresh. On success err is nil
// and token is the new access token. On failure err is the cause the
// waiter was enqueued with.
type Continuation func(token string, err error)

// SessionHandler is told when the session could not be renewed so the
// caller can route the operator to sign in again.
type SessionHandler interface {
	SessionVoid()
}

// SessionHandlerFunc adapts a function to SessionHandler.
type SessionHandlerFunc func()

// SessionVoid implements SessionHandler.
func (f SessionHandlerFunc) SessionVoid() { f() }

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithRefreshTimeout bounds each exchange.
func WithRefreshTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLoginRoute sets the route on which a failed refresh does not
// trigger SessionVoid.
func WithLoginRoute(route string) CoordinatorOption {
	return func(c *Coordinator) { c.loginRoute = route }
}

// WithSessionHandler sets the handler told about a void session.
func WithSessionHandler(h SessionHandler) CoordinatorOption {
	return func(c *Coordinator) { c.handler = h }
}

// WithCoordinatorLogger sets the logger.
func WithCoordinatorLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

type waiter struct {
	cause *apierror.Error
	cont  Continuation
}

// Coordinator serializes token refreshes. While an exchange is in flight
// every request that hits a 401 joins the wait queue instead of starting
// its own exchange. When the exchange settles the queue is drained in
// arrival order.
type Coordinator struct {
	session    *Session
	exchanger  Exchanger
	handler    SessionHandler
	loginRoute string
	timeout    time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	inFlight bool
	origin   string
	waiters  []waiter
	// done is closed when the current exchange settles.
	done chan struct{}
}

// NewCoordinator creates a coordinator. It satisfies httpclient.Refresher.
func NewCoordinator(session *Session, exchanger Exchanger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		session:    session,
		exchanger:  exchanger,
		loginRoute: "/login",
		timeout:    DefaultRefreshTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Refreshing reports whether an exchange is in flight.
func (c *Coordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Enqueue registers cont to run once the current or a newly started
// exchange settles. origin is the route of the request that was rejected.
// The exchange runs detached from ctx so one caller giving up does not
// fail the others.
func (c *Coordinator) Enqueue(ctx context.Context, cause *apierror.Error, origin string, cont Continuation) {
	c.mu.Lock()
	c.waiters = append(c.waiters, waiter{cause: cause, cont: cont})
	queued.Set(float64(len(c.waiters)))
	if c.inFlight {
		c.mu.Unlock()
		return
	}
	c.inFlight = true
	c.origin = origin
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go c.run(context.WithoutCancel(ctx), done)
}

// Await enqueues and blocks until the refresh settles or ctx ends. A
// cancelled waiter stays queued and its continuation is discarded.
func (c *Coordinator) Await(ctx context.Context, cause *apierror.Error, origin string) (string, error) {
	type result struct {
		token string
		err   error
	}
	ch := make(chan result, 1)
	c.Enqueue(ctx, cause, origin, func(token string, err error) {
		ch <- result{token: token, err: err}
	})

	select {
	case r := <-ch:
		return r.token, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Coordinator) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// wait blocks until the in-flight exchange, if any, settles.
func (c *Coordinator) wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Coordinator) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	start := time.Now()
	exCtx, cancel := context.WithTimeout(ctx, c.timeout)
	token, err := c.exchange(exCtx)
	cancel()
	refreshDuration.Observe(time.Since(start).Seconds())

	c.mu.Lock()
	origin := c.origin
	c.mu.Unlock()

	if err != nil {
		refreshes.WithLabelValues("failed").Inc()
		c.logger.Warn("token refresh failed, clearing session", "error", err, "route", origin)
		// Credentials are gone before any waiter observes the failure.
		if cerr := c.session.Clear(ctx); cerr != nil {
			c.logger.Error("failed to clear credentials", "error", cerr)
		}
	} else {
		refreshes.WithLabelValues("succeeded").Inc()
		c.logger.Info("access token refreshed", "duration", time.Since(start))
	}

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.inFlight = false
	c.origin = ""
	queued.Set(0)
	c.mu.Unlock()

	for _, w := range waiters {
		switch {
		case err == nil:
			c.settle(w, token, nil)
		case w.cause != nil:
			c.settle(w, "", w.cause)
		default:
			c.settle(w, "", err)
		}
	}

	if err != nil && c.handler != nil && origin != c.loginRoute {
		c.handler.SessionVoid()
	}
}

func (c *Coordinator) settle(w waiter, token string, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("refresh continuation panicked", "panic", r)
		}
	}()
	w.cont(token, err)
}

// exchange persists the new token before returning.
func (c *Coordinator) exchange(ctx context.Context) (string, error) {
	refresh, err := c.session.RefreshToken(ctx)
	if err != nil {
		return "", err
	}
	if refresh == "" {
		return "", ErrNoRefreshToken
	}

	tok, err := c.exchanger.Exchange(ctx, refresh)
	if err != nil {
		return "", err
	}
	if tok == nil || tok.AccessToken == "" {
		return "", fmt.Errorf("refresh returned no access token")
	}
	if err := c.session.Rotate(ctx, tok); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}
