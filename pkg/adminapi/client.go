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

// Package adminapi provides typed access to the worker verification admin
// API. Every call goes through an httpclient.Pipeline, so token refresh,
// retries and error notification apply uniformly.
package adminapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tombee/reviewdesk/pkg/auth"
	"github.com/tombee/reviewdesk/pkg/httpclient"
)

// Doer issues a request and decodes the successful body into out.
// *httpclient.Pipeline implements it.
type Doer interface {
	DoJSON(ctx context.Context, req *httpclient.Request, out any) error
}

// ErrEmptyResponse is returned when a successful envelope carries no data.
var ErrEmptyResponse = errors.New("response has no data")

// EnvelopeError is returned when the server answers 2xx with
// success=false.
type EnvelopeError struct {
	Message string
}

func (e *EnvelopeError) Error() string {
	if e.Message == "" {
		return "request was not successful"
	}
	return e.Message
}

// Options configures a Client.
type Options struct {
	// LoginPath is the token endpoint. Default: /api/auth/token/.
	LoginPath string
	// LoginRoute is the route recorded for login requests.
	LoginRoute string
}

// Client groups the API services.
type Client struct {
	Auth      *AuthService
	Documents *DocumentService
	Workers   *WorkerService
	Clients   *ClientService
	Dashboard *DashboardService
}

// New creates a client. session supplies the reviewer identity and is
// where login stores its tokens.
func New(doer Doer, session *auth.Session, opts Options) *Client {
	if opts.LoginPath == "" {
		opts.LoginPath = "/api/auth/token/"
	}
	if opts.LoginRoute == "" {
		opts.LoginRoute = "/login"
	}
	return &Client{
		Auth:      &AuthService{doer: doer, session: session, path: opts.LoginPath, route: opts.LoginRoute},
		Documents: &DocumentService{doer: doer, session: session},
		Workers:   &WorkerService{doer: doer},
		Clients:   &ClientService{doer: doer},
		Dashboard: &DashboardService{doer: doer},
	}
}

type routeKey struct{}

// WithRoute records the screen or command issuing requests on ctx. It is
// attached to every notification raised by calls made with ctx.
func WithRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, routeKey{}, route)
}

// RouteFromContext returns the route set by WithRoute.
func RouteFromContext(ctx context.Context) string {
	route, _ := ctx.Value(routeKey{}).(string)
	return route
}

// Timestamp is a Unix time in milliseconds as sent by the server.
type Timestamp int64

// Time converts the timestamp. Zero stays the zero time.
func (t Timestamp) Time() time.Time {
	if t == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(t))
}

// IsZero reports whether the timestamp is unset.
func (t Timestamp) IsZero() bool { return t <= 0 }

// envelope is the standard response wrapper.
type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    *T     `json:"data"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// page is the paginated response wrapper.
type page[T any] struct {
	Success  bool   `json:"success"`
	Count    int    `json:"count"`
	Data     []T    `json:"data"`
	Next     string `json:"next,omitempty"`
	Previous string `json:"previous,omitempty"`
}

// Page is one page of results.
type Page[T any] struct {
	Count int `json:"count"`
	Items []T `json:"items"`
	// HasNext reports whether the server has more results.
	HasNext bool `json:"has_next"`
}

func request(ctx context.Context, method, path, action string) *httpclient.Request {
	return &httpclient.Request{
		Method: method,
		Path:   path,
		Route:  RouteFromContext(ctx),
		Action: action,
	}
}

// fetch issues req and unwraps the envelope. A nil Data is ErrEmptyResponse.
func fetch[T any](ctx context.Context, d Doer, req *httpclient.Request) (*T, error) {
	var env envelope[T]
	if err := d.DoJSON(ctx, req, &env); err != nil {
		return nil, err
	}
	if !env.Success && env.Data == nil {
		return nil, envelopeErr(env.Message, env.Error)
	}
	if env.Data == nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, ErrEmptyResponse)
	}
	return env.Data, nil
}

// send issues req and checks only the envelope's success flag. Bodies
// that are not envelopes are accepted.
func send(ctx context.Context, d Doer, req *httpclient.Request) error {
	var env envelope[struct{}]
	if err := d.DoJSON(ctx, req, &env); err != nil {
		return err
	}
	if !env.Success && (env.Message != "" || env.Error != "") {
		return envelopeErr(env.Message, env.Error)
	}
	return nil
}

func list[T any](ctx context.Context, d Doer, req *httpclient.Request) (*Page[T], error) {
	var p page[T]
	if err := d.DoJSON(ctx, req, &p); err != nil {
		return nil, err
	}
	count := p.Count
	if count == 0 {
		count = len(p.Data)
	}
	return &Page[T]{Count: count, Items: p.Data, HasNext: p.Next != ""}, nil
}

func envelopeErr(message, alt string) error {
	if message == "" {
		message = alt
	}
	return &EnvelopeError{Message: message}
}
