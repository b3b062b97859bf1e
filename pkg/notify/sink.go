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

// Package notify delivers terminal API errors to users and to logs.
//
// The request pipeline hands every terminal *apierror.Error to a Sink
// exactly once. Sinks are fire-and-forget: they never return errors and
// never alter control flow. Fanout combines several sinks and isolates
// them from each other's panics.
package notify

import (
	"context"
	"log/slog"

	"github.com/tombee/reviewdesk/pkg/apierror"
)

// Context describes where a failure happened.
type Context struct {
	// Route is the screen or command that issued the request.
	Route string `json:"route,omitempty"`
	// Action is the user-level operation, e.g. "approve_document".
	Action string `json:"action,omitempty"`
	// Handled lists codes the caller recovers from itself. The event is
	// still delivered; display sinks skip it.
	Handled []apierror.Code `json:"handled,omitempty"`
}

// Handles reports whether the caller recovers from code.
func (c Context) Handles(code apierror.Code) bool {
	for _, h := range c.Handled {
		if h == code {
			return true
		}
	}
	return false
}

// Event is a single terminal failure.
type Event struct {
	Err     *apierror.Error
	Context Context
}

// Sink receives terminal errors.
type Sink interface {
	Notify(ctx context.Context, ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev Event)

// Notify calls f.
func (f SinkFunc) Notify(ctx context.Context, ev Event) { f(ctx, ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) {})

// Fanout delivers each event to every sink in order. A panicking sink is
// logged and skipped; the remaining sinks still run.
type Fanout struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewFanout creates a fan-out over the given sinks. Nil sinks are ignored.
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{logger: slog.Default()}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// WithLogger sets the logger used to report sink panics.
func (f *Fanout) WithLogger(logger *slog.Logger) *Fanout {
	if logger != nil {
		f.logger = logger
	}
	return f
}

// Add appends a sink.
func (f *Fanout) Add(s Sink) {
	if s != nil {
		f.sinks = append(f.sinks, s)
	}
}

// Notify implements Sink.
func (f *Fanout) Notify(ctx context.Context, ev Event) {
	if ev.Err == nil {
		return
	}
	for _, s := range f.sinks {
		f.deliver(ctx, s, ev)
	}
}

func (f *Fanout) deliver(ctx context.Context, s Sink, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("notification sink panicked",
				"panic", r,
				"code", string(ev.Err.Code()),
			)
		}
	}()
	s.Notify(ctx, ev)
}
