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

package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/tombee/reviewdesk/pkg/apierror"
)

var (
	styleLow      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))  // blue
	styleMedium   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // orange
	styleHigh     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red
	styleCritical = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	styleMuted    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray
)

// Console prints the user-facing view of each error to a terminal. It
// never prints technical detail.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole creates a console notifier writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// Notify implements Sink. Events the caller handles are not shown.
func (c *Console) Notify(_ context.Context, ev Event) {
	if ev.Err == nil || ev.Context.Handles(ev.Err.Code()) {
		return
	}
	text := Render(ev.Err)

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, text)
}

// Render formats an error for display: a styled headline, one line per
// field error and a muted suggestion.
func Render(err *apierror.Error) string {
	n := err.Notification()
	style := severityStyle(n.Severity)

	var b strings.Builder
	b.WriteString(style.Render(symbol(n.Severity) + " " + n.Message))

	for _, fe := range n.FieldErrors {
		if fe.Field == apierror.GeneralField {
			continue
		}
		b.WriteString("\n  ")
		b.WriteString(styleMuted.Render("•"))
		b.WriteString(" ")
		b.WriteString(fe.Field)
		b.WriteString(": ")
		b.WriteString(fe.Message)
	}

	if hint := err.Suggestion(); hint != "" {
		b.WriteString("\n  ")
		b.WriteString(styleMuted.Render(hint))
	}
	return b.String()
}

func severityStyle(sev apierror.Severity) lipgloss.Style {
	switch sev {
	case apierror.SeverityLow:
		return styleLow
	case apierror.SeverityMedium:
		return styleMedium
	case apierror.SeverityHigh:
		return styleHigh
	default:
		return styleCritical
	}
}

func symbol(sev apierror.Severity) string {
	switch sev {
	case apierror.SeverityLow:
		return "•"
	case apierror.SeverityMedium:
		return "⚠"
	default:
		return "✗"
	}
}
