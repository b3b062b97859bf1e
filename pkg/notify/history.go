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
	"sync"

	"github.com/tombee/reviewdesk/pkg/apierror"
)

const (
	// DefaultHistorySize bounds the in-memory error history.
	DefaultHistorySize = 50

	recentLimit = 10
)

// Entry is one recorded failure.
type Entry struct {
	apierror.Record
	Route  string `json:"route,omitempty"`
	Action string `json:"action,omitempty"`
}

// Summary aggregates the recorded failures.
type Summary struct {
	Total      int            `json:"total"`
	ByCode     map[string]int `json:"by_code"`
	BySeverity map[string]int `json:"by_severity"`
	ByCategory map[string]int `json:"by_category"`
	// Recent holds up to ten entries, newest first.
	Recent []Entry `json:"recent"`
}

// History keeps the most recent terminal errors in a bounded ring.
type History struct {
	mu      sync.Mutex
	size    int
	entries []Entry
}

// NewHistory creates a history holding at most size entries.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{size: size}
}

// Notify implements Sink.
func (h *History) Notify(_ context.Context, ev Event) {
	h.Add(Entry{Record: ev.Err.Record(), Route: ev.Context.Route, Action: ev.Context.Action})
}

// Add records an entry, evicting the oldest when full.
func (h *History) Add(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, e)
	if over := len(h.entries) - h.size; over > 0 {
		h.entries = append([]Entry(nil), h.entries[over:]...)
	}
}

// Entries returns a copy of the recorded entries, oldest first.
func (h *History) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Clear removes all entries.
func (h *History) Clear() {
	h.mu.Lock()
	h.entries = nil
	h.mu.Unlock()
}

// Summary groups the recorded entries.
func (h *History) Summary() Summary {
	return Summarize(h.Entries())
}

// Summarize groups entries given oldest first.
func Summarize(entries []Entry) Summary {
	s := Summary{
		Total:      len(entries),
		ByCode:     map[string]int{},
		BySeverity: map[string]int{},
		ByCategory: map[string]int{},
	}
	for _, e := range entries {
		s.ByCode[string(e.Code)]++
		s.BySeverity[e.Severity.String()]++
		s.ByCategory[string(e.Category)]++
	}
	for i := len(entries) - 1; i >= 0 && len(s.Recent) < recentLimit; i-- {
		s.Recent = append(s.Recent, entries[i])
	}
	return s
}
