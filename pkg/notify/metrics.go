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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// terminalErrors counts terminal API errors by classification
	terminalErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewdesk_api_terminal_errors_total",
			Help: "Total terminal API errors by code, category and severity",
		},
		[]string{"code", "category", "severity"},
	)
)

// MetricsSink counts terminal errors.
type MetricsSink struct{}

// Notify implements Sink.
func (MetricsSink) Notify(_ context.Context, ev Event) {
	terminalErrors.WithLabelValues(
		string(ev.Err.Code()),
		string(ev.Err.Category()),
		ev.Err.Severity().String(),
	).Inc()
}
