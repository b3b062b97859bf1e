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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// attemptsTotal tracks physical attempts by outcome code ("ok" on success)
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewdesk_api_attempts_total",
			Help: "Total physical API attempts by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	// retriesTotal tracks policy-approved re-issues
	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewdesk_api_retries_total",
			Help: "Total API retries by failure code",
		},
		[]string{"code"},
	)

	// replaysTotal tracks requests replayed after a token refresh
	replaysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewdesk_api_auth_replays_total",
			Help: "Total requests replayed after a token refresh, by refresh result",
		},
		[]string{"result"},
	)

	// requestDuration tracks logical request latency including retries
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reviewdesk_api_request_duration_seconds",
			Help:    "Logical API request duration in seconds, including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "outcome"},
	)
)

func recordAttempt(method, outcome string) {
	attemptsTotal.WithLabelValues(method, outcome).Inc()
}

func recordRetry(code string) {
	retriesTotal.WithLabelValues(code).Inc()
}

func recordReplay(result string) {
	replaysTotal.WithLabelValues(result).Inc()
}

func recordDuration(method, outcome string, seconds float64) {
	requestDuration.WithLabelValues(method, outcome).Observe(seconds)
}
