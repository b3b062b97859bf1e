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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewdesk_auth_refreshes_total",
			Help: "Token exchanges by result",
		},
		[]string{"result"},
	)

	refreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reviewdesk_auth_refresh_duration_seconds",
			Help:    "Duration of token exchanges",
			Buckets: prometheus.DefBuckets,
		},
	)

	queued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reviewdesk_auth_refresh_waiters",
			Help: "Requests waiting on the in-flight token exchange",
		},
	)
)
