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

/*
Package tracing provides correlation IDs and OpenTelemetry spans for
outbound admin API requests.

Every logical request carries one correlation ID across all of its
physical attempts. The ID is sent as X-Correlation-ID and appears in
notifications, the error log and span attributes.

# Spans

The request pipeline starts one "api.request" span per logical request
and adds "retry" and "token_refresh" events to it. Spans are dropped
unless an exporter is configured:

	tracing:
	  exporter: otlp          # none, console or otlp
	  endpoint: localhost:4318
	  insecure: true
	  sample_rate: 0.25

The console exporter writes pretty-printed spans to stderr and is meant
for debugging a single command.
*/
package tracing
