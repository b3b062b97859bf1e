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
	"log/slog"

	"github.com/tombee/reviewdesk/pkg/apierror"
)

// LogSink writes the full record, technical message included, to a
// structured logger. This is the only sink that sees technical detail.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log sink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Notify implements Sink.
func (s *LogSink) Notify(ctx context.Context, ev Event) {
	rec := ev.Err.Record()
	attrs := []slog.Attr{
		slog.String("code", string(rec.Code)),
		slog.String("category", string(rec.Category)),
		slog.String("severity", rec.Severity.String()),
		slog.Bool("retryable", rec.Retryable),
		slog.String("technical_message", rec.TechnicalMessage),
	}
	if rec.HTTPStatus != 0 {
		attrs = append(attrs, slog.Int("status", rec.HTTPStatus))
	}
	if rec.Method != "" {
		attrs = append(attrs, slog.String("method", rec.Method), slog.String("endpoint", rec.Endpoint))
	}
	if rec.RequestID != "" {
		attrs = append(attrs, slog.String("correlation_id", rec.RequestID))
	}
	if len(rec.FieldErrors) > 0 {
		attrs = append(attrs, slog.Int("field_errors", len(rec.FieldErrors)))
	}
	if ev.Context.Route != "" {
		attrs = append(attrs, slog.String("route", ev.Context.Route))
	}
	if ev.Context.Action != "" {
		attrs = append(attrs, slog.String("action", ev.Context.Action))
	}

	s.logger.LogAttrs(ctx, levelFor(rec.Severity), rec.UserMessage, attrs...)
}

// levelFor maps severity to a log level.
func levelFor(sev apierror.Severity) slog.Level {
	switch sev {
	case apierror.SeverityLow:
		return slog.LevelInfo
	case apierror.SeverityMedium:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
