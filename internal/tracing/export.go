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

package tracing

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Exporter names.
const (
	ExporterNone    = "none"
	ExporterConsole = "console"
	ExporterOTLP    = "otlp"
)

// ExportConfig selects where spans go.
type ExportConfig struct {
	// Exporter is none, console or otlp.
	Exporter string

	// Endpoint is the OTLP/HTTP collector as host:port.
	Endpoint string

	// Insecure disables TLS for the OTLP exporter.
	Insecure bool

	// SampleRate is the fraction of requests traced (0.0 - 1.0).
	SampleRate float64

	// Console receives console output. Default: os.Stderr.
	Console io.Writer
}

// ProviderOptions returns the span processor and sampler for cfg. No
// options are returned for the none exporter.
func ProviderOptions(ctx context.Context, cfg ExportConfig) ([]sdktrace.TracerProviderOption, error) {
	var proc sdktrace.TracerProviderOption

	switch cfg.Exporter {
	case "", ExporterNone:
		return nil, nil
	case ExporterConsole:
		w := cfg.Console
		if w == nil {
			w = os.Stderr
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create console exporter: %w", err)
		}
		// A CLI process is short lived; write spans as they end.
		proc = sdktrace.WithSyncer(exp)
	case ExporterOTLP:
		exp, err := newOTLPExporter(ctx, cfg)
		if err != nil {
			return nil, err
		}
		proc = sdktrace.WithBatcher(exp)
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}

	return []sdktrace.TracerProviderOption{proc, sdktrace.WithSampler(NewSampler(cfg.SampleRate))}, nil
}

func newOTLPExporter(ctx context.Context, cfg ExportConfig) (sdktrace.SpanExporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("otlp exporter requires an endpoint")
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	} else {
		opts = append(opts, otlptracehttp.WithTLSClientConfig(&tls.Config{MinVersion: tls.VersionTLS12}))
	}

	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP HTTP exporter: %w", err)
	}
	return exp, nil
}
