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
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// ProviderConfig configures the process-wide tracer provider.
type ProviderConfig struct {
	// ServiceName identifies the process in exported spans.
	ServiceName string

	// ServiceVersion identifies the build in exported spans.
	ServiceVersion string

	// Writer receives exported spans as JSON. Defaults to io.Discard when nil,
	// which keeps tracing instrumentation live without forcing every caller
	// to consume span output.
	Writer io.Writer

	// SampleRatio is the fraction of root traces that are recorded; child
	// spans follow their parent's decision. 1.0 samples everything.
	SampleRatio float64
}

// NewProvider builds an OpenTelemetry TracerProvider and installs it as the
// global provider so that otel.Tracer(name) resolves to it anywhere in the
// process. The returned shutdown func flushes pending spans and must be
// called before process exit.
func NewProvider(cfg ProviderConfig) (trace.TracerProvider, func(context.Context) error, error) {
	writer := cfg.Writer
	if writer == nil {
		writer = io.Discard
	}

	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(writer),
		stdouttrace.WithoutTimestamps(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("tracing: create exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("tracing: merge resource: %w", err)
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 {
		ratio = 1.0
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)

	otel.SetTracerProvider(tp)

	return tp, tp.Shutdown, nil
}

// SpanFromCorrelation starts a span and stamps it with the correlation ID
// carried in ctx, if any, so spans and logs can be joined on the same value.
func SpanFromCorrelation(ctx context.Context, tracer trace.Tracer, spanName string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, spanName)
	if id := FromContextOrEmpty(ctx); id != "" {
		span.SetAttributes(attribute.String("correlation_id", id.String()))
	}
	return ctx, span
}
