// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package jaeger contains the OpenTelemetry trace provider setup.
package jaeger

import (
	"context"
	"errors"
	"math"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

var (
	errNoURL                     = errors.New("URL is empty")
	errNoSvcName                 = errors.New("service name is empty")
	errUnsupportedTraceURLScheme = errors.New("unsupported tracing url scheme")
)

// NewProvider initializes an OTLP trace provider reporting to Jaeger.
func NewProvider(ctx context.Context, svcName string, jaegerURL url.URL, instanceID string, fraction float64) (*tracesdk.TracerProvider, error) {
	if jaegerURL == (url.URL{}) {
		return nil, errNoURL
	}

	if svcName == "" {
		return nil, errNoSvcName
	}

	var client otlptrace.Client
	switch jaegerURL.Scheme {
	case "http":
		client = otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(jaegerURL.Host),
			otlptracehttp.WithURLPath(jaegerURL.Path),
			otlptracehttp.WithInsecure(),
		)
	case "https":
		client = otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(jaegerURL.Host),
			otlptracehttp.WithURLPath(jaegerURL.Path),
		)
	default:
		return nil, errUnsupportedTraceURLScheme
	}

	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		return nil, err
	}

	attributes := []attribute.KeyValue{
		semconv.ServiceName(svcName),
		attribute.String("InstanceID", instanceID),
	}

	hostAttr, err := resource.New(ctx, resource.WithHost(), resource.WithOSDescription(), resource.WithContainer())
	if err != nil {
		return nil, err
	}
	attributes = append(attributes, hostAttr.Attributes()...)

	ratio := math.Min(fraction, 1.0)

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithSampler(tracesdk.ParentBased(tracesdk.TraceIDRatioBased(ratio))),
		tracesdk.WithBatcher(exporter),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			attributes...,
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}
