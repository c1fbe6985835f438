// Package otel wires the OpenTelemetry trace, metric and log pipelines for
// exodus-gw components.
package otel

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

const ServiceName = "exodus-gw"

type exporters struct {
	span   trace.SpanExporter
	metric metric.Exporter
	log    log.Exporter
}

// OTLP over gRPC when useOTLP is set, pretty printed to stdout otherwise.
// The OTLP exporters read their endpoint from OTEL_EXPORTER_OTLP_*.
func newExporters(ctx context.Context, useOTLP bool) (exporters, error) {
	var (
		e   exporters
		err error
	)

	if useOTLP {
		if e.span, err = otlptracegrpc.New(ctx); err != nil {
			return e, err
		}
		if e.metric, err = otlpmetricgrpc.New(ctx); err != nil {
			return e, err
		}
		e.log, err = otlploggrpc.New(ctx)
		return e, err
	}

	if e.span, err = stdouttrace.New(); err != nil {
		return e, err
	}
	if e.metric, err = stdoutmetric.New(); err != nil {
		return e, err
	}
	e.log, err = stdoutlog.New()
	return e, err
}

// SetupOTelSDK installs global providers for one exodus-gw component, e.g.
// "migrate". The returned shutdown flushes and stops them and is safe to call
// more than once. It is returned even on error so partial setups can be
// cleaned up.
func SetupOTelSDK(
	ctx context.Context,
	component string,
	useOTLP bool,
) (func(context.Context) error, error) {
	var shutdownFuncs []func(context.Context) error

	shutdown := func(ctx context.Context) error {
		var er error
		for _, fn := range shutdownFuncs {
			er = errors.Join(er, fn(ctx))
		}
		shutdownFuncs = nil
		return er
	}

	res, err := newResource(ctx, component)
	if err != nil {
		return shutdown, err
	}

	exp, err := newExporters(ctx, useOTLP)
	if err != nil {
		return shutdown, err
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracerProvider := trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithSampler(trace.AlwaysSample()),
		trace.WithBatcher(exp.span),
	)
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	meterProvider := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exp.metric)),
	)
	shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)
	otel.SetMeterProvider(meterProvider)

	loggerProvider := log.NewLoggerProvider(
		log.WithResource(res),
		log.WithProcessor(log.NewBatchProcessor(exp.log)),
	)
	shutdownFuncs = append(shutdownFuncs, loggerProvider.Shutdown)
	global.SetLoggerProvider(loggerProvider)

	return shutdown, nil
}

// OTEL_RESOURCE_ATTRIBUTES and OTEL_SERVICE_NAME override the defaults
func newResource(ctx context.Context, component string) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", ServiceName),
			attribute.String("service.component", component),
		),
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
	)
}
