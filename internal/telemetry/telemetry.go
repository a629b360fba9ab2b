package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type ConnConfig struct {
	GrpcEndpoint string            `json:"grpcEndpoint"`
	HttpEndpoint string            `json:"httpEndpoint"`
	Headers      map[string]string `json:"headers"`
}

func (c ConnConfig) enabled() bool {
	return c.GrpcEndpoint != "" || c.HttpEndpoint != ""
}

type Config struct {
	Traces  ConnConfig `json:"traces"`
	Metrics ConnConfig `json:"metrics"`
}

// Telemetry holds the providers installed by Setup. A nil provider means the
// signal was not configured and the global no-op provider is still in place.
type Telemetry struct {
	TracerProvider *trace.TracerProvider
	MeterProvider  *metric.MeterProvider
}

func (t Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.TracerProvider != nil {
		if err := t.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if t.MeterProvider != nil {
		if err := t.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Setup installs OTLP trace and metric providers for the configured
// endpoints. gRPC wins when both endpoints of a signal are set.
func Setup(ctx context.Context, serviceName string, config Config, logger *logrus.Logger) (Telemetry, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*15)
	defer cancel()

	if logger == nil {
		logger = logrus.StandardLogger()
	}

	var tel Telemetry
	if !config.Traces.enabled() && !config.Metrics.enabled() {
		return tel, nil
	}

	r, err := newResource(serviceName)
	if err != nil {
		return tel, err
	}

	if config.Traces.enabled() {
		tracerProvider, err := newTraceProvider(ctx, r, config.Traces, logger)
		if err != nil {
			return tel, err
		}
		otel.SetTracerProvider(tracerProvider)
		tel.TracerProvider = tracerProvider
	}

	if config.Metrics.enabled() {
		meterProvider, err := newMetricProvider(ctx, r, config.Metrics, logger)
		if err != nil {
			return tel, errors.Join(err, tel.Shutdown(ctx))
		}
		otel.SetMeterProvider(meterProvider)
		tel.MeterProvider = meterProvider
	}

	return tel, nil
}

func newResource(serviceName string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
}

func newTraceProvider(ctx context.Context, r *resource.Resource, c ConnConfig, logger *logrus.Logger) (*trace.TracerProvider, error) {
	exporter, err := otlpTraceExporter(ctx, c, logger)
	if err != nil {
		return nil, err
	}

	return trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(r),
	), nil
}

func otlpTraceExporter(ctx context.Context, c ConnConfig, logger *logrus.Logger) (trace.SpanExporter, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*3)
	defer cancel()

	if c.GrpcEndpoint != "" {
		logger.WithFields(logrus.Fields{"type": "grpc", "endpoint": c.GrpcEndpoint}).Info("trace exporter initialized")
		return otlptracegrpc.New(
			ctx,
			otlptracegrpc.WithEndpointURL(c.GrpcEndpoint),
			otlptracegrpc.WithHeaders(c.Headers),
		)
	}

	logger.WithFields(logrus.Fields{"type": "http", "endpoint": c.HttpEndpoint}).Info("trace exporter initialized")
	return otlptracehttp.New(
		ctx,
		otlptracehttp.WithEndpointURL(c.HttpEndpoint),
		otlptracehttp.WithHeaders(c.Headers),
	)
}

func newMetricProvider(ctx context.Context, r *resource.Resource, c ConnConfig, logger *logrus.Logger) (*metric.MeterProvider, error) {
	exporter, err := otlpMetricExporter(ctx, c, logger)
	if err != nil {
		return nil, err
	}

	return metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(time.Second*5))),
		metric.WithResource(r),
	), nil
}

func otlpMetricExporter(ctx context.Context, c ConnConfig, logger *logrus.Logger) (metric.Exporter, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*3)
	defer cancel()

	if c.GrpcEndpoint != "" {
		logger.WithFields(logrus.Fields{"type": "grpc", "endpoint": c.GrpcEndpoint}).Info("metric exporter initialized")
		return otlpmetricgrpc.New(
			ctx,
			otlpmetricgrpc.WithEndpointURL(c.GrpcEndpoint),
			otlpmetricgrpc.WithHeaders(c.Headers),
		)
	}

	logger.WithFields(logrus.Fields{"type": "http", "endpoint": c.HttpEndpoint}).Info("metric exporter initialized")
	return otlpmetrichttp.New(
		ctx,
		otlpmetrichttp.WithEndpointURL(c.HttpEndpoint),
		otlpmetrichttp.WithHeaders(c.Headers),
	)
}
