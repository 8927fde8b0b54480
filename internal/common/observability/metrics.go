package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider       *metric.MeterProvider
	meter               otelmetric.Meter
	optimizationCounter otelmetric.Int64Counter
	optimizationLatency otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	optimizationCounter, _ := meter.Int64Counter(
		"optimizations.processed",
		otelmetric.WithDescription("Number of optimization requests processed"),
	)

	optimizationLatency, _ := meter.Float64Histogram(
		"optimizations.duration",
		otelmetric.WithDescription("Optimization request processing duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider:       provider,
		meter:               meter,
		optimizationCounter: optimizationCounter,
		optimizationLatency: optimizationLatency,
	}
}

func (o *Observability) RecordOptimization(ctx context.Context, strategy, status string) {
	if o.optimizationCounter != nil {
		o.optimizationCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("strategy", strategy),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordOptimizationDuration(ctx context.Context, duration time.Duration, strategy string) {
	if o.optimizationLatency != nil {
		o.optimizationLatency.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("strategy", strategy),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}
