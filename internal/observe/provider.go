package observe

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig configures the metrics SDK.
type ProviderConfig struct {
	// ServiceName defaults to "xlrbridge".
	ServiceName    string
	ServiceVersion string
	// SessionID is attached to every metric when set.
	SessionID string
}

// InitProvider installs a global MeterProvider backed by the Prometheus
// exporter, which registers with the default Prometheus registry so promhttp
// can serve it. The returned function flushes and shuts the provider down.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*sdkmetric.MeterProvider, func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "xlrbridge"
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.SessionID != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(cfg.SessionID))
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attrs...),
	)
	if err != nil {
		return nil, nil, err
	}

	exp, err := promexporter.New()
	if err != nil {
		return nil, nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exp),
	)
	otel.SetMeterProvider(mp)
	return mp, mp.Shutdown, nil
}
