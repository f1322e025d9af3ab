package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	documentsProcessed metric.Int64Counter
	documentsFailed    metric.Int64Counter
	claimsFinalized    metric.Int64Counter
	referenceLoads     metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "pecbridge"
	}
	meter := provider.Meter(name)

	documentsProcessed, err := meter.Int64Counter("pecbridge_contract_documents_total")
	if err != nil {
		return nil, err
	}
	documentsFailed, err := meter.Int64Counter("pecbridge_contract_documents_failed_total")
	if err != nil {
		return nil, err
	}
	claimsFinalized, err := meter.Int64Counter("pecbridge_claims_finalized_total")
	if err != nil {
		return nil, err
	}
	referenceLoads, err := meter.Int64Counter("pecbridge_reference_feed_loads_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		documentsProcessed: documentsProcessed,
		documentsFailed:    documentsFailed,
		claimsFinalized:    claimsFinalized,
		referenceLoads:     referenceLoads,
	}, nil
}

// RecordDocumentProcessed increments processed document counts.
func (m *Metrics) RecordDocumentProcessed(ctx context.Context) {
	if m == nil {
		return
	}
	m.documentsProcessed.Add(ctx, 1)
}

// RecordDocumentFailed increments failed document counts by error kind.
func (m *Metrics) RecordDocumentFailed(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.documentsFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", strings.TrimSpace(kind)),
	))
}

// RecordClaimFinalized increments finalized claim counts by terminal status.
func (m *Metrics) RecordClaimFinalized(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.claimsFinalized.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", strings.TrimSpace(status)),
	))
}

// RecordReferenceLoad increments reference feed load counts.
func (m *Metrics) RecordReferenceLoad(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.referenceLoads.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", strings.TrimSpace(source)),
	))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}
