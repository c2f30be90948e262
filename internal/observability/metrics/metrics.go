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
	codesCreated    metric.Int64Counter
	codesRewritten  metric.Int64Counter
	codesSurplus    metric.Int64Counter
	codeRedemptions metric.Int64Counter
	userAttachments metric.Int64Counter
	zeroCheckouts   metric.Int64Counter
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

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "learnway"
	}
	meter := provider.Meter(name)

	codesCreated, err := meter.Int64Counter("learnway_enrollment_codes_created_total")
	if err != nil {
		return nil, err
	}
	codesRewritten, err := meter.Int64Counter("learnway_enrollment_codes_rewritten_total")
	if err != nil {
		return nil, err
	}
	codesSurplus, err := meter.Int64Counter("learnway_enrollment_codes_surplus_total")
	if err != nil {
		return nil, err
	}
	codeRedemptions, err := meter.Int64Counter("learnway_code_redemptions_total")
	if err != nil {
		return nil, err
	}
	userAttachments, err := meter.Int64Counter("learnway_user_attachments_total")
	if err != nil {
		return nil, err
	}
	zeroCheckouts, err := meter.Int64Counter("learnway_zero_value_checkouts_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		codesCreated:    codesCreated,
		codesRewritten:  codesRewritten,
		codesSurplus:    codesSurplus,
		codeRedemptions: codeRedemptions,
		userAttachments: userAttachments,
		zeroCheckouts:   zeroCheckouts,
	}, nil
}

// RecordReconcile records the outcome of one reconcile pass.
func (m *Metrics) RecordReconcile(ctx context.Context, created, updated, surplus int64) {
	if m == nil {
		return
	}
	if created > 0 {
		m.codesCreated.Add(ctx, created)
	}
	if updated > 0 {
		m.codesRewritten.Add(ctx, updated)
	}
	if surplus > 0 {
		m.codesSurplus.Add(ctx, surplus)
	}
}

// RecordRedemption increments code redemption counts.
func (m *Metrics) RecordRedemption(ctx context.Context, policy string) {
	if m == nil {
		return
	}
	m.codeRedemptions.Add(ctx, 1, metric.WithAttributes(attribute.String("policy", policy)))
}

// RecordAttachment increments user attachment counts.
func (m *Metrics) RecordAttachment(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.userAttachments.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordZeroCheckout increments zero-value checkout counts.
func (m *Metrics) RecordZeroCheckout(ctx context.Context) {
	if m == nil {
		return
	}
	m.zeroCheckouts.Add(ctx, 1)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	case "http", "http/protobuf":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported otlp protocol %q", protocol)
	}
}
